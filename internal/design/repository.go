package design

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("design not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, factory_id, design_number, image_url, color_variants, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (*Design, error) {
	d := &Design{}
	err := row.Scan(&d.ID, &d.FactoryID, &d.DesignNumber, &d.ImageURL, &d.ColorVariants, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NumberTaken reports whether factoryID already uses number on a design
// other than exceptID. Pass 0 to check every design.
func (r *Repository) NumberTaken(ctx context.Context, factoryID int64, number string, exceptID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM designs WHERE factory_id = $1 AND design_number = $2 AND id <> $3)",
		factoryID, number, exceptID).Scan(&taken)
	return taken, err
}

func (r *Repository) Create(ctx context.Context, factoryID int64, number, imageURL, colorVariants string) (*Design, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO designs (factory_id, design_number, image_url, color_variants)
		VALUES ($1, $2, $3, $4) RETURNING `+columns,
		factoryID, number, imageURL, nullable(colorVariants))
	return scan(row)
}

func (r *Repository) Get(ctx context.Context, id int64) (*Design, error) {
	return scan(r.db.QueryRowContext(ctx, "SELECT "+columns+" FROM designs WHERE id = $1", id))
}

func (r *Repository) List(ctx context.Context, factoryID int64, limit, offset int) ([]Design, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM designs WHERE factory_id = $1", factoryID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+columns+" FROM designs WHERE factory_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		factoryID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Design{}
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *Repository) Update(ctx context.Context, d *Design) (*Design, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE designs
		SET design_number = $1, color_variants = $2, image_url = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4 RETURNING `+columns,
		d.DesignNumber, d.ColorVariants, d.ImageURL, d.ID)
	return scan(row)
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM designs WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
