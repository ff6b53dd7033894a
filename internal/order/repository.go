package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"designguard/internal/identity"
)

var ErrNotFound = errors.New("order not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const detailSelect = `
	SELECT o.id, o.vepari_id, o.factory_id, o.design_id, o.quantity, o.printing_note,
	       o.status, o.order_date, o.updated_at,
	       d.design_number, d.image_url, d.color_variants, v.email, f.email
	FROM orders o
	JOIN designs d ON o.design_id = d.id
	JOIN users v ON o.vepari_id = v.id
	JOIN users f ON o.factory_id = f.id`

func scan(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	err := row.Scan(&o.ID, &o.VepariID, &o.FactoryID, &o.DesignID, &o.Quantity, &o.PrintingNote,
		&o.Status, &o.OrderDate, &o.UpdatedAt,
		&o.DesignNumber, &o.DesignImage, &o.ColorVariants, &o.VepariEmail, &o.FactoryEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// DesignOf reports whether designID is published by factoryID.
func (r *Repository) DesignOf(ctx context.Context, designID, factoryID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM designs d JOIN users u ON d.factory_id = u.id
			WHERE d.id = $1 AND d.factory_id = $2 AND u.role = 'factory_owner')`,
		designID, factoryID).Scan(&ok)
	return ok, err
}

func (r *Repository) Create(ctx context.Context, vepariID int64, in *PlaceRequest, note *string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (vepari_id, factory_id, design_id, quantity, printing_note, status)
		VALUES ($1, $2, $3, $4, $5, 'pending') RETURNING id`,
		vepariID, in.FactoryID, in.DesignID, in.Quantity, note).Scan(&id)
	return id, err
}

func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	return scan(r.db.QueryRowContext(ctx, detailSelect+" WHERE o.id = $1", id))
}

// List returns caller's orders newest first, as buyer for a vepari and as
// seller for a factory. An empty status matches every order.
func (r *Repository) List(ctx context.Context, caller identity.Identity, status Status, limit, offset int) ([]Order, int, error) {
	col := "o.vepari_id"
	if caller.Role.IsFactoryOwner() {
		col = "o.factory_id"
	}
	where := fmt.Sprintf(" WHERE %s = $1 AND ($2::text = '' OR o.status = $2::text)", col)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o"+where, caller.UserID, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		detailSelect+where+" ORDER BY o.order_date DESC, o.id DESC LIMIT $3 OFFSET $4",
		caller.UserID, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

// SetStatus only updates an order sold by factoryID.
func (r *Repository) SetStatus(ctx context.Context, id, factoryID int64, status Status) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND factory_id = $3",
		string(status), id, factoryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
