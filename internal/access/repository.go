package access

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("access request not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const requestColumns = `id, vepari_id, factory_id, status, access_granted_at, access_expires_at, created_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	r := &Request{}
	var granted, expires sql.NullTime
	err := row.Scan(&r.ID, &r.VepariID, &r.FactoryID, &r.Status, &granted, &expires, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if granted.Valid {
		r.AccessGrantedAt = &granted.Time
	}
	if expires.Valid {
		r.AccessExpiresAt = &expires.Time
	}
	return r, nil
}

func (r *Repository) Factories(ctx context.Context, vepariID int64) ([]Factory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.full_name, fp.company_name, fp.factory_address, fp.logo_url,
		       fp.profile_picture_url, dar.status, dar.access_expires_at
		FROM users u
		JOIN factory_profiles fp ON u.id = fp.user_id
		LEFT JOIN design_access_requests dar ON dar.factory_id = u.id AND dar.vepari_id = $1
		WHERE u.role = 'factory_owner'
		ORDER BY u.id`, vepariID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Factory{}
	for rows.Next() {
		var f Factory
		var status sql.NullString
		var expires sql.NullTime
		if err := rows.Scan(&f.ID, &f.FullName, &f.CompanyName, &f.FactoryAddress, &f.LogoURL,
			&f.ProfilePictureURL, &status, &expires); err != nil {
			return nil, err
		}
		if status.Valid {
			s := Status(status.String)
			f.RequestStatus = &s
		}
		if expires.Valid {
			f.AccessExpiresAt = &expires.Time
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repository) IsFactory(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = 'factory_owner')", userID).Scan(&ok)
	return ok, err
}

// Upsert (re)opens the vepari's request to factoryID as pending.
func (r *Repository) Upsert(ctx context.Context, vepariID, factoryID int64) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO design_access_requests (vepari_id, factory_id, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (vepari_id, factory_id) DO UPDATE SET status = 'pending'
		RETURNING `+requestColumns, vepariID, factoryID)
	return scanRequest(row)
}

func (r *Repository) Pending(ctx context.Context, factoryID int64) ([]PendingRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.vepari_id, r.status, u.full_name, u.email,
		       vp.vepari_brand_name, vp.city, vp.profile_picture_url
		FROM design_access_requests r
		JOIN users u ON r.vepari_id = u.id
		LEFT JOIN vepari_profiles vp ON u.id = vp.user_id
		WHERE r.factory_id = $1 AND r.status = 'pending'
		ORDER BY r.created_at`, factoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []PendingRequest{}
	for rows.Next() {
		var p PendingRequest
		if err := rows.Scan(&p.ID, &p.VepariID, &p.Status, &p.VepariName, &p.VepariEmail,
			&p.ShopName, &p.City, &p.VepariProfileImage); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (*Request, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM design_access_requests WHERE id = $1", id)
	return scanRequest(row)
}

// SetStatus records a decision. granted and expires are nil for rejections.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status, granted, expires *time.Time) (*Request, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE design_access_requests
		SET status = $1, access_granted_at = $2, access_expires_at = $3
		WHERE id = $4 RETURNING `+requestColumns,
		string(status), granted, expires, id)
	return scanRequest(row)
}

// HasApproved reports whether vepariID currently holds unexpired approved
// access to factoryID's catalog.
func (r *Repository) HasApproved(ctx context.Context, vepariID, factoryID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM design_access_requests
			WHERE vepari_id = $1 AND factory_id = $2 AND status = 'approved'
			  AND (access_expires_at IS NULL OR access_expires_at > NOW()))`,
		vepariID, factoryID).Scan(&ok)
	return ok, err
}
