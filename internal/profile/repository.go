package profile

import (
	"context"
	"database/sql"
	"errors"

	"designguard/internal/db"
	"designguard/internal/identity"
)

var ErrNotFound = errors.New("profile not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) Get(ctx context.Context, userID int64) (*Profile, error) {
	p := &Profile{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, full_name, email, mobile_number, role, created_at, is_verified FROM users WHERE id = $1",
		userID).Scan(&p.ID, &p.FullName, &p.Email, &p.MobileNumber, &p.Role, &p.CreatedAt, &p.IsVerified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	switch p.Role {
	case identity.RoleFactoryOwner:
		err = r.db.QueryRowContext(ctx, `
			SELECT company_name, gst_number, factory_address, logo_url, bio,
			       profile_picture_url, established_year, employee_count
			FROM factory_profiles WHERE user_id = $1`, userID).
			Scan(&p.CompanyName, &p.GSTNumber, &p.FactoryAddress, &p.LogoURL, &p.Bio,
				&p.ProfilePictureURL, &p.EstablishedYear, &p.EmployeeCount)
	case identity.RoleVepari:
		err = r.db.QueryRowContext(ctx, `
			SELECT vepari_brand_name, city, vepari_gst_number, logo_url, bio,
			       profile_picture_url, business_type, established_year
			FROM vepari_profiles WHERE user_id = $1`, userID).
			Scan(&p.VepariBrandName, &p.City, &p.VepariGSTNumber, &p.LogoURL, &p.Bio,
				&p.ProfilePictureURL, &p.BusinessType, &p.EstablishedYear)
	}
	// A user without a business profile row is still a valid profile.
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return p, nil
}

// Update applies req to the user and their role profile in one transaction.
func (r *Repository) Update(ctx context.Context, userID int64, role identity.Role, req *UpdateRequest) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if req.FullName != nil || req.MobileNumber != nil {
			_, err := tx.ExecContext(ctx, `
				UPDATE users
				SET full_name = COALESCE($1, full_name),
				    mobile_number = COALESCE($2, mobile_number),
				    updated_at = CURRENT_TIMESTAMP
				WHERE id = $3`, req.FullName, req.MobileNumber, userID)
			if err != nil {
				return err
			}
		}

		var err error
		switch role {
		case identity.RoleVepari:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO vepari_profiles
					(user_id, vepari_brand_name, city, vepari_gst_number, bio, business_type, established_year)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id) DO UPDATE SET
					vepari_brand_name = COALESCE(EXCLUDED.vepari_brand_name, vepari_profiles.vepari_brand_name),
					city = COALESCE(EXCLUDED.city, vepari_profiles.city),
					vepari_gst_number = COALESCE(EXCLUDED.vepari_gst_number, vepari_profiles.vepari_gst_number),
					bio = COALESCE(EXCLUDED.bio, vepari_profiles.bio),
					business_type = COALESCE(EXCLUDED.business_type, vepari_profiles.business_type),
					established_year = COALESCE(EXCLUDED.established_year, vepari_profiles.established_year),
					updated_at = CURRENT_TIMESTAMP`,
				userID, req.VepariBrandName, req.City, req.VepariGSTNumber, req.Bio, req.BusinessType, req.EstablishedYear)
		case identity.RoleFactoryOwner:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO factory_profiles
					(user_id, company_name, gst_number, factory_address, bio, established_year, employee_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (user_id) DO UPDATE SET
					company_name = COALESCE(EXCLUDED.company_name, factory_profiles.company_name),
					gst_number = COALESCE(EXCLUDED.gst_number, factory_profiles.gst_number),
					factory_address = COALESCE(EXCLUDED.factory_address, factory_profiles.factory_address),
					bio = COALESCE(EXCLUDED.bio, factory_profiles.bio),
					established_year = COALESCE(EXCLUDED.established_year, factory_profiles.established_year),
					employee_count = COALESCE(EXCLUDED.employee_count, factory_profiles.employee_count),
					updated_at = CURRENT_TIMESTAMP`,
				userID, req.CompanyName, req.GSTNumber, req.FactoryAddress, req.Bio, req.EstablishedYear, req.EmployeeCount)
		}
		return err
	})
}

func (r *Repository) SetPicture(ctx context.Context, userID int64, role identity.Role, url string) error {
	table := "vepari_profiles"
	if role.IsFactoryOwner() {
		table = "factory_profiles"
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE "+table+" SET profile_picture_url = $1, updated_at = CURRENT_TIMESTAMP WHERE user_id = $2",
		url, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
