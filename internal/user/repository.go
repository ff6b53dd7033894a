package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"designguard/internal/db"
	"designguard/internal/identity"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, full_name, email, mobile_number, password_hash, role, is_verified, otp_hash, otp_expires_at, created_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var role string
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.MobileNumber, &u.Password, &role,
		&u.IsVerified, &u.OTPHash, &u.OTPExpiresAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = identity.Role(role)
	return u, nil
}

func (r *Repository) ExistsByEmailOrMobile(ctx context.Context, email, mobile string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 OR mobile_number = $2)",
		email, mobile).Scan(&exists)
	return exists, err
}

// CreateUser inserts the user and its role profile row in one transaction.
func (r *Repository) CreateUser(ctx context.Context, u *User, p Profile) (*User, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `INSERT INTO users (full_name, email, mobile_number, password_hash, role, otp_hash, otp_expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
		err := tx.QueryRowContext(ctx, query, u.FullName, u.Email, u.MobileNumber, u.Password,
			string(u.Role), u.OTPHash, u.OTPExpiresAt).Scan(&u.ID, &u.CreatedAt)
		if err != nil {
			return err
		}
		return insertProfile(ctx, tx, u, p)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func insertProfile(ctx context.Context, q db.Queryer, u *User, p Profile) error {
	switch u.Role {
	case identity.RoleFactoryOwner:
		_, err := q.ExecContext(ctx,
			`INSERT INTO factory_profiles (user_id, company_name, gst_number, factory_address, logo_url)
			 VALUES ($1, $2, $3, $4, $5)`,
			u.ID, nullString(p.CompanyName), nullString(p.GSTNumber), nullString(p.FactoryAddress), nullString(p.LogoURL))
		return err
	case identity.RoleVepari:
		_, err := q.ExecContext(ctx,
			`INSERT INTO vepari_profiles (user_id, vepari_brand_name, city, vepari_gst_number, logo_url)
			 VALUES ($1, $2, $3, $4, $5)`,
			u.ID, nullString(p.VepariBrandName), nullString(p.City), nullString(p.VepariGSTNumber), nullString(p.LogoURL))
		return err
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return scanUser(row)
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (r *Repository) SetOTP(ctx context.Context, id int64, hash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET otp_hash = $1, otp_expires_at = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3",
		hash, expiresAt, id)
	return err
}

func (r *Repository) MarkVerified(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = TRUE, otp_hash = NULL, otp_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`, id)
	return err
}

func (r *Repository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET password_hash = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SearchUsers finds verified users of the given role by name or email.
func (r *Repository) SearchUsers(ctx context.Context, query string, role identity.Role) ([]PublicUser, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, full_name, email, role FROM users
		WHERE role = $1 AND is_verified AND (full_name ILIKE $2 OR email ILIKE $2)
		ORDER BY full_name LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, string(role), "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []PublicUser{}
	for rows.Next() {
		var u PublicUser
		var role string
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &role); err != nil {
			return nil, err
		}
		u.Role = identity.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
