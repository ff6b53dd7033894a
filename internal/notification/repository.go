package notification

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("notification not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, user_id, type, title, message, data, is_read, created_at`

func scan(row interface{ Scan(...any) error }) (*Notification, error) {
	n := &Notification{}
	var data []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &data, &n.IsRead, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(data) > 0 {
		n.Data = data
	}
	return n, nil
}

// Insert stores a notification. data may be nil.
func (r *Repository) Insert(ctx context.Context, userID int64, typ, title, message string, data []byte) (*Notification, error) {
	var arg any
	if data != nil {
		arg = string(data)
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, data)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+columns,
		userID, typ, title, message, arg)
	return scan(row)
}

func (r *Repository) List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+columns+" FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// MarkRead only touches the caller's own notification.
func (r *Repository) MarkRead(ctx context.Context, id, userID int64) (*Notification, error) {
	row := r.db.QueryRowContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2 RETURNING "+columns,
		id, userID)
	return scan(row)
}

func (r *Repository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE", userID).Scan(&n)
	return n, err
}
