package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"designguard/internal/db"
	"designguard/internal/identity"
)

var (
	ErrRoomNotFound = errors.New("chat: room not found")
	ErrInvalidUsers = errors.New("chat: invalid user ids")
	ErrInvalidRoles = errors.New("chat: participants must be one vepari and one factory owner")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const roomColumns = `id, vepari_id, factory_id, last_message, last_message_at, created_at`

func scanRoom(row interface{ Scan(...any) error }) (*Room, error) {
	r := &Room{}
	var last sql.NullString
	var lastAt sql.NullTime
	if err := row.Scan(&r.ID, &r.VepariID, &r.FactoryID, &last, &lastAt, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if last.Valid {
		r.LastMessage = &last.String
	}
	if lastAt.Valid {
		r.LastMessageAt = &lastAt.Time
	}
	return r, nil
}

// ResolveParticipants orders two user ids into (vepari, factory) by their
// stored roles, so a room resolves the same way whichever side asks.
func (r *Repository) ResolveParticipants(ctx context.Context, a, b int64) (vepariID, factoryID int64, err error) {
	if a == b {
		return 0, 0, ErrInvalidRoles
	}
	rows, err := r.db.QueryContext(ctx, "SELECT id, role FROM users WHERE id IN ($1, $2)", a, b)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	found := 0
	for rows.Next() {
		var id int64
		var role string
		if err := rows.Scan(&id, &role); err != nil {
			return 0, 0, err
		}
		found++
		switch identity.Role(role) {
		case identity.RoleVepari:
			vepariID = id
		case identity.RoleFactoryOwner:
			factoryID = id
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if found != 2 {
		return 0, 0, ErrInvalidUsers
	}
	if vepariID == 0 || factoryID == 0 {
		return 0, 0, ErrInvalidRoles
	}
	return vepariID, factoryID, nil
}

// UpsertRoom returns the room for the pair, creating it on first use.
func (r *Repository) UpsertRoom(ctx context.Context, vepariID, factoryID int64) (*Room, error) {
	query := `INSERT INTO chat_rooms (vepari_id, factory_id) VALUES ($1, $2)
		ON CONFLICT (vepari_id, factory_id) DO UPDATE SET last_message_at = CURRENT_TIMESTAMP
		RETURNING ` + roomColumns
	return scanRoom(r.db.QueryRowContext(ctx, query, vepariID, factoryID))
}

func (r *Repository) GetRoom(ctx context.Context, roomID int64) (*Room, error) {
	return scanRoom(r.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM chat_rooms WHERE id = $1", roomID))
}

// RoomForParticipant returns ErrRoomNotFound both for a missing room and for
// a room the user is not part of.
func (r *Repository) RoomForParticipant(ctx context.Context, roomID, userID int64) (*Room, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM chat_rooms WHERE id = $1 AND (vepari_id = $2 OR factory_id = $2)",
		roomID, userID)
	return scanRoom(row)
}

// SaveMessage stores the message and refreshes the room preview atomically.
func (r *Repository) SaveMessage(ctx context.Context, roomID, senderID int64, text string) (id int64, createdAt time.Time, err error) {
	err = db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO messages (room_id, sender_id, message_text) VALUES ($1, $2, $3) RETURNING id, created_at",
			roomID, senderID, text).Scan(&id, &createdAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE chat_rooms SET last_message = $1, last_message_at = $2 WHERE id = $3",
			text, createdAt, roomID)
		return err
	})
	return id, createdAt, err
}

// MarkRead flags the other side's unread messages in a room the user belongs
// to. Repeating the call changes nothing.
func (r *Repository) MarkRead(ctx context.Context, roomID, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages m SET is_read = TRUE
		FROM chat_rooms cr
		WHERE m.room_id = cr.id AND cr.id = $1 AND (cr.vepari_id = $2 OR cr.factory_id = $2)
		  AND m.sender_id <> $2 AND m.is_read = FALSE`, roomID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// History returns one page of a room's messages, oldest first, and the total.
func (r *Repository) History(ctx context.Context, roomID int64, limit, offset int) ([]Message, int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT m.id, m.message_text, m.sender_id, m.is_read, m.created_at,
			u.email, u.role
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.room_id = $1
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.MessageText, &m.SenderID, &m.IsRead, &m.CreatedAt, &m.SenderEmail, &m.SenderRole); err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE room_id = $1", roomID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// RoomsFor lists the caller's rooms with the counterpart's details, most
// recently active first.
func (r *Repository) RoomsFor(ctx context.Context, caller identity.Identity) ([]RoomSummary, error) {
	own, other := "cr.vepari_id", "cr.factory_id"
	if caller.Role.IsFactoryOwner() {
		own, other = other, own
	}
	query := `SELECT cr.id, cr.vepari_id, cr.factory_id, cr.last_message, cr.last_message_at, cr.created_at,
			u.email, u.full_name,
			CAST((SELECT COUNT(*) FROM messages m
				WHERE m.room_id = cr.id AND m.sender_id <> $1 AND m.is_read = FALSE) AS INTEGER)
		FROM chat_rooms cr
		JOIN users u ON ` + other + ` = u.id
		WHERE ` + own + ` = $1
		ORDER BY cr.last_message_at DESC NULLS LAST, cr.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, caller.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	for rows.Next() {
		var s RoomSummary
		var last sql.NullString
		var lastAt sql.NullTime
		var email, name string
		if err := rows.Scan(&s.ID, &s.VepariID, &s.FactoryID, &last, &lastAt, &s.CreatedAt,
			&email, &name, &s.UnreadCount); err != nil {
			return nil, err
		}
		if last.Valid {
			s.LastMessage = &last.String
		}
		if lastAt.Valid {
			s.LastMessageAt = &lastAt.Time
		}
		if caller.Role.IsVepari() {
			s.FactoryEmail, s.FactoryName = email, name
		} else {
			s.VepariEmail, s.VepariName = email, name
		}
		rooms = append(rooms, s)
	}
	return rooms, rows.Err()
}

// ClearHistory deletes every message in the room and resets its preview.
func (r *Repository) ClearHistory(ctx context.Context, roomID int64) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE room_id = $1", roomID)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx,
			"UPDATE chat_rooms SET last_message = NULL, last_message_at = CURRENT_TIMESTAMP WHERE id = $1", roomID)
		return err
	})
	return deleted, err
}
