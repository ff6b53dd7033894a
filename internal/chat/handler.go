package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/user"
)

const defaultHistoryLimit = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator resolves the caller of a handshake request.
type Authenticator interface {
	Authenticate(r *http.Request) (identity.Identity, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
}

// Store is everything the chat handlers and relay read and write.
type Store interface {
	RoomStore
	RoomForParticipant(ctx context.Context, roomID, userID int64) (*Room, error)
	History(ctx context.Context, roomID int64, limit, offset int) ([]Message, int, error)
	RoomsFor(ctx context.Context, caller identity.Identity) ([]RoomSummary, error)
	ClearHistory(ctx context.Context, roomID int64) (int64, error)
}

type Handler struct {
	hub   *Hub
	relay *Relay
	store Store
	auth  Authenticator
	users UserLookup
	log   *zap.Logger
}

func NewHandler(hub *Hub, relay *Relay, store Store, auth Authenticator, users UserLookup, log *zap.Logger) *Handler {
	return &Handler{hub: hub, relay: relay, store: store, auth: auth, users: users, log: log.Named("chat.http")}
}

// ServeWs authenticates the handshake before upgrading; a bad credential
// gets a plain 401 and no websocket.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	id, err := h.auth.Authenticate(r)
	if err != nil {
		apperr.Write(w, nil, err)
		return
	}
	u, err := h.users.FindByID(r.Context(), id.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			err = apperr.Authentication("Authentication error: User not found")
		}
		apperr.Write(w, h.log, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.hub, h.relay, conn, u.ID, u.Email, u.Role)
	if err := h.hub.Register(client); err != nil {
		conn.Close()
		return
	}
	client.log.Info("connected", zap.String("role", u.Role.String()))

	go client.WritePump()
	go client.ReadPump()
}

func caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, nil, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// History handles GET /api/chat/history/{roomId}.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomId"), 10, 64)
	if err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid room ID"))
		return
	}
	page := positiveInt(r.URL.Query().Get("page"), 1)
	limit := positiveInt(r.URL.Query().Get("limit"), defaultHistoryLimit)

	room, err := h.store.RoomForParticipant(r.Context(), roomID, id.UserID)
	if errors.Is(err, ErrRoomNotFound) {
		apperr.Write(w, h.log, apperr.Authorization("Access denied to this chat room"))
		return
	}
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}

	msgs, total, err := h.store.History(r.Context(), roomID, limit, (page-1)*limit)
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}
	totalPages := (total + limit - 1) / limit
	apperr.JSON(w, http.StatusOK, HistoryResponse{
		Messages: msgs,
		Pagination: Pagination{
			CurrentPage:   page,
			TotalPages:    totalPages,
			TotalMessages: total,
			HasMore:       page < totalPages,
		},
		RoomInfo: room,
	})
}

// Rooms handles GET /api/chat/rooms.
func (h *Handler) Rooms(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	rooms, err := h.store.RoomsFor(r.Context(), id)
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{"success": true, "rooms": rooms})
}

// CreateRoom handles POST /api/chat/room. Either side may call it and the
// ids may come in either order.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req RoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	a, b := int64(req.VepariID), int64(req.FactoryID)
	if a <= 0 || b <= 0 {
		apperr.Write(w, h.log, apperr.Validation("vepariId and factoryId are required"))
		return
	}
	if id.UserID != a && id.UserID != b {
		apperr.Write(w, h.log, apperr.Authorization("Access denied"))
		return
	}

	vepariID, factoryID, err := h.store.ResolveParticipants(r.Context(), a, b)
	switch {
	case errors.Is(err, ErrInvalidUsers):
		apperr.Write(w, h.log, apperr.Validation("Invalid user IDs"))
		return
	case errors.Is(err, ErrInvalidRoles):
		apperr.Write(w, h.log, apperr.Validation("Invalid user roles"))
		return
	case err != nil:
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}

	room, err := h.store.UpsertRoom(r.Context(), vepariID, factoryID)
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}
	apperr.JSON(w, http.StatusOK, room)
}

// Clear handles POST /api/chat/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid request body"))
		return
	}
	if req.RoomID <= 0 {
		apperr.Write(w, h.log, apperr.Validation("Room ID is required"))
		return
	}

	_, err := h.store.RoomForParticipant(r.Context(), int64(req.RoomID), id.UserID)
	if errors.Is(err, ErrRoomNotFound) {
		apperr.Write(w, h.log, apperr.Authorization("Access denied to this chat room"))
		return
	}
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}

	deleted, err := h.store.ClearHistory(r.Context(), int64(req.RoomID))
	if err != nil {
		apperr.Write(w, h.log, apperr.Persistence(err))
		return
	}
	h.log.Info("chat history cleared", zap.Int64("room_id", int64(req.RoomID)),
		zap.Int64("user_id", id.UserID), zap.Int64("deleted", deleted))
	apperr.JSON(w, http.StatusOK, ClearResponse{
		Success:      true,
		Message:      "Chat history cleared successfully",
		DeletedCount: deleted,
	})
}
