package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"designguard/internal/metrics"
	"designguard/internal/ratelimit"
)

var errNotObject = errors.New("chat: payload is not an object")

// RoomStore is the persistence the relay needs; *Repository satisfies it.
type RoomStore interface {
	ResolveParticipants(ctx context.Context, a, b int64) (vepariID, factoryID int64, err error)
	UpsertRoom(ctx context.Context, vepariID, factoryID int64) (*Room, error)
	GetRoom(ctx context.Context, roomID int64) (*Room, error)
	SaveMessage(ctx context.Context, roomID, senderID int64, text string) (int64, time.Time, error)
	MarkRead(ctx context.Context, roomID, userID int64) (int64, error)
}

type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Relay handles the events of authenticated connections. Handlers never
// return errors: failures become an error event for the sender or are
// logged and dropped.
type Relay struct {
	hub     *Hub
	store   RoomStore
	limiter Limiter
	log     *zap.Logger
	now     func() time.Time
}

// NewRelay builds a relay; limiter may be nil.
func NewRelay(hub *Hub, store RoomStore, limiter Limiter, log *zap.Logger) *Relay {
	return &Relay{hub: hub, store: store, limiter: limiter, log: log.Named("chat"), now: time.Now}
}

func (r *Relay) Dispatch(ctx context.Context, c *Client, raw []byte) {
	defer func() {
		if p := recover(); p != nil {
			c.log.Error("event handler panicked", zap.Any("panic", p))
			r.emitError(c, "Server Error")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		r.emitError(c, "Invalid payload format")
		return
	}

	switch env.Event {
	case EventJoinRoom:
		r.joinRoom(ctx, c, env.Data)
	case EventSendMessage:
		r.sendMessage(ctx, c, env.Data)
	case EventTyping:
		r.typing(c, env.Data, EventUserTyping)
	case EventStopTyping:
		r.typing(c, env.Data, EventUserStoppedTyping)
	case EventChatCleared:
		r.chatCleared(ctx, c, env.Data)
	case EventMarkMessagesRead:
		r.markRead(ctx, c, env.Data)
	default:
		r.emitError(c, "Unknown event")
	}
}

func decodeObject(data json.RawMessage, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return errNotObject
	}
	return json.Unmarshal(data, v)
}

func (r *Relay) emit(c *Client, event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		c.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := r.hub.SendToClient(c, payload); err != nil {
		c.log.Debug("emit dropped", zap.String("event", event), zap.Error(err))
	}
}

func (r *Relay) emitError(c *Client, msg string) {
	r.emit(c, EventError, ErrorEvent{Message: msg})
}

func (r *Relay) broadcast(room, event string, data any, exclude *Client) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	return r.hub.BroadcastRoom(room, payload, exclude)
}

func (r *Relay) joinRoom(ctx context.Context, c *Client, data json.RawMessage) {
	var p pairPayload
	if err := decodeObject(data, &p); err != nil {
		r.emitError(c, "Invalid payload format")
		return
	}
	if p.VepariID <= 0 || p.FactoryID <= 0 {
		r.emitError(c, "Missing vepariId or factoryId")
		return
	}
	a, b := int64(p.VepariID), int64(p.FactoryID)
	if c.UserID != a && c.UserID != b {
		c.log.Warn("unauthorized room join", zap.Int64("a", a), zap.Int64("b", b))
		r.emitError(c, "Unauthorized to join this room")
		return
	}

	vepariID, factoryID, err := r.store.ResolveParticipants(ctx, a, b)
	switch {
	case errors.Is(err, ErrInvalidUsers):
		r.emitError(c, "Invalid user IDs")
		return
	case errors.Is(err, ErrInvalidRoles):
		r.emitError(c, "Invalid user roles")
		return
	case err != nil:
		c.log.Error("resolve participants", zap.Error(err))
		r.emitError(c, "Failed to join room")
		return
	}

	room, err := r.store.UpsertRoom(ctx, vepariID, factoryID)
	if err != nil {
		c.log.Error("upsert room", zap.Error(err))
		r.emitError(c, "Failed to join room")
		return
	}
	name := room.Name()
	if err := r.hub.Join(c, name); err != nil {
		return
	}
	c.currentRoom = room
	c.joined[keyFor(vepariID, factoryID)] = name

	r.emit(c, EventRoomJoined, RoomJoined{
		RoomName: name,
		RoomID:   room.ID,
		Message:  "Successfully joined chat room",
	})
	c.log.Debug("joined room", zap.String("room", name), zap.Int64("room_id", room.ID))
}

func (r *Relay) reject(c *Client, msg string) {
	metrics.ChatMessages.WithLabelValues("rejected").Inc()
	r.emitError(c, msg)
}

func (r *Relay) allow(ctx context.Context, c *Client) bool {
	if r.limiter == nil {
		return true
	}
	ok, _ := r.limiter.Allow(ctx, strconv.FormatInt(c.UserID, 10), ratelimit.RuleChatMessage)
	return ok
}

func (r *Relay) sendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var p sendMessagePayload
	if err := decodeObject(data, &p); err != nil {
		r.reject(c, "Invalid payload format")
		return
	}
	if p.Message == "" || p.VepariID <= 0 || p.FactoryID <= 0 {
		r.reject(c, "Missing required fields")
		return
	}
	room := c.currentRoom
	if room == nil {
		r.reject(c, "Not in any room")
		return
	}
	text := strings.TrimSpace(p.Message)
	if text == "" {
		r.reject(c, "Message cannot be empty")
		return
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		r.reject(c, "Message too long")
		return
	}
	if !r.allow(ctx, c) {
		r.reject(c, "Too many messages")
		return
	}

	id, createdAt, err := r.store.SaveMessage(ctx, room.ID, c.UserID, text)
	if err != nil {
		metrics.ChatMessages.WithLabelValues("failed").Inc()
		c.log.Error("save message", zap.Int64("room_id", room.ID), zap.Error(err))
		r.emitError(c, "Failed to send message")
		return
	}

	msg := ReceiveMessage{
		ID:          id,
		Message:     text,
		SenderID:    c.UserID,
		SenderEmail: c.Email,
		SenderRole:  c.Role.String(),
		Timestamp:   createdAt,
		RoomID:      room.ID,
	}
	if err := r.broadcast(room.Name(), EventReceiveMessage, msg, nil); err != nil {
		c.log.Warn("broadcast message", zap.Error(err))
	}
	metrics.ChatMessages.WithLabelValues("sent").Inc()
}

// typing relays an advisory signal to the other members of a room this
// connection has joined. Anything else is dropped.
func (r *Relay) typing(c *Client, data json.RawMessage, out string) {
	var p pairPayload
	if err := decodeObject(data, &p); err != nil || p.VepariID <= 0 || p.FactoryID <= 0 {
		c.log.Debug("dropping malformed typing signal", zap.String("event", out))
		return
	}
	name, ok := c.joined[keyFor(int64(p.VepariID), int64(p.FactoryID))]
	if !ok {
		c.log.Debug("dropping typing signal for unjoined room")
		return
	}
	ev := UserTyping{UserID: c.UserID, UserEmail: c.Email, RoomName: name}
	if err := r.broadcast(name, out, ev, c); err != nil {
		c.log.Debug("typing broadcast dropped", zap.Error(err))
	}
}

func (r *Relay) chatCleared(ctx context.Context, c *Client, data json.RawMessage) {
	var p roomPayload
	if err := decodeObject(data, &p); err != nil || p.RoomID <= 0 {
		c.log.Debug("dropping malformed chat_cleared")
		return
	}
	room, err := r.store.GetRoom(ctx, int64(p.RoomID))
	if err != nil {
		if !errors.Is(err, ErrRoomNotFound) {
			c.log.Error("load room for chat_cleared", zap.Error(err))
		}
		return
	}
	if !room.HasParticipant(c.UserID) {
		c.log.Warn("chat_cleared from non-participant", zap.Int64("room_id", room.ID))
		return
	}
	ev := ChatCleared{
		RoomID:         room.ID,
		ClearedBy:      c.UserID,
		ClearedByEmail: c.Email,
		Timestamp:      r.now(),
	}
	if err := r.broadcast(room.Name(), EventChatCleared, ev, nil); err != nil {
		c.log.Debug("chat_cleared broadcast dropped", zap.Error(err))
	}
}

func (r *Relay) markRead(ctx context.Context, c *Client, data json.RawMessage) {
	var p roomPayload
	if err := decodeObject(data, &p); err != nil {
		r.emitError(c, "Invalid payload format")
		return
	}
	if p.RoomID <= 0 {
		r.emitError(c, "Room ID required")
		return
	}
	if _, err := r.store.MarkRead(ctx, int64(p.RoomID), c.UserID); err != nil {
		c.log.Error("mark messages read", zap.Error(err))
		r.emitError(c, "Failed to mark messages as read")
		return
	}
	r.emit(c, EventMessagesMarkedRead, MessagesMarkedRead{RoomID: int64(p.RoomID)})
}
