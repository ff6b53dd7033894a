package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound events.
const (
	EventJoinRoom         = "join_room"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventChatCleared      = "chat_cleared"
	EventMarkMessagesRead = "mark_messages_read"
)

// Outbound events.
const (
	EventRoomJoined         = "room_joined"
	EventReceiveMessage     = "receive_message"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMessagesMarkedRead = "messages_marked_read"
	EventNewNotification    = "new_notification"
	EventError              = "error"
)

const maxMessageRunes = 2000

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds the wire form of an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// ID accepts both JSON numbers and numeric strings; browser clients send
// either depending on where the value came from.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("chat: invalid id %q", b)
	}
	*id = ID(n)
	return nil
}

type pairPayload struct {
	VepariID  ID `json:"vepariId"`
	FactoryID ID `json:"factoryId"`
}

type sendMessagePayload struct {
	Message   string `json:"message"`
	VepariID  ID     `json:"vepariId"`
	FactoryID ID     `json:"factoryId"`
}

type roomPayload struct {
	RoomID ID `json:"roomId"`
}

type RoomJoined struct {
	RoomName string `json:"roomName"`
	RoomID   int64  `json:"roomId"`
	Message  string `json:"message"`
}

type ReceiveMessage struct {
	ID          int64     `json:"id"`
	Message     string    `json:"message"`
	SenderID    int64     `json:"senderId"`
	SenderEmail string    `json:"senderEmail"`
	SenderRole  string    `json:"senderRole"`
	Timestamp   time.Time `json:"timestamp"`
	RoomID      int64     `json:"roomId"`
}

type UserTyping struct {
	UserID    int64  `json:"userId"`
	UserEmail string `json:"userEmail"`
	RoomName  string `json:"roomName"`
}

type MessagesMarkedRead struct {
	RoomID int64 `json:"roomId"`
}

type ChatCleared struct {
	RoomID         int64     `json:"roomId"`
	ClearedBy      int64     `json:"clearedBy"`
	ClearedByEmail string    `json:"clearedByEmail"`
	Timestamp      time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// Room is a conversation between exactly one vepari and one factory owner.
type Room struct {
	ID            int64      `json:"id"`
	VepariID      int64      `json:"vepari_id"`
	FactoryID     int64      `json:"factory_id"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (r *Room) HasParticipant(userID int64) bool {
	return r.VepariID == userID || r.FactoryID == userID
}

func (r *Room) Name() string { return roomName(r.VepariID, r.FactoryID) }

func roomName(vepariID, factoryID int64) string {
	return fmt.Sprintf("room_%d_%d", vepariID, factoryID)
}

// RoomSummary is a room as listed for one participant.
type RoomSummary struct {
	Room
	FactoryEmail string `json:"factory_email,omitempty"`
	FactoryName  string `json:"factory_name,omitempty"`
	VepariEmail  string `json:"vepari_email,omitempty"`
	VepariName   string `json:"vepari_name,omitempty"`
	UnreadCount  int    `json:"unread_count"`
}

type Message struct {
	ID          int64     `json:"id"`
	MessageText string    `json:"message_text"`
	SenderID    int64     `json:"sender_id"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
	SenderEmail string    `json:"sender_email"`
	SenderRole  string    `json:"sender_role"`
}

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalMessages int  `json:"totalMessages"`
	HasMore       bool `json:"hasMore"`
}

type HistoryResponse struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
	RoomInfo   *Room      `json:"roomInfo"`
}

type RoomRequest struct {
	VepariID  ID `json:"vepariId"`
	FactoryID ID `json:"factoryId"`
}

type ClearRequest struct {
	RoomID ID `json:"roomId"`
}

type ClearResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}
