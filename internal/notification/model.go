package notification

import (
	"encoding/json"
	"time"
)

const (
	TypeNewOrder          = "new_order"
	TypeOrderStatusUpdate = "order_status_update"
)

type Notification struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
}

// Live is the payload of a new_notification push.
type Live struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	IsRead    bool            `json:"isRead"`
}

// OrderInfo carries what the order templates print.
type OrderInfo struct {
	ID           int64
	VepariEmail  string
	FactoryEmail string
	DesignID     int64
	DesignNumber string
	Quantity     int
}

type Page struct {
	Notifications []Notification
	Total         int
	Page          int
	TotalPages    int
}

type ListResponse struct {
	Success       bool           `json:"success"`
	Notifications []Notification `json:"notifications"`
	Pagination    struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
		Total       int `json:"total"`
	} `json:"pagination"`
}
