package order

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var statuses = []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

func statusList() string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

const (
	minQuantity = 1
	maxQuantity = 10000

	defaultLimit = 20
)

// Order is an order row joined with its design and both parties' emails.
type Order struct {
	ID            int64     `json:"id"`
	VepariID      int64     `json:"vepari_id"`
	FactoryID     int64     `json:"factory_id"`
	DesignID      int64     `json:"design_id"`
	Quantity      int       `json:"quantity"`
	PrintingNote  *string   `json:"printing_note"`
	Status        Status    `json:"status"`
	OrderDate     time.Time `json:"order_date"`
	UpdatedAt     time.Time `json:"updated_at"`
	DesignNumber  string    `json:"design_number"`
	DesignImage   string    `json:"design_image"`
	ColorVariants *string   `json:"color_variants"`
	VepariEmail   string    `json:"vepari_email"`
	FactoryEmail  string    `json:"factory_email"`
}

type PlaceRequest struct {
	DesignID     int64  `json:"designId"`
	FactoryID    int64  `json:"factoryId"`
	Quantity     int    `json:"quantity"`
	PrintingNote string `json:"printingNote"`
}

type StatusRequest struct {
	Status Status `json:"status"`
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalOrders int  `json:"totalOrders"`
	HasMore     bool `json:"hasMore"`
}

type ListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type OrderResponse struct {
	Msg   string `json:"msg"`
	Order *Order `json:"order"`
}
