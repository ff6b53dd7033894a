// Package notification records user notifications and pushes them to any
// live connection of the recipient. Only the database write decides success.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/metrics"
)

const eventNewNotification = "new_notification"

type Store interface {
	Insert(ctx context.Context, userID int64, typ, title, message string, data []byte) (*Notification, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]Notification, int, error)
	MarkRead(ctx context.Context, id, userID int64) (*Notification, error)
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

// Pusher delivers an event to a user's private channel. *chat.Hub satisfies it.
type Pusher interface {
	EmitToUser(userID int64, event string, data any) (int, error)
}

type Emitter struct {
	store  Store
	pusher Pusher
	log    *zap.Logger
}

func NewEmitter(store Store, pusher Pusher, log *zap.Logger) *Emitter {
	return &Emitter{store: store, pusher: pusher, log: log.Named("notification")}
}

// Create persists the notification, then tries to push it. A failed push is
// logged and never returned.
func (e *Emitter) Create(ctx context.Context, userID int64, typ, title, message string, data any) (*Notification, error) {
	var raw []byte
	if data != nil {
		var err error
		if raw, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("notification: encode data: %w", err)
		}
	}

	n, err := e.store.Insert(ctx, userID, typ, title, message, raw)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	metrics.Notifications.WithLabelValues("persisted").Inc()

	e.push(n)
	return n, nil
}

func (e *Emitter) push(n *Notification) {
	log := e.log.With(zap.Int64("user_id", n.UserID), zap.Int64("notification_id", n.ID))
	if e.pusher == nil {
		log.Debug("no realtime pusher configured")
		return
	}
	reached, err := e.pusher.EmitToUser(n.UserID, eventNewNotification, Live{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
		IsRead:    n.IsRead,
	})
	switch {
	case err != nil:
		metrics.Notifications.WithLabelValues("push_failed").Inc()
		log.Warn("realtime push failed", zap.Error(err))
	case reached == 0:
		log.Debug("recipient not connected")
	default:
		metrics.Notifications.WithLabelValues("pushed").Inc()
	}
}

// NotifyNewOrder tells a factory owner about an incoming order.
func (e *Emitter) NotifyNewOrder(ctx context.Context, factoryID int64, o OrderInfo) (*Notification, error) {
	title, message := newOrderText(o)
	return e.Create(ctx, factoryID, TypeNewOrder, title, message, map[string]any{
		"orderId":     o.ID,
		"vepariEmail": o.VepariEmail,
		"designId":    o.DesignID,
		"quantity":    o.Quantity,
	})
}

// NotifyOrderStatusUpdate tells a vepari their order moved to status.
func (e *Emitter) NotifyOrderStatusUpdate(ctx context.Context, vepariID int64, o OrderInfo, status string) (*Notification, error) {
	title, message := statusUpdateText(o, status)
	return e.Create(ctx, vepariID, TypeOrderStatusUpdate, title, message, map[string]any{
		"orderId":      o.ID,
		"factoryEmail": o.FactoryEmail,
		"designId":     o.DesignID,
		"status":       status,
	})
}

func newOrderText(o OrderInfo) (title, message string) {
	design := o.DesignNumber
	if design == "" {
		design = fmt.Sprint(o.DesignID)
	}
	title = fmt.Sprintf("New Order #%d", o.ID)
	message = fmt.Sprintf("You have received a new order from %s for %d units of Design %s.",
		o.VepariEmail, o.Quantity, design)
	return title, message
}

var statusMessages = map[string]string{
	"confirmed":   "Your order has been confirmed and is being prepared.",
	"in_progress": "Your order is now in progress.",
	"completed":   "Your order has been completed!",
	"cancelled":   "Your order has been cancelled.",
}

func statusUpdateText(o OrderInfo, status string) (title, message string) {
	label := status
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	title = fmt.Sprintf("Order #%d %s", o.ID, label)
	message, ok := statusMessages[status]
	if !ok {
		message = fmt.Sprintf("Your order status has been updated to %s.", status)
	}
	return title, message
}

const defaultPageSize = 20

func (e *Emitter) List(ctx context.Context, userID int64, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	items, total, err := e.store.List(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &Page{
		Notifications: items,
		Total:         total,
		Page:          page,
		TotalPages:    (total + limit - 1) / limit,
	}, nil
}

// MarkRead returns NotFound when the notification is missing or belongs to
// someone else.
func (e *Emitter) MarkRead(ctx context.Context, id, userID int64) (*Notification, error) {
	n, err := e.store.MarkRead(ctx, id, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Notification not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return n, nil
}

func (e *Emitter) MarkAllRead(ctx context.Context, userID int64) error {
	if _, err := e.store.MarkAllRead(ctx, userID); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (e *Emitter) UnreadCount(ctx context.Context, userID int64) (int, error) {
	n, err := e.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return n, nil
}
