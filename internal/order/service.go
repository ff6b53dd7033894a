// Package order handles veparis ordering printed designs from factories and
// factories moving those orders through their lifecycle.
package order

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/notification"
)

type Store interface {
	DesignOf(ctx context.Context, designID, factoryID int64) (bool, error)
	Create(ctx context.Context, vepariID int64, in *PlaceRequest, note *string) (int64, error)
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, caller identity.Identity, status Status, limit, offset int) ([]Order, int, error)
	SetStatus(ctx context.Context, id, factoryID int64, status Status) error
}

type AccessChecker interface {
	HasApprovedAccess(ctx context.Context, vepariID, factoryID int64) (bool, error)
}

// Notifier is satisfied by *notification.Emitter.
type Notifier interface {
	NotifyNewOrder(ctx context.Context, factoryID int64, o notification.OrderInfo) (*notification.Notification, error)
	NotifyOrderStatusUpdate(ctx context.Context, vepariID int64, o notification.OrderInfo, status string) (*notification.Notification, error)
}

type Service struct {
	store    Store
	access   AccessChecker
	notifier Notifier
	log      *zap.Logger
}

func NewService(store Store, access AccessChecker, notifier Notifier, log *zap.Logger) *Service {
	return &Service{store: store, access: access, notifier: notifier, log: log.Named("order")}
}

func info(o *Order) notification.OrderInfo {
	return notification.OrderInfo{
		ID:           o.ID,
		VepariEmail:  o.VepariEmail,
		FactoryEmail: o.FactoryEmail,
		DesignID:     o.DesignID,
		DesignNumber: o.DesignNumber,
		Quantity:     o.Quantity,
	}
}

func (s *Service) Place(ctx context.Context, caller identity.Identity, in *PlaceRequest) (*Order, error) {
	if !caller.Role.CanPlaceOrders() {
		return nil, apperr.Authorization("Only veparis can place orders")
	}
	if in.DesignID <= 0 || in.FactoryID <= 0 || in.Quantity == 0 {
		return nil, apperr.Validation("Design ID, Factory ID, and Quantity are required")
	}
	if in.Quantity < minQuantity || in.Quantity > maxQuantity {
		return nil, apperr.Validation("Quantity must be between 1 and 10000")
	}

	ok, err := s.store.DesignOf(ctx, in.DesignID, in.FactoryID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !ok {
		return nil, apperr.NotFound("Design not found or does not belong to the specified factory")
	}
	allowed, err := s.access.HasApprovedAccess(ctx, caller.UserID, in.FactoryID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.Authorization("You need approved access to place orders with this factory. Please request access first.")
	}

	var note *string
	if n := strings.TrimSpace(in.PrintingNote); n != "" {
		note = &n
	}
	id, err := s.store.Create(ctx, caller.UserID, in, note)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.Int64("vepari_id", o.VepariID),
		zap.Int64("factory_id", o.FactoryID))

	if _, err := s.notifier.NotifyNewOrder(ctx, o.FactoryID, info(o)); err != nil {
		s.log.Warn("new order notification failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, caller identity.Identity, status Status, page, limit int) (*ListResponse, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("Invalid status. Must be one of: " + statusList())
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	orders, total, err := s.store.List(ctx, caller, status, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	pages := (total + limit - 1) / limit
	return &ListResponse{
		Orders: orders,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  pages,
			TotalOrders: total,
			HasMore:     page < pages,
		},
	}, nil
}

// Get returns an order to either of its two parties.
func (s *Service) Get(ctx context.Context, caller identity.Identity, id int64) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if o.VepariID != caller.UserID && o.FactoryID != caller.UserID {
		return nil, apperr.Authorization("Access denied")
	}
	return o, nil
}

func (s *Service) UpdateStatus(ctx context.Context, caller identity.Identity, id int64, status Status) (*Order, error) {
	if !caller.Role.CanManageOrders() {
		return nil, apperr.Authorization("Only factory owners can update order status")
	}
	if !status.Valid() {
		return nil, apperr.Validation("Invalid status. Must be one of: " + statusList())
	}

	err := s.store.SetStatus(ctx, id, caller.UserID, status)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Order not found or access denied")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Persistence(err)
	}

	if _, err := s.notifier.NotifyOrderStatusUpdate(ctx, o.VepariID, info(o), string(status)); err != nil {
		s.log.Warn("status notification failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	return o, nil
}
