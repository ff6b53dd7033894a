// Package access manages vepari requests to view a factory's catalog and the
// factory's time-bounded approvals of them.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

type Store interface {
	Factories(ctx context.Context, vepariID int64) ([]Factory, error)
	IsFactory(ctx context.Context, userID int64) (bool, error)
	Upsert(ctx context.Context, vepariID, factoryID int64) (*Request, error)
	Pending(ctx context.Context, factoryID int64) ([]PendingRequest, error)
	Get(ctx context.Context, id int64) (*Request, error)
	SetStatus(ctx context.Context, id int64, status Status, granted, expires *time.Time) (*Request, error)
	HasApproved(ctx context.Context, vepariID, factoryID int64) (bool, error)
}

type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log.Named("access"), now: time.Now}
}

func (s *Service) Factories(ctx context.Context, caller identity.Identity) ([]Factory, error) {
	if !caller.Role.CanRequestAccess() {
		return nil, apperr.Authorization("Only veparis can browse factories")
	}
	out, err := s.store.Factories(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return out, nil
}

func (s *Service) RequestAccess(ctx context.Context, caller identity.Identity, factoryID int64) (*Request, error) {
	if !caller.Role.CanRequestAccess() {
		return nil, apperr.Authorization("Only veparis can request access")
	}
	if factoryID <= 0 {
		return nil, apperr.Validation("Factory ID is required")
	}
	ok, err := s.store.IsFactory(ctx, factoryID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if !ok {
		return nil, apperr.NotFound("Factory not found")
	}

	req, err := s.store.Upsert(ctx, caller.UserID, factoryID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("access requested", zap.Int64("vepari_id", caller.UserID), zap.Int64("factory_id", factoryID))
	return req, nil
}

func (s *Service) Pending(ctx context.Context, caller identity.Identity) ([]PendingRequest, error) {
	if !caller.Role.CanRespondToAccess() {
		return nil, apperr.Authorization("Only factory owners can view access requests")
	}
	out, err := s.store.Pending(ctx, caller.UserID)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return out, nil
}

// Respond approves or rejects a request addressed to the calling factory.
// Approval lasts durationDays from now (1..365), seven when unset.
func (s *Service) Respond(ctx context.Context, caller identity.Identity, requestID int64, in *RespondRequest) (*Request, error) {
	if !caller.Role.CanRespondToAccess() {
		return nil, apperr.Authorization("Only factory owners can respond to access requests")
	}
	if in.Status != StatusApproved && in.Status != StatusRejected {
		return nil, apperr.Validation("Status must be approved or rejected")
	}
	days := defaultDurationDays
	if in.DurationDays != nil {
		days = *in.DurationDays
	}
	if days <= 0 || days > maxDurationDays {
		return nil, apperr.Validation(fmt.Sprintf("durationDays must be between 1 and %d", maxDurationDays))
	}

	req, err := s.store.Get(ctx, requestID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Request not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if req.FactoryID != caller.UserID {
		return nil, apperr.Authorization("Access denied")
	}

	var granted, expires *time.Time
	if in.Status == StatusApproved {
		now := s.now()
		until := now.AddDate(0, 0, days)
		granted, expires = &now, &until
	}
	updated, err := s.store.SetStatus(ctx, requestID, in.Status, granted, expires)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("access decided",
		zap.Int64("request_id", requestID),
		zap.String("status", string(in.Status)),
		zap.Int("days", days))
	return updated, nil
}

// HasApprovedAccess is the catalog gate shared by design listing and order
// placement.
func (s *Service) HasApprovedAccess(ctx context.Context, vepariID, factoryID int64) (bool, error) {
	ok, err := s.store.HasApproved(ctx, vepariID, factoryID)
	if err != nil {
		return false, apperr.Persistence(err)
	}
	return ok, nil
}
