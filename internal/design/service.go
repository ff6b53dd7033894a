// Package design is a factory's catalog: numbered designs with one image
// each, visible to the owning factory and to veparis holding approved access.
package design

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/media"
)

const (
	uploadFolder = "designguard_designs"

	defaultLimit = 10
	maxLimit     = 50
)

const msgDuplicate = "Design number already exists for this factory"

type Store interface {
	NumberTaken(ctx context.Context, factoryID int64, number string, exceptID int64) (bool, error)
	Create(ctx context.Context, factoryID int64, number, imageURL, colorVariants string) (*Design, error)
	Get(ctx context.Context, id int64) (*Design, error)
	List(ctx context.Context, factoryID int64, limit, offset int) ([]Design, int, error)
	Update(ctx context.Context, d *Design) (*Design, error)
	Delete(ctx context.Context, id int64) error
}

type Uploader interface {
	Upload(ctx context.Context, r io.Reader, opts media.Options) (media.Result, error)
}

type AccessChecker interface {
	HasApprovedAccess(ctx context.Context, vepariID, factoryID int64) (bool, error)
}

type Service struct {
	store    Store
	access   AccessChecker
	media    Uploader
	maxBytes int64
	log      *zap.Logger
}

func NewService(store Store, access AccessChecker, uploader Uploader, maxBytes int64, log *zap.Logger) *Service {
	return &Service{store: store, access: access, media: uploader, maxBytes: maxBytes, log: log.Named("design")}
}

func (s *Service) checkImage(img *Image) error {
	if !media.Accepts(img.ContentType) {
		return apperr.Validation("Only JPEG, PNG, and WebP images are allowed")
	}
	if s.maxBytes > 0 && img.Size > s.maxBytes {
		return apperr.Validation(fmt.Sprintf("Image must be %dMB or smaller", s.maxBytes>>20))
	}
	return nil
}

func (s *Service) upload(ctx context.Context, img *Image) (string, error) {
	res, err := s.media.Upload(ctx, img.Body, media.Options{Folder: uploadFolder})
	if errors.Is(err, media.ErrUploadTimeout) {
		return "", apperr.Wrap(apperr.KindInternal, "Image upload timed out. Please try again.", err)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "Image upload failed", err)
	}
	return res.URL, nil
}

func (s *Service) numberTaken(ctx context.Context, factoryID int64, number string, exceptID int64) error {
	taken, err := s.store.NumberTaken(ctx, factoryID, number, exceptID)
	if err != nil {
		return apperr.Persistence(err)
	}
	if taken {
		return apperr.Conflict(msgDuplicate)
	}
	return nil
}

func storeErr(err error) error {
	if apperr.IsUniqueViolation(err) {
		return apperr.Conflict(msgDuplicate)
	}
	return apperr.Persistence(err)
}

func (s *Service) Create(ctx context.Context, caller identity.Identity, in *CreateInput) (*Design, error) {
	if !caller.Role.CanPublishDesigns() {
		return nil, apperr.Authorization("Only factory owners can upload designs")
	}
	number := strings.TrimSpace(in.DesignNumber)
	if number == "" {
		return nil, apperr.Validation("Design number is required")
	}
	if in.Image == nil {
		return nil, apperr.Validation("No image uploaded")
	}
	if err := s.checkImage(in.Image); err != nil {
		return nil, err
	}
	if err := s.numberTaken(ctx, caller.UserID, number, 0); err != nil {
		return nil, err
	}

	url, err := s.upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}
	d, err := s.store.Create(ctx, caller.UserID, number, url, strings.TrimSpace(in.ColorVariants))
	if err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("design created", zap.Int64("factory_id", caller.UserID), zap.Int64("design_id", d.ID))
	return d, nil
}

// List pages through factoryID's catalog. The owning factory always sees it;
// a vepari needs approved, unexpired access.
func (s *Service) List(ctx context.Context, caller identity.Identity, factoryID int64, page, limit int) (*ListResponse, error) {
	if page < 1 || limit < 1 || limit > maxLimit {
		return nil, apperr.Validation("Invalid pagination parameters. Page must be >= 1, limit must be 1-50")
	}
	if caller.UserID != factoryID {
		if !caller.Role.CanRequestAccess() {
			return nil, apperr.Authorization("Access denied")
		}
		ok, err := s.access.HasApprovedAccess(ctx, caller.UserID, factoryID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Authorization("You need approved access to view this factory's designs")
		}
	}

	designs, total, err := s.store.List(ctx, factoryID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &ListResponse{Designs: designs, Pagination: paginate(page, limit, total)}, nil
}

func (s *Service) owned(ctx context.Context, caller identity.Identity, id int64, verb string) (*Design, error) {
	if !caller.Role.CanPublishDesigns() {
		return nil, apperr.Authorization("Only factory owners can " + verb + " designs")
	}
	d, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Design not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if d.FactoryID != caller.UserID {
		return nil, apperr.Authorization("Unauthorized")
	}
	return d, nil
}

func (s *Service) Update(ctx context.Context, caller identity.Identity, id int64, in *UpdateInput) (*Design, error) {
	d, err := s.owned(ctx, caller, id, "update")
	if err != nil {
		return nil, err
	}
	number := strings.TrimSpace(in.DesignNumber)
	colors := strings.TrimSpace(in.ColorVariants)
	if number == "" && colors == "" && in.Image == nil {
		return nil, apperr.Validation("At least one field must be updated")
	}

	if number != "" && number != d.DesignNumber {
		if err := s.numberTaken(ctx, caller.UserID, number, id); err != nil {
			return nil, err
		}
		d.DesignNumber = number
	}
	if colors != "" {
		d.ColorVariants = &colors
	}
	if in.Image != nil {
		if err := s.checkImage(in.Image); err != nil {
			return nil, err
		}
		url, err := s.upload(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		d.ImageURL = url
	}

	updated, err := s.store.Update(ctx, d)
	if err != nil {
		return nil, storeErr(err)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, caller identity.Identity, id int64) error {
	if _, err := s.owned(ctx, caller, id, "delete"); err != nil {
		return err
	}
	err := s.store.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("Design not found")
	}
	if err != nil {
		return apperr.Persistence(err)
	}
	s.log.Info("design deleted", zap.Int64("design_id", id))
	return nil
}
