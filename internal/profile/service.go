// Package profile serves a user's own profile, edits to it, profile pictures
// and the public view other users see.
package profile

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
	pictureFolder = "designguard/profile_pictures"
	// 400x400 face-centred crop, then automatic quality and format.
	pictureTransformation = "c_fill,g_face,h_400,w_400/q_auto,f_auto"
)

type Store interface {
	Get(ctx context.Context, userID int64) (*Profile, error)
	Update(ctx context.Context, userID int64, role identity.Role, req *UpdateRequest) error
	SetPicture(ctx context.Context, userID int64, role identity.Role, url string) error
}

type Uploader interface {
	Upload(ctx context.Context, r io.Reader, opts media.Options) (media.Result, error)
}

type Service struct {
	store    Store
	media    Uploader
	maxBytes int64
	log      *zap.Logger
}

func NewService(store Store, uploader Uploader, maxBytes int64, log *zap.Logger) *Service {
	return &Service{store: store, media: uploader, maxBytes: maxBytes, log: log.Named("profile")}
}

func (s *Service) get(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return p, nil
}

func (s *Service) Me(ctx context.Context, caller identity.Identity) (*Profile, error) {
	return s.get(ctx, caller.UserID)
}

// Public returns the fields any signed-in user may see.
func (s *Service) Public(ctx context.Context, userID int64) (*Profile, error) {
	p, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.public(), nil
}

func blank(s *string) bool { return s != nil && strings.TrimSpace(*s) == "" }

func (s *Service) Update(ctx context.Context, caller identity.Identity, req *UpdateRequest) error {
	if blank(req.FullName) {
		return apperr.Validation("Full name cannot be empty")
	}
	if blank(req.MobileNumber) {
		return apperr.Validation("Mobile number cannot be empty")
	}
	for _, n := range []*int{req.EstablishedYear, req.EmployeeCount} {
		if n != nil && *n < 0 {
			return apperr.Validation("Numeric fields cannot be negative")
		}
	}

	err := s.store.Update(ctx, caller.UserID, caller.Role, req)
	if apperr.IsUniqueViolation(err) {
		return apperr.Conflict("Mobile number already in use")
	}
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) UploadPicture(ctx context.Context, caller identity.Identity, pic *Picture) (*PictureResult, error) {
	if pic == nil {
		return nil, apperr.Validation("No image file provided")
	}
	if !media.Accepts(pic.ContentType) {
		return nil, apperr.Validation("Only JPEG, PNG, and WebP images are allowed")
	}
	if s.maxBytes > 0 && pic.Size > s.maxBytes {
		return nil, apperr.Validation(fmt.Sprintf("Image must be %dMB or smaller", s.maxBytes>>20))
	}

	res, err := s.media.Upload(ctx, pic.Body, media.Options{
		Folder:         pictureFolder,
		Transformation: pictureTransformation,
	})
	if errors.Is(err, media.ErrUploadTimeout) {
		return nil, apperr.Wrap(apperr.KindInternal, "Image upload timed out. Please try again.", err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "Failed to upload profile picture", err)
	}

	err = s.store.SetPicture(ctx, caller.UserID, caller.Role, res.URL)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("Profile not found. Please complete your profile first.")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	s.log.Info("profile picture updated", zap.Int64("user_id", caller.UserID))
	return &PictureResult{ProfilePictureURL: res.URL, CloudinaryPublicID: res.PublicID}, nil
}
