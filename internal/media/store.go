// Package media uploads images to Cloudinary. Every upload is bounded by a
// fixed timeout; exceeding it fails the enclosing operation.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUploadTimeout = errors.New("media: upload timed out")

var acceptedTypes = map[string]bool{
	"image/jpeg":  true,
	"image/jpg":   true,
	"image/png":   true,
	"image/webp":  true,
	"image/pjpeg": true,
	// Some mobile clients send images untyped.
	"application/octet-stream": true,
}

// Accepts reports whether an upload with this content type is stored.
func Accepts(contentType string) bool {
	return acceptedTypes[strings.ToLower(strings.TrimSpace(contentType))]
}

// Options describe where and how an image is stored.
type Options struct {
	Folder string
	// Transformation is an eager Cloudinary transformation string,
	// e.g. "c_fill,g_face,h_400,w_400".
	Transformation string
}

type Result struct {
	URL      string
	PublicID string
}

type Store struct {
	cld     *cloudinary.Cloudinary
	timeout time.Duration
	log     *zap.Logger
}

func NewStore(cloudinaryURL string, timeout time.Duration, log *zap.Logger) (*Store, error) {
	if cloudinaryURL == "" {
		return nil, errors.New("media: CLOUDINARY_URL is not set")
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("media: parse cloudinary url: %w", err)
	}
	return &Store{cld: cld, timeout: timeout, log: log.Named("media")}, nil
}

func (s *Store) Upload(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := uploader.UploadParams{
		PublicID:       uuid.NewString(),
		Folder:         opts.Folder,
		Transformation: opts.Transformation,
		ResourceType:   "image",
		Overwrite:      api.Bool(false),
	}
	start := time.Now()
	res, err := s.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.log.Warn("upload timed out", zap.Duration("timeout", s.timeout))
			return Result{}, ErrUploadTimeout
		}
		return Result{}, fmt.Errorf("media: upload: %w", err)
	}
	if res.Error.Message != "" {
		return Result{}, fmt.Errorf("media: upload rejected: %s", res.Error.Message)
	}
	s.log.Debug("uploaded", zap.String("public_id", res.PublicID), zap.Duration("took", time.Since(start)))
	return Result{URL: res.SecureURL, PublicID: res.PublicID}, nil
}
