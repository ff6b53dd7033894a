package design

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"designguard/internal/apperr"
	"designguard/internal/identity"
)

// formOverhead leaves room for the text fields next to the image.
const formOverhead = 1 << 20

type Handler struct {
	service  *Service
	maxBytes int64
	log      *zap.Logger
}

func NewHandler(s *Service, maxBytes int64, log *zap.Logger) *Handler {
	return &Handler{service: s, maxBytes: maxBytes, log: log.Named("design.http")}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		apperr.Write(w, h.log, apperr.Authentication("No token, authorization denied"))
	}
	return id, ok
}

// parseForm reads a multipart body and returns the optional "image" part.
// The returned cleanup must be called once the image is consumed.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*Image, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	err := r.ParseMultipartForm(h.maxBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		// Urlencoded text-only edits have already been parsed.
		return nil, func() {}, nil
	}
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, nil, apperr.Validation("File too large")
		}
		return nil, nil, apperr.Validation("Invalid multipart form")
	}
	cleanup := func() { r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, cleanup, nil
	}
	if err != nil {
		cleanup()
		return nil, nil, apperr.Validation("Invalid image upload")
	}
	return &Image{Body: file, ContentType: header.Header.Get("Content-Type"), Size: header.Size},
		func() { file.Close(); cleanup() }, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid design ID")
	}
	return id, nil
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	img, cleanup, err := h.parseForm(w, r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	defer cleanup()

	d, err := h.service.Create(r.Context(), id, &CreateInput{
		DesignNumber:  r.FormValue("design_number"),
		ColorVariants: r.FormValue("color_variants"),
		Image:         img,
	})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusCreated, d)
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n == 0 {
		return def
	}
	return n
}

// List serves GET /api/designs/{id}, where id names the factory. The route
// shares its parameter name with update and delete.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	factoryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		apperr.Write(w, h.log, apperr.Validation("Invalid factory ID"))
		return
	}
	res, err := h.service.List(r.Context(), id, factoryID, queryInt(r, "page", 1), queryInt(r, "limit", defaultLimit))
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, res)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	designID, err := pathID(r, "id")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	img, cleanup, err := h.parseForm(w, r)
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	defer cleanup()

	d, err := h.service.Update(r.Context(), id, designID, &UpdateInput{
		DesignNumber:  r.FormValue("design_number"),
		ColorVariants: r.FormValue("color_variants"),
		Image:         img,
	})
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, d)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	designID, err := pathID(r, "id")
	if err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	if err := h.service.Delete(r.Context(), id, designID); err != nil {
		apperr.Write(w, h.log, err)
		return
	}
	apperr.JSON(w, http.StatusOK, map[string]any{"success": true, "msg": "Design deleted successfully"})
}
