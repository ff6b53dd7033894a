package design

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"designguard/internal/identity"
	"designguard/internal/media"
)

func newTestRouter(t *testing.T, as identity.Identity) (http.Handler, *memStore) {
	t.Helper()
	store := newMemStore()
	h := NewHandler(newTestService(store, &fakeUploader{}), 5<<20, zap.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), as)))
		})
	})
	r.Post("/api/designs", h.Create)
	r.Get("/api/designs/{id}", h.List)
	r.Put("/api/designs/{id}", h.Update)
	r.Delete("/api/designs/{id}", h.Delete)
	return r, store
}

func multipartBody(t *testing.T, fields map[string]string, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if contentType != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="image"; filename="d.png"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte("\x89PNG fake"))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestCreateHandler(t *testing.T) {
	router, store := newTestRouter(t, owner)

	body, ct := multipartBody(t, map[string]string{"design_number": "D-9", "color_variants": "red"}, "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/designs", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var d Design
	json.NewDecoder(rec.Body).Decode(&d)
	if d.DesignNumber != "D-9" || len(store.designs) != 1 {
		t.Fatalf("got %+v", d)
	}

	body, ct = multipartBody(t, map[string]string{"design_number": "D-10"}, "image/gif")
	req = httptest.NewRequest(http.MethodPost, "/api/designs", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Only JPEG, PNG, and WebP images are allowed") {
		t.Fatalf("gif status = %d body=%s", rec.Code, rec.Body)
	}

	body, ct = multipartBody(t, map[string]string{"design_number": "D-11"}, "")
	req = httptest.NewRequest(http.MethodPost, "/api/designs", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "No image uploaded") {
		t.Fatalf("no image status = %d body=%s", rec.Code, rec.Body)
	}
}

func TestListHandlerPaginationDefaults(t *testing.T) {
	router, _ := newTestRouter(t, owner)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/designs/10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var res ListResponse
	json.NewDecoder(rec.Body).Decode(&res)
	if res.Pagination.Limit != defaultLimit || res.Pagination.CurrentPage != 1 || res.Designs == nil {
		t.Fatalf("got %+v", res)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/designs/10?limit=100", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit=100 status = %d", rec.Code)
	}
}

func TestUpdateHandlerAcceptsTextOnlyForm(t *testing.T) {
	router, store := newTestRouter(t, owner)
	store.Create(context.Background(), owner.UserID, "A", "https://cdn.test/a.png", "")

	req := httptest.NewRequest(http.MethodPut, "/api/designs/1", strings.NewReader("design_number=A2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if store.designs[1].DesignNumber != "A2" {
		t.Fatalf("stored = %+v", store.designs[1])
	}
}

func TestDeleteHandler(t *testing.T) {
	router, store := newTestRouter(t, owner)
	store.Create(context.Background(), owner.UserID, "A", "https://cdn.test/a.png", "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/designs/1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Design deleted successfully") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/designs/x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}

func TestCreateHandlerUploadTimeout(t *testing.T) {
	store := newMemStore()
	h := NewHandler(newTestService(store, &fakeUploader{UploadFunc: func() (media.Result, error) {
		return media.Result{}, media.ErrUploadTimeout
	}}), 5<<20, zap.NewNop())

	body, ct := multipartBody(t, map[string]string{"design_number": "D-1"}, "image/png")
	req := httptest.NewRequest(http.MethodPost, "/api/designs", body)
	req.Header.Set("Content-Type", ct)
	req = req.WithContext(identity.WithIdentity(req.Context(), owner))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	var resp struct {
		Success bool   `json:"success"`
		Msg     string `json:"msg"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusInternalServerError || resp.Msg != "Image upload timed out. Please try again." {
		t.Fatalf("status = %d body = %+v", rec.Code, resp)
	}
	if len(store.designs) != 0 {
		t.Fatal("design stored after timeout")
	}
}
