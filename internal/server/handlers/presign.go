package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/soundbarn/audiorelay/internal/server/middleware"
	"github.com/soundbarn/audiorelay/pkg/mediastore"
)

// UploadPresigner mints presigned upload targets for object keys.
type UploadPresigner interface {
	UploadURL(ctx context.Context, key string) (*mediastore.UploadTarget, error)
}

// PresignHandler serves GET /uploads/presign?key=<object key>.
type PresignHandler struct {
	store UploadPresigner
}

// NewPresignHandler wires the presign endpoint to a media store.
func NewPresignHandler(store UploadPresigner) *PresignHandler {
	return &PresignHandler{store: store}
}

func (h *PresignHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_REQUEST", "query parameter 'key' is required", nil)
		return
	}

	target, err := h.store.UploadURL(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, mediastore.ErrKeyNotAllowed):
			middleware.WriteError(w, r, http.StatusForbidden,
				"KEY_NOT_ALLOWED", "object key is outside the allowed upload patterns",
				map[string]any{"key": key})
		case errors.Is(err, mediastore.ErrAccessDenied):
			middleware.WriteError(w, r, http.StatusForbidden,
				"ACCESS_DENIED", "storage denied the presign request", nil)
		default:
			middleware.WriteError(w, r, http.StatusBadGateway,
				"STORE_UNAVAILABLE", "could not mint upload URL", nil)
		}
		return
	}

	writeJSON(w, http.StatusOK, target)
}
