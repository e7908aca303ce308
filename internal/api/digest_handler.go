package api

import (
	"net/http"
	"strconv"

	"regpulse/internal/domain/digest"
	applog "regpulse/internal/platform/log"
)

const defaultDigestLimit = 20

// DigestHandler 摘要查询接口
type DigestHandler struct {
	store *digest.Store
}

// NewDigestHandler 创建摘要 handler
func NewDigestHandler(store *digest.Store) *DigestHandler {
	return &DigestHandler{store: store}
}

// HandleList GET /v1/digests?limit=N
func (h *DigestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultDigestLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	digests, err := h.store.ListRecent(limit)
	if err != nil {
		applog.Error("[API/Digest] Failed to list digests", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load digests")
		return
	}
	if digests == nil {
		digests = []digest.Digest{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"digests": digests,
		"count":   len(digests),
	})
}
