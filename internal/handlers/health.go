package handlers

import (
	"encoding/json"
	"net/http"
)

// HealthHandler responds with preview server health information.
type HealthHandler struct {
	Blobs BlobSource
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload := map[string]any{
		"status": "ok",
	}
	if h.Blobs != nil {
		payload["blobs"] = h.Blobs.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
