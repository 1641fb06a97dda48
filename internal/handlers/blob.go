package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/clipqueue/client/internal/blobs"
	"github.com/clipqueue/client/internal/logging"
)

// BlobSource resolves blob references to local files.
type BlobSource interface {
	Open(ref string) (*os.File, blobs.Entry, error)
	Len() int
}

// BlobHandler streams registered local files for previewing.
type BlobHandler struct {
	Blobs BlobSource
}

// Serve implements GET /blob/{id}. Range requests are honoured.
func (h BlobHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	f, entry, err := h.Blobs.Open(id)
	if errors.Is(err, blobs.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("open blob failed", "blob_id", id, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	http.ServeContent(w, r, entry.Name, entry.Created, f)
}

// BlobURL returns the preview address of ref on a server rooted at base.
func BlobURL(base, ref string) string {
	return base + "/blob/" + blobs.ID(ref)
}
