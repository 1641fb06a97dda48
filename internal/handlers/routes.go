package handlers

import "net/http"

// RegisterRoutes wires the preview handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Blobs: deps.Blobs}
	blob := BlobHandler{Blobs: deps.Blobs}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/blob/{id}", blob.Serve)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Blobs BlobSource
}
