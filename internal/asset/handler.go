package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/driftboard/driftboard/internal/auth"
	"github.com/driftboard/driftboard/internal/store"
	"github.com/driftboard/driftboard/internal/typeid"
)

const maxUploadSize = 10 << 20 // 10MB

// UploadResponse is returned from the upload endpoints.
type UploadResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
	Name   string `json:"name"`
}

// Handler serves asset upload and retrieval endpoints. Files live on disk
// under dir; project uploads additionally get a row in the store.
type Handler struct {
	dir   string
	store *store.Store
}

// NewHandler creates a new asset handler that stores files in dir.
func NewHandler(dir string, st *store.Store) *Handler {
	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("create asset dir", "error", err, "dir", dir)
	}
	return &Handler{dir: dir, store: st}
}

// Upload handles POST /assets/upload (multipart form with "file" field).
// It is public so the playground board can use images without an account.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	resp, _, ok := h.saveImageFromForm(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// UploadToProject handles POST /api/projects/{projectId}/assets. Same as
// Upload but records the asset against the project.
func (h *Handler) UploadToProject(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	projectID := mux.Vars(r)["projectId"]

	if _, err := h.store.GetProjectMember(r.Context(), projectID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "not a project member", http.StatusForbidden)
			return
		}
		slog.Error("check membership", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp, size, ok := h.saveImageFromForm(w, r)
	if !ok {
		return
	}

	_, err := h.store.CreateAsset(r.Context(), store.Asset{
		ID:         resp.ID,
		ProjectID:  projectID,
		UploaderID: userID,
		Kind:       "image",
		MimeType:   "image/png",
		SizeBytes:  size,
		Path:       resp.URL,
	})
	if err != nil {
		slog.Error("record asset", "error", err)
		h.Delete(resp.ID)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// ListForProject handles GET /api/projects/{projectId}/assets.
func (h *Handler) ListForProject(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	projectID := mux.Vars(r)["projectId"]

	if _, err := h.store.GetProjectMember(r.Context(), projectID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "not a project member", http.StatusForbidden)
			return
		}
		slog.Error("check membership", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	assets, err := h.store.ListAssetsForProject(r.Context(), projectID)
	if err != nil {
		slog.Error("list assets", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(assets)
}

// saveImageFromForm validates and stores the uploaded image, writing an
// error response and returning ok=false on failure.
func (h *Handler) saveImageFromForm(w http.ResponseWriter, r *http.Request) (UploadResponse, int64, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 10MB)", http.StatusBadRequest)
		return UploadResponse{}, 0, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return UploadResponse{}, 0, false
	}
	defer file.Close()

	// Validate content type
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		http.Error(w, "only PNG and JPEG images are supported", http.StatusBadRequest)
		return UploadResponse{}, 0, false
	}

	// Decode to get dimensions (and to re-encode JPEG input as PNG)
	img, _, err := image.Decode(file)
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return UploadResponse{}, 0, false
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	assetID := typeid.NewAssetID()
	filename := assetID + ".png"
	filePath := filepath.Join(h.dir, filename)

	out, err := os.Create(filePath)
	if err != nil {
		slog.Error("create asset file", "error", err)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return UploadResponse{}, 0, false
	}

	if err := png.Encode(out, img); err != nil {
		out.Close()
		slog.Error("encode png", "error", err)
		os.Remove(filePath)
		http.Error(w, "failed to encode image", http.StatusInternalServerError)
		return UploadResponse{}, 0, false
	}
	out.Close()

	var size int64
	if info, err := os.Stat(filePath); err == nil {
		size = info.Size()
	}

	resp := UploadResponse{
		ID:     assetID,
		URL:    fmt.Sprintf("/assets/%s", filename),
		Width:  width,
		Height: height,
		Type:   "png",
		Name:   header.Filename,
	}
	return resp, size, true
}

// Serve returns an http.Handler that serves stored asset files with caching headers.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Asset IDs are unique, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Delete removes an asset file from disk (for cleanup).
func (h *Handler) Delete(assetID string) error {
	for _, ext := range []string{".png"} {
		path := filepath.Join(h.dir, assetID+ext)
		if err := os.Remove(path); err == nil {
			return nil
		}
	}
	return fmt.Errorf("asset not found: %s", assetID)
}
