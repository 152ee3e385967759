package handler

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/zynqcloud/photo-storage/internal/pathutil"
	"github.com/zynqcloud/photo-storage/internal/store"
)

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Ref  string `json:"ref"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// URLResponse is returned by GET /v1/urls/*.
type URLResponse struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

// Upload stores the request body as a photo.
//
// The body is spooled to spool/<uuid>/<X-File-Name> so the store sees a
// regular source file carrying the client's basename, then copied into the
// save directory by store.Local.Upload. The spool is removed on every path
// out of the handler; cleanup reaps it if the process dies first.
//
// Required headers:
//
//	X-File-Name      basename of the photo, e.g. "IMG_0001.jpg"
//
// Optional headers:
//
//	X-Destination    target path or directory (trailing "/") relative to the
//	                 save directory, e.g. "2024/" or "albums/cover.jpg"
//	X-No-Overwrite   "1" rejects the upload with 409 if the target exists
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.metrics.UploadsTotal.Add(1)

	name := strings.TrimSpace(r.Header.Get("X-File-Name"))
	if !isValidName(name) {
		h.metrics.UploadsFailed.Add(1)
		writeError(w, http.StatusBadRequest, "X-File-Name must be a plain file name")
		return
	}
	dest := strings.TrimSpace(r.Header.Get("X-Destination"))
	if !isValidDestination(dest) {
		h.metrics.UploadsFailed.Add(1)
		writeError(w, http.StatusBadRequest, "invalid destination")
		return
	}

	fsys := h.store.Fs()
	dir := filepath.Join(h.cfg.Storage.Spool(), uuid.NewString())
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		h.metrics.UploadsFailed.Add(1)
		h.logger.Error("upload: create spool failed", "dir", dir, "err", err)
		writeError(w, http.StatusInternalServerError, "storage write failed")
		return
	}
	defer fsys.RemoveAll(dir) //nolint:errcheck

	src := filepath.Join(dir, name)
	body := http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxUploadBytes)
	n, err := spool(fsys, src, body)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		h.logger.Error("upload: spool failed", "path", src, "err", err)
		writeError(w, http.StatusInternalServerError, "storage write failed")
		return
	}

	var opts []store.UploadOption
	if r.Header.Get("X-No-Overwrite") == "1" {
		opts = append(opts, store.WithoutOverwrite())
	}
	ref, err := h.store.Upload(src, dest, opts...)
	if err != nil {
		h.metrics.UploadsFailed.Add(1)
		h.storeError(w, "upload", err)
		return
	}

	url, err := h.store.PhotoURL(r.Context(), ref)
	if err != nil {
		h.logger.Warn("upload: url resolution failed", "ref", ref, "err", err)
	}

	h.metrics.BytesWritten.Add(n)
	h.logger.Info("upload complete", "ref", ref, "bytes", n)
	writeJSON(w, http.StatusCreated, UploadResponse{Ref: ref, URL: url, Size: n})
}

// spool writes r to name on fsys and returns the byte count.
func spool(fsys afero.Fs, name string, r io.Reader) (int64, error) {
	f, err := fsys.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return 0, err
	}
	n, werr := io.Copy(f, r)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return n, werr
}

// Download streams a stored photo. HEAD requests get headers only, which
// makes HEAD /v1/photos/* the existence probe.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	abs, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.metrics.DownloadsTotal.Add(1)

	exists, err := h.store.Exists(abs)
	if err != nil {
		h.storeError(w, "download", err)
		return
	}
	if !exists {
		h.storeError(w, "download", store.ErrNotFound)
		return
	}

	f, err := h.store.Fs().Open(filepath.FromSlash(abs))
	if err != nil {
		h.storeError(w, "download", err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.storeError(w, "download", err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Delete removes a stored photo. Deleting a missing photo succeeds.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	abs, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.metrics.DeletesTotal.Add(1)

	if err := h.store.DeletePhoto(abs); err != nil {
		h.storeError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// URL returns the public URL for a logical reference. The photo does not
// have to exist.
func (h *Handler) URL(w http.ResponseWriter, r *http.Request) {
	ref := pathutil.Normalize(chi.URLParam(r, "*"))
	if ref == "" || pathutil.IsAbs(ref) || strings.HasPrefix(ref, "..") {
		writeError(w, http.StatusBadRequest, "invalid photo reference")
		return
	}
	url, err := h.store.PhotoURL(r.Context(), ref)
	if err != nil {
		h.storeError(w, "url", err)
		return
	}
	h.metrics.URLsResolved.Add(1)
	writeJSON(w, http.StatusOK, URLResponse{Ref: ref, URL: url})
}

// resolve maps the route wildcard onto an absolute path inside the save
// directory. securejoin clamps ".." and symlinks to the save directory, so a
// client can never reach files outside it.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (string, bool) {
	ref := chi.URLParam(r, "*")
	if pathutil.Normalize(ref) == "" {
		writeError(w, http.StatusBadRequest, "missing photo reference")
		return "", false
	}
	abs, err := securejoin.SecureJoin(filepath.FromSlash(h.store.Path()), ref)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid photo reference")
		return "", false
	}
	return filepath.ToSlash(abs), true
}

// storeError maps store errors onto HTTP statuses.
func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.metrics.NotFound.Add(1)
		writeError(w, http.StatusNotFound, "photo not found")
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, "photo already exists")
	default:
		h.logger.Error(op+" failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}

// isValidName accepts a single path segment that is not a dot entry.
func isValidName(name string) bool {
	return name != "" &&
		name != "." &&
		name != ".." &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.ContainsRune(name, 0)
}

// isValidDestination accepts empty or relative destinations that stay inside
// the save directory after normalization.
func isValidDestination(dest string) bool {
	if dest == "" {
		return true
	}
	if pathutil.IsAbs(dest) || strings.ContainsRune(dest, 0) {
		return false
	}
	clean := pathutil.Normalize(dest)
	return clean != "" && clean != ".." && !strings.HasPrefix(clean, "../")
}
