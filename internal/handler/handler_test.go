package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/zynqcloud/photo-storage/internal/baseurl"
	"github.com/zynqcloud/photo-storage/internal/config"
	"github.com/zynqcloud/photo-storage/internal/handler"
	"github.com/zynqcloud/photo-storage/internal/store"
)

type fixture struct {
	root  string
	spool string
	st    *store.Local
	h     http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	g := NewWithT(t)

	root := filepath.ToSlash(t.TempDir())
	cfg := &config.Config{
		Server: config.ServerConfig{
			MaxConcurrentUploads: 4,
			MaxUploadBytes:       1 << 20,
			ServePublic:          true,
		},
		Storage: config.StorageConfig{
			ProjectRoot: root,
			SavePath:    "photos",
			SpoolDir:    t.TempDir(),
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.NewLocal(cfg.Storage.ProjectRoot, cfg.Storage.SavePath, baseurl.Request{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(st.CreateDirectory(st.Path(), true, store.DefaultDirMode)).To(Succeed())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		root:  root,
		spool: cfg.Storage.SpoolDir,
		st:    st,
		h:     handler.New(cfg, st, logger),
	}
}

func (f *fixture) do(method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, "http://photos.example.com"+target, strings.NewReader(body))
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, r)
	return rec
}

func (f *fixture) upload(name, dest, body string) *httptest.ResponseRecorder {
	headers := map[string]string{"X-File-Name": name}
	if dest != "" {
		headers["X-Destination"] = dest
	}
	return f.do(http.MethodPost, "/v1/photos", body, headers)
}

func decode[T any](g *WithT, rec *httptest.ResponseRecorder) T {
	var v T
	g.Expect(json.Unmarshal(rec.Body.Bytes(), &v)).To(Succeed())
	return v
}

func TestUploadStoresPhoto(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	rec := f.upload("pic.jpg", "", "jpeg bytes")
	g.Expect(rec.Code).To(Equal(http.StatusCreated), rec.Body.String())

	resp := decode[handler.UploadResponse](g, rec)
	g.Expect(resp.Ref).To(Equal("pic.jpg"))
	g.Expect(resp.URL).To(Equal("http://photos.example.com/photos/pic.jpg"))
	g.Expect(resp.Size).To(Equal(int64(len("jpeg bytes"))))

	data, err := os.ReadFile(filepath.Join(f.root, "photos", "pic.jpg"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(data)).To(Equal("jpeg bytes"))

	entries, err := os.ReadDir(f.spool)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(BeEmpty(), "spool is removed after upload")
}

func TestUploadIntoDirectory(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	rec := f.upload("a.jpg", "2024/", "a")
	g.Expect(rec.Code).To(Equal(http.StatusCreated))
	g.Expect(decode[handler.UploadResponse](g, rec).Ref).To(Equal("2024/a.jpg"))
	g.Expect(filepath.Join(f.root, "photos", "2024", "a.jpg")).To(BeARegularFile())
}

func TestUploadRejectsBadInput(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	g.Expect(f.do(http.MethodPost, "/v1/photos", "x", nil).Code).To(Equal(http.StatusBadRequest))
	g.Expect(f.upload("../pic.jpg", "", "x").Code).To(Equal(http.StatusBadRequest))
	g.Expect(f.upload("..", "", "x").Code).To(Equal(http.StatusBadRequest))
	g.Expect(f.upload("pic.jpg", "../outside/", "x").Code).To(Equal(http.StatusBadRequest))
	g.Expect(f.upload("pic.jpg", "/etc/", "x").Code).To(Equal(http.StatusBadRequest))
	g.Expect(filepath.Join(f.root, "outside")).NotTo(BeADirectory())
}

func TestUploadTooLarge(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, func(c *config.Config) { c.Server.MaxUploadBytes = 4 })

	rec := f.upload("pic.jpg", "", "0123456789")
	g.Expect(rec.Code).To(Equal(http.StatusRequestEntityTooLarge))
	g.Expect(filepath.Join(f.root, "photos", "pic.jpg")).NotTo(BeAnExistingFile())
}

func TestUploadNoOverwrite(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	g.Expect(f.upload("pic.jpg", "", "first").Code).To(Equal(http.StatusCreated))
	rec := f.do(http.MethodPost, "/v1/photos", "second", map[string]string{
		"X-File-Name":    "pic.jpg",
		"X-No-Overwrite": "1",
	})
	g.Expect(rec.Code).To(Equal(http.StatusConflict))

	data, err := os.ReadFile(filepath.Join(f.root, "photos", "pic.jpg"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(data)).To(Equal("first"))
}

func TestDownloadAndHead(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)
	g.Expect(f.upload("pic.jpg", "2024/", "pixels").Code).To(Equal(http.StatusCreated))

	rec := f.do(http.MethodGet, "/v1/photos/2024/pic.jpg", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(Equal("pixels"))

	rec = f.do(http.MethodHead, "/v1/photos/2024/pic.jpg", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Header().Get("Content-Length")).To(Equal("6"))

	g.Expect(f.do(http.MethodGet, "/v1/photos/2024/ghost.jpg", "", nil).Code).To(Equal(http.StatusNotFound))
	g.Expect(f.do(http.MethodHead, "/v1/photos/2024", "", nil).Code).To(Equal(http.StatusNotFound), "directories are not photos")
}

func TestDownloadCannotEscapeSaveDir(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)
	g.Expect(os.WriteFile(filepath.Join(f.root, "secret.txt"), []byte("nope"), 0o600)).To(Succeed())

	rec := f.do(http.MethodGet, "/v1/photos/../secret.txt", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusNotFound))
	g.Expect(rec.Body.String()).NotTo(ContainSubstring("nope"))

	rec = f.do(http.MethodDelete, "/v1/photos/../secret.txt", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusNoContent))
	g.Expect(filepath.Join(f.root, "secret.txt")).To(BeARegularFile())
}

func TestDeleteIsIdempotent(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)
	g.Expect(f.upload("pic.jpg", "", "x").Code).To(Equal(http.StatusCreated))

	g.Expect(f.do(http.MethodDelete, "/v1/photos/pic.jpg", "", nil).Code).To(Equal(http.StatusNoContent))
	g.Expect(f.do(http.MethodGet, "/v1/photos/pic.jpg", "", nil).Code).To(Equal(http.StatusNotFound))
	g.Expect(f.do(http.MethodDelete, "/v1/photos/pic.jpg", "", nil).Code).To(Equal(http.StatusNoContent))

	g.Expect(f.upload("a.jpg", "", "x").Code).To(Equal(http.StatusCreated))
	g.Expect(f.do(http.MethodDelete, "/v1/photos/a.jpg/x", "", nil).Code).To(Equal(http.StatusNoContent))
	g.Expect(f.do(http.MethodGet, "/v1/photos/a.jpg/x", "", nil).Code).To(Equal(http.StatusNotFound))
}

func TestURL(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/v1/urls/2024/a.jpg", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	resp := decode[handler.URLResponse](g, rec)
	g.Expect(resp.Ref).To(Equal("2024/a.jpg"))
	g.Expect(resp.URL).To(Equal("http://photos.example.com/photos/2024/a.jpg"))

	g.Expect(f.do(http.MethodGet, "/v1/urls/../a.jpg", "", nil).Code).To(Equal(http.StatusBadRequest))
}

func TestPublicServingFollowsPhotoURL(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, func(c *config.Config) { c.Server.ServiceToken = "s3cret" })

	rec := f.do(http.MethodPost, "/v1/photos", "pixels", map[string]string{
		"X-File-Name":     "pic.jpg",
		"X-Service-Token": "s3cret",
	})
	g.Expect(rec.Code).To(Equal(http.StatusCreated))
	url := decode[handler.UploadResponse](g, rec).URL

	// The public URL resolves against this service without a token.
	rec = f.do(http.MethodGet, strings.TrimPrefix(url, "http://photos.example.com"), "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(Equal("pixels"))

	g.Expect(f.do(http.MethodGet, "/v1/photos/pic.jpg", "", nil).Code).To(Equal(http.StatusUnauthorized))
}

func TestPublicServingDisabled(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, func(c *config.Config) { c.Server.ServePublic = false })
	g.Expect(f.upload("pic.jpg", "", "x").Code).To(Equal(http.StatusCreated))

	g.Expect(f.do(http.MethodGet, "/photos/pic.jpg", "", nil).Code).To(Equal(http.StatusNotFound))
}

func TestHealthReadinessMetrics(t *testing.T) {
	g := NewWithT(t)
	f := newFixture(t, nil)

	g.Expect(f.do(http.MethodGet, "/health", "", nil).Code).To(Equal(http.StatusOK))

	rec := f.do(http.MethodGet, "/healthz/ready", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK), rec.Body.String())
	g.Expect(decode[map[string]any](g, rec)).To(HaveKeyWithValue("ready", true))

	g.Expect(f.upload("pic.jpg", "", "abc").Code).To(Equal(http.StatusCreated))
	rec = f.do(http.MethodGet, "/metrics", "", nil)
	g.Expect(rec.Code).To(Equal(http.StatusOK))
	m := decode[map[string]int64](g, rec)
	g.Expect(m).To(HaveKeyWithValue("uploads_total", int64(1)))
	g.Expect(m).To(HaveKeyWithValue("bytes_written", int64(3)))
	g.Expect(m).To(HaveKeyWithValue("active_uploads", int64(0)))

	g.Expect(os.RemoveAll(filepath.Join(f.root, "photos"))).To(Succeed())
	g.Expect(f.do(http.MethodGet, "/healthz/ready", "", nil).Code).To(Equal(http.StatusServiceUnavailable))
}
