package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Metrics holds process-lifetime atomic counters exposed at GET /metrics.
type Metrics struct {
	UploadsTotal   atomic.Int64 // uploads attempted
	UploadsFailed  atomic.Int64 // uploads that returned an error
	BytesWritten   atomic.Int64 // bytes accepted into the store
	DownloadsTotal atomic.Int64 // GET/HEAD on stored photos, public or authenticated
	NotFound       atomic.Int64 // lookups of photos that do not exist
	DeletesTotal   atomic.Int64 // delete requests, including idempotent no-ops
	URLsResolved   atomic.Int64 // public URLs computed
}

// metricsHandler serialises the current counter snapshot as a flat JSON
// object. activeFunc reports the limiter's in-flight uploads at render time.
func (m *Metrics) metricsHandler(activeFunc func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{ //nolint:errcheck
			"uploads_total":   m.UploadsTotal.Load(),
			"uploads_failed":  m.UploadsFailed.Load(),
			"bytes_written":   m.BytesWritten.Load(),
			"downloads_total": m.DownloadsTotal.Load(),
			"not_found":       m.NotFound.Load(),
			"deletes_total":   m.DeletesTotal.Load(),
			"urls_resolved":   m.URLsResolved.Load(),
			"active_uploads":  int64(activeFunc()),
		})
	}
}
