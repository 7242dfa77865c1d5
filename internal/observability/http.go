package observability

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Middleware holds configuration for HTTP Observability
type Middleware struct {
	TraceIdHeader string
	Logger        *slog.Logger
	Metrics       *Metrics
}

// Wrap returns an Handler that add Observability to http Request Context and call next.
func (self Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t0 := time.Now()

		var tId string
		if "" != self.TraceIdHeader {
			tId = r.Header.Get(self.TraceIdHeader)
		}
		if "" == tId {
			tId = uuid.New().String()
		}

		base := self.Logger
		if nil == base {
			base = GetObservability(r.Context()).Log()
		}
		metrics := self.Metrics
		if nil == metrics {
			metrics = GetObservability(r.Context()).Metric()
		}
		log := base.With("tId", tId)
		obs := Observability{Logger: log, Metrics: metrics}
		ctx := SetObservability(r.Context(), &obs)
		if "" != self.TraceIdHeader {
			w.Header().Set(self.TraceIdHeader, tId)
		}
		sw := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&sw, r.Clone(ctx))
		log.Info(
			"processed HTTP request",
			"method", r.Method,
			"host", r.Host,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(t0),
		)

	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (self *statusRecorder) WriteHeader(statusCode int) {
	self.status = statusCode
	self.ResponseWriter.WriteHeader(statusCode)
}

var _ http.ResponseWriter = &statusRecorder{}
