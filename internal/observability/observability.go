package observability

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	observabilityKey = contextKey("OBSERVABILITY")
)

// Observability holds Logger & Metrics.
// nil *Observability are safe to use.
type Observability struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Log returns inner Logger or slog.Default().
func (self *Observability) Log() *slog.Logger {
	if (nil == self) || (nil == self.Logger) {
		return slog.Default()
	}

	return self.Logger
}

// Metric returns inner Metrics or a nil *Metrics which discards observations.
func (self *Observability) Metric() *Metrics {
	if nil == self {
		return nil
	}

	return self.Metrics
}

// With returns a copy of self whose Logger has the given attributes.
func (self *Observability) With(args ...any) *Observability {
	return &Observability{Logger: self.Log().With(args...), Metrics: self.Metric()}
}

// GetObservability returns ctx Observability.
func GetObservability(ctx context.Context) *Observability {
	var rv *Observability
	rv, _ = ctx.Value(observabilityKey).(*Observability)
	return rv
}

// SetObservability returns new Context containing obs.
func SetObservability(ctx context.Context, obs *Observability) context.Context {
	return context.WithValue(ctx, observabilityKey, obs)
}
