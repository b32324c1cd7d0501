package otelwarren

import (
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dyluth/warren/pkg/warren"
)

// timerInfo is implemented by timer entrypoints.
type timerInfo interface {
	Interval() time.Duration
	IsEager() bool
}

// TimerAdapter customises spans for timer entrypoints with the firing
// schedule.
type TimerAdapter struct {
	DefaultAdapter
}

// NewTimerAdapter is the AdapterFactory for TimerAdapter.
func NewTimerAdapter(cfg *Config) EntrypointAdapter {
	return &TimerAdapter{DefaultAdapter{Config: cfg}}
}

// Attributes includes the timer configuration.
func (a *TimerAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.DefaultAdapter.Attributes(wc)
	if info, ok := wc.Entrypoint.(timerInfo); ok {
		attrs = append(attrs,
			attribute.String("warren.timer.interval", info.Interval().String()),
			attribute.Bool("warren.timer.eager", info.IsEager()),
		)
	}
	return attrs
}
