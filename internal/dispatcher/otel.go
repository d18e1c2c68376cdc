package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/c3i/globe/internal/dispatcher"

// instruments are created from the global meter provider, a no-op until
// something installs one.
type instruments struct {
	inflight  metric.Int64UpDownCounter
	processed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments() (instruments, error) {
	m := otel.Meter(instrumentationName)
	var ins instruments
	var err error

	if ins.inflight, err = m.Int64UpDownCounter("dispatcher.events.inflight",
		metric.WithDescription("Events currently being handled")); err != nil {
		return ins, fmt.Errorf("inflight counter: %w", err)
	}
	if ins.processed, err = m.Int64Counter("dispatcher.events.processed",
		metric.WithDescription("Events handled")); err != nil {
		return ins, fmt.Errorf("processed counter: %w", err)
	}
	if ins.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error")); err != nil {
		return ins, fmt.Errorf("failed counter: %w", err)
	}
	if ins.duration, err = m.Float64Histogram("dispatcher.events.duration",
		metric.WithDescription("Handler latency"), metric.WithUnit("s")); err != nil {
		return ins, fmt.Errorf("duration histogram: %w", err)
	}
	return ins, nil
}

// observe wraps one handler call for command.
func (ins instruments) observe(ctx context.Context, command string, call func() error) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	ins.inflight.Add(ctx, 1, attrs)
	start := time.Now()

	err := call()

	ins.inflight.Add(ctx, -1, attrs)
	ins.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	ins.processed.Add(ctx, 1, attrs)
	if err != nil {
		ins.failed.Add(ctx, 1, attrs)
	}
}
