package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event represents an inbound message from a connected client.
type Event struct {
	Command   string
	Payload   json.RawMessage
	Sender    string // connection id
	User      string // opaque user id the connection presented
	Context   context.Context
	Timestamp time.Time
}

// Ctx returns the event context, or Background when none was set.
func (e Event) Ctx() context.Context {
	if e.Context == nil {
		return context.Background()
	}
	return e.Context
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Command)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Command, err)
	}
	return nil
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	logged bool
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// ErrNoHandler is returned by Dispatch for an unregistered command.
var ErrNoHandler = errors.New("unknown command")

// Dispatcher routes events to registered handlers. Registration happens
// before the first Dispatch; Dispatch itself is safe for concurrent use.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger
	metrics  instruments
}

// New creates a Dispatcher recording to the global OTel meter.
func New(logger Logger) (*Dispatcher, error) {
	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{handlers: map[string]HandlerFunc{}, logger: logger, metrics: ins}, nil
}

// Register binds h to command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	h = d.withMetrics(command, h)
	if cfg.logged && d.logger != nil {
		h = d.withLogging(command, h)
	}
	d.handlers[command] = h
}

func (d *Dispatcher) Dispatch(e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

func (d *Dispatcher) withMetrics(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (result any, err error) {
		d.metrics.observe(e.Ctx(), command, func() error {
			result, err = h(e)
			return err
		})
		return result, err
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		d.logger.Debug("Handling event", "command", command, "sender", e.Sender, "bytes", len(e.Payload))
		result, err := h(e)
		took := time.Since(e.Timestamp)
		if err != nil {
			d.logger.Error("Event failed", "command", command, "sender", e.Sender, "duration", took, "error", err)
			return result, err
		}
		d.logger.Debug("Event complete", "command", command, "sender", e.Sender, "duration", took)
		return result, nil
	}
}
