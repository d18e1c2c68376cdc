package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// stdout is swapped out by tests.
var stdout io.Writer = os.Stdout

// Options selects the outputs of the application logger.
type Options struct {
	Level string

	// File receives text logs. When set, the console is left alone.
	File io.Writer

	// Provider enables the OTel bridge when non-nil.
	Provider *sdklog.LoggerProvider

	// GraylogAddress enables GELF over UDP when non-empty.
	GraylogAddress string
	// GraylogLevel raises the threshold for Graylog only.
	GraylogLevel string

	// Context adds dynamic attributes to every record.
	Context ContextProvider
}

// SlogManager owns the application logger and the outputs behind it.
type SlogManager struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
	gelf     *gelf.Writer
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel accepts slog level names in any case; anything else is info.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// utcRFC3339 renders record times the same way for every output.
func utcRFC3339(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup builds the logger. Calling it again replaces the previous logger
// and Graylog socket; the caller owns File.
func (m *SlogManager) Setup(opts Options) error {
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level), ReplaceAttr: utcRFC3339}

	out := opts.File
	if out == nil {
		out = stdout
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, hopts)}

	if err := m.Close(); err != nil {
		return fmt.Errorf("closing graylog writer: %w", err)
	}
	if opts.GraylogAddress != "" {
		gh, err := m.graylogHandler(opts, hopts)
		if err != nil {
			return err
		}
		handlers = append(handlers, gh)
	}

	m.provider = opts.Provider
	if opts.Provider != nil {
		handlers = append(handlers, otelslog.NewHandler("globe", otelslog.WithLoggerProvider(opts.Provider)))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), opts.Context))
	m.logger.Info("Logging initialized", "level", hopts.Level)
	return nil
}

func (m *SlogManager) graylogHandler(opts Options, hopts *slog.HandlerOptions) (slog.Handler, error) {
	w, err := gelf.NewWriter(opts.GraylogAddress)
	if err != nil {
		return nil, fmt.Errorf("graylog writer: %w", err)
	}
	m.gelf = w
	h := slog.Handler(slog.NewJSONHandler(w, hopts))
	if opts.GraylogLevel != "" {
		h = MinLevel(h, parseLevel(opts.GraylogLevel))
	}
	return h, nil
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes batched OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.ForceFlush(ctx)
}

// Close releases the GELF socket.
func (m *SlogManager) Close() error {
	if m.gelf == nil {
		return nil
	}
	err := m.gelf.Close()
	m.gelf = nil
	return err
}
