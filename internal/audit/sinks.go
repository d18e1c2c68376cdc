package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/influx"
	"github.com/c3i/globe/internal/model"
	"github.com/c3i/globe/internal/queue"
	"github.com/c3i/globe/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"gorm.io/gorm"
)

// LogSink writes entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, e core.AuditEntry) error {
	s.logger.InfoContext(ctx, e.Action,
		"operator", e.Operator,
		"userId", e.UserID,
		"details", e.Details,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// GormSinkConfig tunes batching for the database sink.
type GormSinkConfig struct {
	FlushInterval time.Duration
	BatchSize     int
}

// GormSink batches entries into the audit_log table. Write only enqueues;
// a background loop flushes on a timer and on Close.
type GormSink struct {
	db     *gorm.DB
	cfg    GormSinkConfig
	logger *slog.Logger
	queue  *queue.Queue[model.AuditEntry]

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewGormSink starts the flush loop. The table must already be migrated.
func NewGormSink(db *gorm.DB, cfg GormSinkConfig, logger *slog.Logger) *GormSink {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &GormSink{
		db:     db,
		cfg:    cfg,
		logger: logger,
		queue:  queue.New[model.AuditEntry](),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

func (s *GormSink) Name() string { return "database" }

func (s *GormSink) Write(_ context.Context, e core.AuditEntry) error {
	row, err := model.AuditEntryFromCore(e)
	if err != nil {
		return err
	}
	s.queue.Push(row)
	return nil
}

// Flush writes everything queued so far.
func (s *GormSink) Flush() error {
	rows := s.queue.Drain()
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.CreateInBatches(&rows, s.cfg.BatchSize).Error; err != nil {
		return fmt.Errorf("insert %d audit entries: %w", len(rows), err)
	}
	return nil
}

func (s *GormSink) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.logger.Error("Audit flush failed", "error", err)
			}
		}
	}
}

// Close stops the loop and flushes what is left.
func (s *GormSink) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.Flush()
}

// InfluxSink writes one point per entry to the waypoint_audit measurement.
type InfluxSink struct {
	manager *influx.Manager
}

// NewInfluxSink creates an InfluxSink on a connected manager.
func NewInfluxSink(m *influx.Manager) *InfluxSink {
	return &InfluxSink{manager: m}
}

func (s *InfluxSink) Name() string { return "influx" }

func (s *InfluxSink) Write(_ context.Context, e core.AuditEntry) error {
	return s.manager.WritePoint(AuditPoint(e))
}

func (s *InfluxSink) Close() error { return s.manager.Close() }

// AuditPoint converts an entry to an InfluxDB point.
func AuditPoint(e core.AuditEntry) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement("waypoint_audit").
		AddTag("action", e.Action).
		AddField("entry_id", e.ID).
		AddField("user_id", e.UserID).
		AddField("details", e.Details).
		SetTime(e.Time)
	if e.Operator != "" {
		p.AddTag("operator", e.Operator)
	}
	if e.Subject != nil {
		p.AddField("waypoint_id", e.Subject.ID).
			AddField("lat", e.Subject.Coords.Lat).
			AddField("lon", e.Subject.Coords.Lon)
	}
	return p
}
