package database

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// zerologWriter feeds gorm's logger into zerolog at a fixed level.
type zerologWriter struct {
	zl    zerolog.Logger
	level zerolog.Level
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.zl.WithLevel(w.level).Msgf(format, args...)
}

// newGormLogger reports slow queries and errors; record-not-found is
// expected on Update/Delete of a missing waypoint and stays quiet.
func newGormLogger(zl zerolog.Logger) logger.Interface {
	w := zerologWriter{zl: zl.With().Str("component", "gorm").Logger(), level: zerolog.WarnLevel}
	lvl := logger.Warn
	if zl.GetLevel() <= zerolog.DebugLevel {
		w.level, lvl = zerolog.DebugLevel, logger.Info
	}
	return logger.New(w, logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
