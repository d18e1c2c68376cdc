package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c3i/globe/internal/config"
	"github.com/c3i/globe/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const appName = "globe"

var (
	configDir string
	logLevel  string
	user      string

	sessionStart = time.Now()

	slogManager = logging.NewSlogManager()
	logger      = slog.Default()
	dbLogger    = zerolog.Nop()

	logFile *os.File
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Shared waypoints on a 3D globe",
	Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `Plot, label and share waypoints on a globe.

Examples:
  globe serve
  globe plot 41.88 -87.63 --label chicago
  globe list
  globe watch
  globe export --crs 3857 > waypoints.geojson`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configDir); err != nil && !config.IsNotFound(err) {
			return err
		}
		if logLevel != "" {
			viper.Set("logLevel", logLevel)
		}
		if user == "" {
			user = viper.GetString("user")
		}
		return setupLogging(os.Stderr, nil)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		_ = slogManager.Close()
		if logFile != nil {
			return logFile.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "", "user id recorded on new waypoints and in the audit log")
}

// setupLogging points slog and zerolog at w. Commands that print data
// keep logs on stderr so stdout stays clean.
func setupLogging(w io.Writer, opts *logging.Options) error {
	o := logging.Options{}
	if opts != nil {
		o = *opts
	}
	o.Level = viper.GetString("logLevel")
	if o.File == nil {
		o.File = w
	}
	if err := slogManager.Setup(o); err != nil {
		return err
	}
	logger = slogManager.Logger()
	slog.SetDefault(logger)

	lvl, err := zerolog.ParseLevel(viper.GetString("logLevel"))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	dbLogger = zerolog.New(zerolog.ConsoleWriter{
		Out:        o.File,
		TimeFormat: time.RFC3339,
		NoColor:    o.File != os.Stderr,
	}).Level(lvl).With().Timestamp().Logger()
	return nil
}

// openLogFile creates command's session log file under logsDir, moving any
// previous file with the same name aside.
func openLogFile(command string) (*os.File, string, error) {
	dir := viper.GetString("logsDir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.SessionLogPath(dir, command, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return f, path, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
