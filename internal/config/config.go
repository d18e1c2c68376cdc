package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/c3i/globe/internal/database"
	"github.com/c3i/globe/internal/storage/memory"
	pgstorage "github.com/c3i/globe/internal/storage/postgres"
	redisstorage "github.com/c3i/globe/internal/storage/redis"
	sqlitestorage "github.com/c3i/globe/internal/storage/sqlite"
	wsstorage "github.com/c3i/globe/internal/storage/websocket"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "globe.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. GLOBE_STORAGE_TYPE.
const EnvPrefix = "GLOBE"

// StorageConfig selects and configures the waypoint backend.
type StorageConfig struct {
	Type      string
	Memory    memory.Config
	SQLite    sqlitestorage.Config
	Postgres  pgstorage.Config
	Redis     redisstorage.Config
	WebSocket wsstorage.Config
}

// HubConfig configures the hub server.
type HubConfig struct {
	Listen       string
	Secret       string
	URL          string // websocket URL clients dial
	APIURL       string // REST base URL
	SendQueue    int
	PingInterval time.Duration
	WriteWait    time.Duration
}

// OTelConfig configures OpenTelemetry.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// InfluxConfig configures the InfluxDB audit sink.
type InfluxConfig struct {
	Enabled    bool
	Host       string
	Port       string
	Protocol   string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// AuditConfig configures the audit recorder.
type AuditConfig struct {
	Enabled       bool
	Database      bool
	Path          string // sqlite file for the audit table; empty uses logsDir
	FlushInterval time.Duration
	BatchSize     int
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file and an optional
// .env file. A missing config file is reported as viper.ConfigFileNotFoundError
// after defaults and environment overrides are in place.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env: %w", err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// IsNotFound reports whether Load failed only because the file is absent.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("logToFile", false)
	viper.SetDefault("user", "")

	viper.SetDefault("globe.radius", 5.0)

	viper.SetDefault("hub.listen", ":8080")
	viper.SetDefault("hub.secret", "")
	viper.SetDefault("hub.url", "ws://localhost:8080/ws")
	viper.SetDefault("hub.apiUrl", "http://localhost:8080")
	viper.SetDefault("hub.sendQueue", 256)
	viper.SetDefault("hub.pingInterval", "30s")
	viper.SetDefault("hub.writeWait", "10s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.snapshotPath", "")
	viper.SetDefault("storage.memory.compress", false)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "globe")
	viper.SetDefault("storage.postgres.sslMode", "disable")
	viper.SetDefault("storage.postgres.channel", "globe_waypoints")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.password", "")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.key", "globe:waypoints")
	viper.SetDefault("storage.redis.channel", "globe:waypoints:changed")
	viper.SetDefault("storage.websocket.ackTimeout", "10s")

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.database", true)
	viper.SetDefault("audit.path", "")
	viper.SetDefault("audit.flushInterval", "2s")
	viper.SetDefault("audit.batchSize", 100)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "globe")
	viper.SetDefault("influx.bucket", "audit")
	viper.SetDefault("influx.backupPath", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
	viper.SetDefault("graylog.level", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "globe")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("metrics.enabled", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: memory.Config{
			SnapshotPath: viper.GetString("storage.memory.snapshotPath"),
			Compress:     viper.GetBool("storage.memory.compress"),
		},
		SQLite: sqlitestorage.Config{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: pgstorage.Config{
			PostgresConfig: database.PostgresConfig{
				Host:     viper.GetString("storage.postgres.host"),
				Port:     viper.GetString("storage.postgres.port"),
				Username: viper.GetString("storage.postgres.username"),
				Password: viper.GetString("storage.postgres.password"),
				Database: viper.GetString("storage.postgres.database"),
				SSLMode:  viper.GetString("storage.postgres.sslMode"),
			},
			Channel: viper.GetString("storage.postgres.channel"),
		},
		Redis: redisstorage.Config{
			Addr:     viper.GetString("storage.redis.addr"),
			Password: viper.GetString("storage.redis.password"),
			DB:       viper.GetInt("storage.redis.db"),
			Key:      viper.GetString("storage.redis.key"),
			Channel:  viper.GetString("storage.redis.channel"),
		},
		WebSocket: wsstorage.Config{
			URL:        viper.GetString("hub.url"),
			Secret:     viper.GetString("hub.secret"),
			User:       viper.GetString("user"),
			AckTimeout: viper.GetDuration("storage.websocket.ackTimeout"),
		},
	}
}

// GetHubConfig returns the hub section.
func GetHubConfig() HubConfig {
	return HubConfig{
		Listen:       viper.GetString("hub.listen"),
		Secret:       viper.GetString("hub.secret"),
		URL:          viper.GetString("hub.url"),
		APIURL:       viper.GetString("hub.apiUrl"),
		SendQueue:    viper.GetInt("hub.sendQueue"),
		PingInterval: viper.GetDuration("hub.pingInterval"),
		WriteWait:    viper.GetDuration("hub.writeWait"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetAuditConfig returns the audit section.
func GetAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       viper.GetBool("audit.enabled"),
		Database:      viper.GetBool("audit.database"),
		Path:          viper.GetString("audit.path"),
		FlushInterval: viper.GetDuration("audit.flushInterval"),
		BatchSize:     viper.GetInt("audit.batchSize"),
	}
}

// GraylogAddress returns the GELF endpoint, or "" when disabled.
func GraylogAddress() string {
	if !viper.GetBool("graylog.enabled") {
		return ""
	}
	return viper.GetString("graylog.address")
}

// GraylogLevel returns the minimum level shipped to Graylog. Empty follows logLevel.
func GraylogLevel() string {
	return viper.GetString("graylog.level")
}
