// Package config defines the configuration structures for SMARTSexplore.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/SMARTSexplore/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	Compress        bool          `mapstructure:"compress"`
}

// Database drivers understood by DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and parameterises the relational store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled pipeline runs are not serialized across processes and graph
// responses are not cached.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	LockWait     time.Duration `mapstructure:"lock_wait"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig holds the event producer/consumer parameters.
type KafkaConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"`
	TopicPrefix     string   `mapstructure:"topic_prefix"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// MinIOConfig holds object storage parameters for rendered images.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// Neo4jConfig holds graph export connection parameters.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ToolsConfig locates the external native tools and tunes their invocation.
type ToolsConfig struct {
	SMARTSComparePath       string        `mapstructure:"smartscompare_path"`
	SMARTSCompareViewerPath string        `mapstructure:"smartscompare_viewer_path"`
	MatchToolPath           string        `mapstructure:"matchtool_path"`
	Mol2SVGPath             string        `mapstructure:"mol2svg_path"`
	WorkDir                 string        `mapstructure:"work_dir"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CompareWorkers          int           `mapstructure:"compare_workers"`
	SimilarityThreshold     float64       `mapstructure:"similarity_threshold"`
	RenderWorkers           int           `mapstructure:"render_workers"`
	Strict                  bool          `mapstructure:"strict"`
}

// UploadConfig bounds molecule file uploads.
type UploadConfig struct {
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	MaxMolecules      int      `mapstructure:"max_molecules"`
	MaxBodyBytes      int64    `mapstructure:"max_body_bytes"`
}

// ImagesConfig sets where rendered SVGs live when MinIO is disabled.
type ImagesConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Neo4j    Neo4jConfig       `mapstructure:"neo4j"`
	Tools    ToolsConfig       `mapstructure:"tools"`
	Upload   UploadConfig      `mapstructure:"upload"`
	Images   ImagesConfig      `mapstructure:"images"`
	Log      logging.LogConfig `mapstructure:"log"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
}

// Validate performs semantic validation of a fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("config: database.host is required")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required")
		}
		if c.Database.MaxOpenConns < 1 {
			return fmt.Errorf("config: database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("config: database.sqlite_path is required")
		}
	default:
		return fmt.Errorf("config: database.driver %q is invalid; expected postgres|sqlite", c.Database.Driver)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr is required")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}

	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required")
	}

	if c.Tools.Timeout < 0 {
		return fmt.Errorf("config: tools.timeout must not be negative")
	}
	if c.Tools.CompareWorkers < 1 {
		return fmt.Errorf("config: tools.compare_workers must be >= 1, got %d", c.Tools.CompareWorkers)
	}
	if c.Tools.RenderWorkers < 1 {
		return fmt.Errorf("config: tools.render_workers must be >= 1, got %d", c.Tools.RenderWorkers)
	}
	if c.Tools.SimilarityThreshold < 0 || c.Tools.SimilarityThreshold > 1 {
		return fmt.Errorf("config: tools.similarity_threshold %v is out of range [0, 1]", c.Tools.SimilarityThreshold)
	}

	if c.Upload.MaxMolecules < 1 {
		return fmt.Errorf("config: upload.max_molecules must be >= 1, got %d", c.Upload.MaxMolecules)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("config: upload.allowed_extensions must not be empty")
	}
	for _, ext := range c.Upload.AllowedExtensions {
		if ext == "" || strings.HasPrefix(ext, ".") {
			return fmt.Errorf("config: upload.allowed_extensions entry %q must be a bare extension", ext)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// DSN returns the PostgreSQL connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
