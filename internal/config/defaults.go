package config

import (
	"runtime"
	"time"
)

const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 5000

	DefaultDBDriver   = DriverSQLite
	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "smartsexplore"
	DefaultDBMaxConns = 10
	DefaultSQLitePath = "smartsexplore.db"
	DefaultMigrations = "migrations"

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "smartsx:"
	DefaultLockTTL     = 30 * time.Minute
	DefaultCacheTTL    = 10 * time.Minute

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "smartsexplore-worker"
	DefaultKafkaTopicPrefix = "smartsx."

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "smartsexplore-images"

	DefaultSMARTSCompare       = "SMARTScompare"
	DefaultSMARTSCompareViewer = "SMARTSviewer"
	DefaultMatchTool           = "SMARTSmatch"
	DefaultMol2SVG             = "mol2svg"
	DefaultToolTimeout         = 2 * time.Hour
	DefaultSimilarityThreshold = 0.1

	DefaultMaxMolecules = 25000
	DefaultMaxBodyBytes = 32 << 20

	DefaultImagesRoot = "static/images"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "smartsexplore"
)

// DefaultAllowedExtensions are the accepted molecule upload extensions.
var DefaultAllowedExtensions = []string{"smi", "smiles"}

// ApplyDefaults fills every zero-value field in cfg with its default. Values
// already set by the caller are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 60 * time.Second
	}
	// Uploads block on matching and rendering.
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDBDriver
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns / 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = DefaultMigrations
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = DefaultSQLitePath
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultLockTTL
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = DefaultCacheTTL
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}

	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	if cfg.Tools.SMARTSComparePath == "" {
		cfg.Tools.SMARTSComparePath = DefaultSMARTSCompare
	}
	if cfg.Tools.SMARTSCompareViewerPath == "" {
		cfg.Tools.SMARTSCompareViewerPath = DefaultSMARTSCompareViewer
	}
	if cfg.Tools.MatchToolPath == "" {
		cfg.Tools.MatchToolPath = DefaultMatchTool
	}
	if cfg.Tools.Mol2SVGPath == "" {
		cfg.Tools.Mol2SVGPath = DefaultMol2SVG
	}
	if cfg.Tools.Timeout == 0 {
		cfg.Tools.Timeout = DefaultToolTimeout
	}
	if cfg.Tools.CompareWorkers == 0 {
		cfg.Tools.CompareWorkers = max(1, runtime.NumCPU()/2)
	}
	if cfg.Tools.SimilarityThreshold == 0 {
		cfg.Tools.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Tools.RenderWorkers == 0 {
		cfg.Tools.RenderWorkers = runtime.NumCPU()
	}

	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	if cfg.Upload.MaxMolecules == 0 {
		cfg.Upload.MaxMolecules = DefaultMaxMolecules
	}
	if cfg.Upload.MaxBodyBytes == 0 {
		cfg.Upload.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Images.RootDir == "" {
		cfg.Images.RootDir = DefaultImagesRoot
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
