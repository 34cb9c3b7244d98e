// Package config provides configuration loading and validation for the
// sitengine classification service. It supports YAML configuration files
// with environment variable substitution.
package config

import "time"

// Config is the top-level configuration structure mirroring sitengine.yaml.
type Config struct {
	Service        ServiceConfig        `yaml:"service"`
	Classification ClassificationConfig `yaml:"classification"`
	Cache          CacheConfig          `yaml:"cache"`
	Streaming      StreamingConfig      `yaml:"streaming"`
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Health         HealthConfig         `yaml:"health"`
}

// ServiceConfig holds service identification metadata.
type ServiceConfig struct {
	ID          string `yaml:"id"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ClassificationConfig holds classification engine settings.
type ClassificationConfig struct {
	// Parallelism is the number of detectors evaluated concurrently per run.
	// 0 or 1 evaluates sequentially.
	Parallelism int `yaml:"parallelism"`

	// RegexCacheSize bounds the compiled-pattern LRU. 0 disables it.
	RegexCacheSize int `yaml:"regex_cache_size"`

	IncludeSamples bool          `yaml:"include_samples"`
	ExcludeInvalid bool          `yaml:"exclude_invalid"`
	MaxTextSize    int           `yaml:"max_text_size"`
	Timeout        time.Duration `yaml:"timeout"`
	CatalogDir     string        `yaml:"catalog_dir"`
	WatchCatalog   bool          `yaml:"watch_catalog"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Backend   string           `yaml:"backend"` // memory or redis
	TTL       time.Duration    `yaml:"ttl"`
	KeyPrefix string           `yaml:"key_prefix"`
	Redis     RedisCacheConfig `yaml:"redis"`
}

// RedisCacheConfig holds Redis connection settings.
type RedisCacheConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StreamingConfig holds classification event streaming settings.
type StreamingConfig struct {
	Enabled                 bool        `yaml:"enabled"`
	HighConfidenceThreshold int         `yaml:"high_confidence_threshold"`
	Kafka                   KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka connection and producer settings.
type KafkaConfig struct {
	Brokers  []string            `yaml:"brokers"`
	ClientID string              `yaml:"client_id"`
	Topics   KafkaTopicsConfig   `yaml:"topics"`
	Producer KafkaProducerConfig `yaml:"producer"`
}

// KafkaTopicsConfig maps event routes to Kafka topic strings.
type KafkaTopicsConfig struct {
	Classifications string `yaml:"classifications"`
	HighConfidence  string `yaml:"high_confidence"`
}

// KafkaProducerConfig holds Kafka producer settings.
type KafkaProducerConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
	RequiredAcks  string        `yaml:"required_acks"`
}

// ServerConfig holds HTTP/gRPC/metrics server settings.
type ServerConfig struct {
	HTTP    HTTPServerConfig    `yaml:"http"`
	GRPC    GRPCServerConfig    `yaml:"grpc"`
	Metrics MetricsServerConfig `yaml:"metrics"`
}

// HTTPServerConfig holds HTTP server settings.
type HTTPServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// GRPCServerConfig holds gRPC server settings.
type GRPCServerConfig struct {
	Port           int `yaml:"port"`
	MaxRecvMsgSize int `yaml:"max_recv_msg_size"`
	MaxSendMsgSize int `yaml:"max_send_msg_size"`
}

// MetricsServerConfig holds Prometheus metrics endpoint settings.
type MetricsServerConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	Output string        `yaml:"output"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig holds log file settings.
type LogFileConfig struct {
	Path string `yaml:"path"`
}

// HealthConfig holds health check endpoint settings.
type HealthConfig struct {
	LivePath  string `yaml:"live_path"`
	ReadyPath string `yaml:"ready_path"`
}
