package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} expressions.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig reads a YAML config file, performs environment variable
// substitution on the raw bytes, unmarshals into a Config struct and fills in
// defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{Service: ServiceConfig{ID: "sitengine"}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued settings with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Service.Environment == "" {
		cfg.Service.Environment = "development"
	}

	c := &cfg.Classification
	if c.Parallelism == 0 {
		c.Parallelism = 1
	}
	if c.MaxTextSize == 0 {
		c.MaxTextSize = 10 << 20
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "sitengine:result:"
	}

	s := &cfg.Streaming
	if s.HighConfidenceThreshold == 0 {
		s.HighConfidenceThreshold = 85
	}
	if s.Kafka.ClientID == "" {
		s.Kafka.ClientID = "sitengine"
	}
	if s.Kafka.Topics.Classifications == "" {
		s.Kafka.Topics.Classifications = "sit.classifications"
	}
	if s.Kafka.Topics.HighConfidence == "" {
		s.Kafka.Topics.HighConfidence = "sit.classifications.high"
	}

	if cfg.Server.HTTP.Port == 0 {
		cfg.Server.HTTP.Port = 8080
	}
	if cfg.Server.GRPC.Port == 0 {
		cfg.Server.GRPC.Port = 9090
	}
	if cfg.Server.Metrics.Port == 0 {
		cfg.Server.Metrics.Port = 9100
	}
	if cfg.Server.Metrics.Path == "" {
		cfg.Server.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Health.LivePath == "" {
		cfg.Health.LivePath = "/health/live"
	}
	if cfg.Health.ReadyPath == "" {
		cfg.Health.ReadyPath = "/health/ready"
	}
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns in content
// with the corresponding environment variable values. If a variable is not
// set and no default is provided, the expression is replaced with an empty
// string.
func ExpandEnv(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		if groups == nil {
			return match
		}

		varName := string(groups[1])
		defaultVal := ""
		hasDefault := len(groups) > 2 && groups[2] != nil
		if hasDefault {
			defaultVal = string(groups[2])
		}

		val, ok := os.LookupEnv(varName)
		if !ok || val == "" {
			return []byte(defaultVal)
		}
		return []byte(val)
	})
}

// Validate performs basic validation on a loaded Config. It checks that
// required fields are set and that values are within expected ranges.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Service.ID == "" {
		return fmt.Errorf("service.id is required")
	}

	if cfg.Classification.Parallelism < 0 {
		return fmt.Errorf("classification.parallelism must be non-negative, got %d", cfg.Classification.Parallelism)
	}
	if cfg.Classification.RegexCacheSize < 0 {
		return fmt.Errorf("classification.regex_cache_size must be non-negative, got %d", cfg.Classification.RegexCacheSize)
	}
	if cfg.Classification.MaxTextSize < 0 {
		return fmt.Errorf("classification.max_text_size must be non-negative, got %d", cfg.Classification.MaxTextSize)
	}
	if cfg.Classification.WatchCatalog && cfg.Classification.CatalogDir == "" {
		return fmt.Errorf("classification.watch_catalog requires classification.catalog_dir")
	}

	// Validate cache backend
	backend := cfg.Cache.Backend
	if backend != "" && backend != "memory" && backend != "redis" {
		return fmt.Errorf("cache.backend %q is not valid; must be memory or redis", backend)
	}
	if cfg.Cache.Enabled && backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required for the redis backend")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative, got %v", cfg.Cache.TTL)
	}

	// Validate streaming
	threshold := cfg.Streaming.HighConfidenceThreshold
	if threshold < 0 || threshold > 99 {
		return fmt.Errorf("streaming.high_confidence_threshold must be between 0 and 99, got %d", threshold)
	}
	if cfg.Streaming.Enabled && len(cfg.Streaming.Kafka.Brokers) == 0 {
		return fmt.Errorf("streaming.kafka.brokers is required when streaming is enabled")
	}
	acks := cfg.Streaming.Kafka.Producer.RequiredAcks
	if acks != "" {
		validAcks := map[string]bool{"none": true, "leader": true, "all": true}
		if !validAcks[acks] {
			return fmt.Errorf("streaming.kafka.producer.required_acks %q is not valid; must be one of: none, leader, all", acks)
		}
	}

	// Validate log level
	level := cfg.Logging.Level
	if level != "" {
		validLevels := map[string]bool{
			"debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("logging.level %q is not valid; must be one of: debug, info, warn, error", level)
		}
	}

	// Validate log format
	format := cfg.Logging.Format
	if format != "" {
		if format != "json" && format != "text" {
			return fmt.Errorf("logging.format %q is not valid; must be json or text", format)
		}
	}

	// Validate log output
	switch cfg.Logging.Output {
	case "", "stdout", "stderr":
	case "file":
		if cfg.Logging.File.Path == "" {
			return fmt.Errorf("logging.file.path is required when logging.output is file")
		}
	default:
		return fmt.Errorf("logging.output %q is not valid; must be one of: stdout, stderr, file", cfg.Logging.Output)
	}

	// Validate server ports are positive when set
	if cfg.Server.HTTP.Port < 0 {
		return fmt.Errorf("server.http.port must be non-negative, got %d", cfg.Server.HTTP.Port)
	}
	if cfg.Server.GRPC.Port < 0 {
		return fmt.Errorf("server.grpc.port must be non-negative, got %d", cfg.Server.GRPC.Port)
	}
	if cfg.Server.Metrics.Port < 0 {
		return fmt.Errorf("server.metrics.port must be non-negative, got %d", cfg.Server.Metrics.Port)
	}

	return nil
}
