// Package stream publishes classification events, one per policy record, to
// Kafka or to in-process subscribers.
package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

// Streamer publishes classification events
type Streamer interface {
	// Stream publishes events to their routed topics
	Stream(ctx context.Context, events []ClassificationEvent) error

	// Close flushes pending messages and closes the connection
	Close() error
}

// ClassificationEvent reports one sensitive information type found in one
// classified document. It never carries matched text.
type ClassificationEvent struct {
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	SourceName      string    `json:"source_name,omitempty"`
	TenantID        string    `json:"tenant_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	SensitiveTypeID string    `json:"sensitive_type_id"`
	Count           int       `json:"count"`
	ConfidenceLevel int       `json:"confidence_level"`
}

// NewEvents builds one event per policy record
func NewEvents(runID, sourceName, tenantID string, policy []classify.PolicyRecord, now time.Time) []ClassificationEvent {
	events := make([]ClassificationEvent, 0, len(policy))
	for _, p := range policy {
		events = append(events, ClassificationEvent{
			ID:              uuid.NewString(),
			RunID:           runID,
			SourceName:      sourceName,
			TenantID:        tenantID,
			Timestamp:       now,
			SensitiveTypeID: p.SensitiveTypeID,
			Count:           p.Count,
			ConfidenceLevel: p.ConfidenceLevel,
		})
	}
	return events
}

// StreamerConfig configures the streamer
type StreamerConfig struct {
	// Kafka settings
	Brokers  []string `json:"brokers"`
	ClientID string   `json:"client_id"`
	Topics   Topics   `json:"topics"`

	// HighConfidenceThreshold is the confidence at or above which events are
	// also published to Topics.HighConfidence.
	HighConfidenceThreshold int `json:"high_confidence_threshold"`

	// Producer settings
	BatchSize     int           `json:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	Compression   string        `json:"compression"`   // "none", "gzip", "snappy", "lz4"
	RequiredAcks  string        `json:"required_acks"` // "none", "leader", "all"

	// Retry settings
	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
}

// Topics defines Kafka topics for classification events
type Topics struct {
	Classifications string `json:"classifications"` // All events
	HighConfidence  string `json:"high_confidence"` // Events at or above the threshold
}

// DefaultStreamerConfig returns default streamer configuration
func DefaultStreamerConfig() *StreamerConfig {
	return &StreamerConfig{
		Brokers:  []string{"localhost:9092"},
		ClientID: "sitengine",
		Topics: Topics{
			Classifications: "sit.classifications",
			HighConfidence:  "sit.classifications.high",
		},
		HighConfidenceThreshold: 85,
		BatchSize:               100,
		FlushInterval:           time.Second,
		Compression:             "snappy",
		RequiredAcks:            "all",
		MaxRetries:              3,
		RetryBackoff:            100 * time.Millisecond,
	}
}

// ConfigFromSettings converts the streaming config section
func ConfigFromSettings(s config.StreamingConfig) *StreamerConfig {
	cfg := DefaultStreamerConfig()
	if len(s.Kafka.Brokers) > 0 {
		cfg.Brokers = s.Kafka.Brokers
	}
	if s.Kafka.ClientID != "" {
		cfg.ClientID = s.Kafka.ClientID
	}
	if s.Kafka.Topics.Classifications != "" {
		cfg.Topics.Classifications = s.Kafka.Topics.Classifications
	}
	if s.Kafka.Topics.HighConfidence != "" {
		cfg.Topics.HighConfidence = s.Kafka.Topics.HighConfidence
	}
	if s.HighConfidenceThreshold > 0 {
		cfg.HighConfidenceThreshold = s.HighConfidenceThreshold
	}
	if s.Kafka.Producer.BatchSize > 0 {
		cfg.BatchSize = s.Kafka.Producer.BatchSize
	}
	if s.Kafka.Producer.FlushInterval > 0 {
		cfg.FlushInterval = s.Kafka.Producer.FlushInterval
	}
	if s.Kafka.Producer.Compression != "" {
		cfg.Compression = s.Kafka.Producer.Compression
	}
	if s.Kafka.Producer.RequiredAcks != "" {
		cfg.RequiredAcks = s.Kafka.Producer.RequiredAcks
	}
	return cfg
}
