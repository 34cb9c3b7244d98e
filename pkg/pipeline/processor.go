// Package pipeline orchestrates one classification request:
// validity scan -> cache lookup -> classify -> cache store -> stream.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

// ErrTextTooLarge is returned when a request's text exceeds MaxTextSize
var ErrTextTooLarge = errors.New("text exceeds maximum size")

// Processor is the main entry point for classification requests
type Processor interface {
	// Process classifies one text against a detector set and publishes the
	// resulting policy records.
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)

	// Validate reports the detectors in set whose patterns fail to compile.
	// A nil set validates the catalog's current detectors.
	Validate(set *classify.DetectorSet) []classify.InvalidDetector

	// Detectors returns the catalog's current detector set
	Detectors() classify.DetectorSet

	// Close releases resources
	Close() error
}

// ProcessRequest contains all inputs for one classification
type ProcessRequest struct {
	// Text to classify
	Text string `json:"text"`

	// Identifiers carried onto streamed events
	SourceName string `json:"source_name,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`

	// Detectors overrides the catalog's detector set when non-nil
	Detectors *classify.DetectorSet `json:"detectors,omitempty"`

	// Options
	IncludeSamples bool `json:"include_samples,omitempty"`
	SkipStreaming  bool `json:"skip_streaming,omitempty"`
	SkipCache      bool `json:"skip_cache,omitempty"`
}

// ProcessResult contains the output of one classification
type ProcessResult struct {
	RunID string `json:"run_id"`

	Matches    []classify.ClassificationMatch `json:"matches"`
	Aggregated []classify.AggregatedMatch     `json:"aggregated"`
	Policy     []classify.PolicyRecord        `json:"policy"`

	// InvalidDetectors lists detectors whose patterns could not be compiled.
	// They never match.
	InvalidDetectors []classify.InvalidDetector `json:"invalid_detectors,omitempty"`

	CacheHit bool `json:"cache_hit"`

	// Performance metrics
	Metrics ProcessMetrics `json:"metrics"`
}

// ProcessMetrics contains performance information
type ProcessMetrics struct {
	TotalDuration    time.Duration `json:"total_duration"`
	ClassifyDuration time.Duration `json:"classify_duration,omitempty"`
	StreamDuration   time.Duration `json:"stream_duration,omitempty"`

	TextSize        int `json:"text_size"`
	DetectorCount   int `json:"detector_count"`
	MatchCount      int `json:"match_count"`
	EventsPublished int `json:"events_published"`
}

// ProcessorConfig configures the processor
type ProcessorConfig struct {
	// Service identification
	ServiceID string `json:"service_id"`

	// IncludeSamples keeps matched sample strings in every result. When
	// false, samples are only returned to requests that ask for them.
	IncludeSamples bool `json:"include_samples"`

	// ExcludeInvalid drops detectors that fail the validity scan before
	// evaluation.
	ExcludeInvalid bool `json:"exclude_invalid"`

	// MaxTextSize bounds request text in bytes. 0 disables the check.
	MaxTextSize int `json:"max_text_size"`

	// Timeouts
	ClassifyTimeout time.Duration `json:"classify_timeout"`

	EnableStreaming bool `json:"enable_streaming"`
}

// DefaultProcessorConfig returns default processor configuration
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		ServiceID:       "sitengine",
		ExcludeInvalid:  true,
		MaxTextSize:     10 << 20,
		ClassifyTimeout: 30 * time.Second,
		EnableStreaming: true,
	}
}

// ConfigFromSettings builds a processor config from the service config
func ConfigFromSettings(cfg *config.Config) *ProcessorConfig {
	pc := DefaultProcessorConfig()
	if cfg == nil {
		return pc
	}
	if cfg.Service.ID != "" {
		pc.ServiceID = cfg.Service.ID
	}
	pc.IncludeSamples = cfg.Classification.IncludeSamples
	pc.ExcludeInvalid = cfg.Classification.ExcludeInvalid
	pc.MaxTextSize = cfg.Classification.MaxTextSize
	pc.ClassifyTimeout = cfg.Classification.Timeout
	return pc
}
