package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tributary-ai-services/sitengine/pkg/catalog"
	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/resultcache"
	"github.com/Tributary-ai-services/sitengine/pkg/stream"
)

// Recorder receives pipeline measurements. *metrics.Collector implements it.
type Recorder interface {
	InvalidDetectors(invalid []classify.InvalidDetector)
	CacheHit()
	CacheMiss()
	CacheError()
	EventsPublished(n int, err error)
}

// defaultProcessor implements the Processor interface, orchestrating
// the validate -> cache -> classify -> stream pipeline.
type defaultProcessor struct {
	engine   *classify.Engine
	catalog  *catalog.Catalog
	cache    resultcache.Cache
	streamer stream.Streamer
	recorder Recorder
	logger   *zap.Logger
	config   *ProcessorConfig
	now      func() time.Time
}

// ProcessorOption is a functional option for configuring a defaultProcessor.
type ProcessorOption func(*defaultProcessor)

// WithCatalog sets the catalog serving requests that carry no detectors.
func WithCatalog(c *catalog.Catalog) ProcessorOption {
	return func(p *defaultProcessor) {
		p.catalog = c
	}
}

// WithCache sets the result cache on the processor.
func WithCache(c resultcache.Cache) ProcessorOption {
	return func(p *defaultProcessor) {
		p.cache = c
	}
}

// WithStreamer sets the streamer on the processor.
func WithStreamer(s stream.Streamer) ProcessorOption {
	return func(p *defaultProcessor) {
		p.streamer = s
	}
}

// WithRecorder sets the metrics recorder on the processor.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *defaultProcessor) {
		p.recorder = r
	}
}

// WithLogger sets the processor's logger.
func WithLogger(logger *zap.Logger) ProcessorOption {
	return func(p *defaultProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConfig sets the processor configuration.
func WithConfig(cfg *ProcessorConfig) ProcessorOption {
	return func(p *defaultProcessor) {
		if cfg != nil {
			p.config = cfg
		}
	}
}

// NewProcessor creates a new defaultProcessor with the given engine and options.
// The engine is required; all other components are optional.
func NewProcessor(engine *classify.Engine, opts ...ProcessorOption) *defaultProcessor {
	p := &defaultProcessor{
		engine:  engine,
		catalog: catalog.NewStatic(classify.DetectorSet{}),
		logger:  zap.NewNop(),
		config:  DefaultProcessorConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full classification pipeline:
// validity scan -> cache lookup -> classify -> cache store -> stream policy records.
func (p *defaultProcessor) Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	startTime := p.now()

	if p.config.MaxTextSize > 0 && len(req.Text) > p.config.MaxTextSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTextTooLarge, len(req.Text), p.config.MaxTextSize)
	}

	set := p.catalog.Current()
	if req.Detectors != nil {
		set = *req.Detectors
	}

	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))

	result := &ProcessResult{
		RunID: runID,
		Metrics: ProcessMetrics{
			TextSize:      len(req.Text),
			DetectorCount: set.Len(),
		},
	}

	// Step 1: Validity scan. Invalid detectors never match; flag them.
	invalid := p.engine.FindInvalidDetectors(set)
	if len(invalid) > 0 {
		result.InvalidDetectors = invalid
		ids := make([]string, len(invalid))
		for i, d := range invalid {
			ids[i] = d.ID
		}
		logger.Warn("detectors with invalid patterns",
			zap.Strings("detector_ids", ids),
			zap.Bool("excluded", p.config.ExcludeInvalid),
		)
		if p.recorder != nil {
			p.recorder.InvalidDetectors(invalid)
		}
		if p.config.ExcludeInvalid {
			set = set.WithoutInvalid(invalid)
		}
	}

	// Step 2: Cache lookup
	cacheKey := ""
	if p.cache != nil && !req.SkipCache {
		fp, err := resultcache.Fingerprint(set)
		if err != nil {
			logger.Warn("skipping result cache", zap.Error(err))
		} else {
			cacheKey = resultcache.Key(req.Text, fp)
		}
	}

	var classified *classify.Result
	if cacheKey != "" {
		cached, found, err := p.cache.Get(ctx, cacheKey)
		switch {
		case err != nil:
			// Cache failure is non-fatal; classify as if it missed
			logger.Warn("result cache lookup failed", zap.Error(err))
			if p.recorder != nil {
				p.recorder.CacheError()
			}
		case found:
			classified = cached
			result.CacheHit = true
			if p.recorder != nil {
				p.recorder.CacheHit()
			}
		default:
			if p.recorder != nil {
				p.recorder.CacheMiss()
			}
		}
	}

	// Step 3: Classify on miss and store
	if classified == nil {
		classifyStart := p.now()

		classifyCtx, cancel := p.classifyContext(ctx)
		res, err := p.engine.Classify(classifyCtx, req.Text, set)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("classification failed: %w", err)
		}
		classified = res
		result.Metrics.ClassifyDuration = p.now().Sub(classifyStart)

		if cacheKey != "" {
			if err := p.cache.Set(ctx, cacheKey, classified); err != nil {
				logger.Warn("result cache store failed", zap.Error(err))
				if p.recorder != nil {
					p.recorder.CacheError()
				}
			}
		}
	}

	result.Matches = classified.Matches
	result.Aggregated = classified.Aggregated
	result.Policy = classified.Policy
	if !p.config.IncludeSamples && !req.IncludeSamples {
		stripSamples(result)
	}
	result.Metrics.MatchCount = len(result.Matches)

	// Step 4: Stream one event per policy record
	if p.config.EnableStreaming && p.streamer != nil && !req.SkipStreaming && len(result.Policy) > 0 {
		streamStart := p.now()
		events := stream.NewEvents(runID, req.SourceName, req.TenantID, result.Policy, streamStart)

		err := p.streamer.Stream(ctx, events)
		if err != nil {
			// Streaming failure is non-fatal; the caller still gets its result
			logger.Warn("failed to stream classification events",
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		} else {
			result.Metrics.EventsPublished = len(events)
		}
		if p.recorder != nil {
			p.recorder.EventsPublished(len(events), err)
		}
		result.Metrics.StreamDuration = p.now().Sub(streamStart)
	}

	result.Metrics.TotalDuration = p.now().Sub(startTime)

	logger.Debug("request processed",
		zap.String("tenant_id", req.TenantID),
		zap.Int("detectors", result.Metrics.DetectorCount),
		zap.Int("matches", result.Metrics.MatchCount),
		zap.Bool("cache_hit", result.CacheHit),
		zap.Duration("duration", result.Metrics.TotalDuration),
	)

	return result, nil
}

// Validate reports invalid detectors in set, or in the catalog when set is nil.
func (p *defaultProcessor) Validate(set *classify.DetectorSet) []classify.InvalidDetector {
	target := p.catalog.Current()
	if set != nil {
		target = *set
	}
	return p.engine.FindInvalidDetectors(target)
}

// Detectors returns the catalog's current detector set.
func (p *defaultProcessor) Detectors() classify.DetectorSet {
	return p.catalog.Current()
}

// Close releases resources held by the processor's sub-components.
func (p *defaultProcessor) Close() error {
	var errs []error
	if p.streamer != nil {
		if err := p.streamer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("streamer close: %w", err))
		}
	}
	if closer, ok := p.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (p *defaultProcessor) classifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.config.ClassifyTimeout > 0 {
		return context.WithTimeout(ctx, p.config.ClassifyTimeout)
	}
	return context.WithCancel(ctx)
}

// stripSamples drops matched text from a result. The slices may be shared
// with the engine's output, so each match is copied.
func stripSamples(r *ProcessResult) {
	matches := make([]classify.ClassificationMatch, len(r.Matches))
	for i, m := range r.Matches {
		m.Samples = []string{}
		matches[i] = m
	}
	r.Matches = matches

	aggregated := make([]classify.AggregatedMatch, len(r.Aggregated))
	for i, a := range r.Aggregated {
		a.Samples = []string{}
		aggregated[i] = a
	}
	r.Aggregated = aggregated
}
