package classify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer receives evaluation events, typically to feed metrics
type Observer interface {
	// DetectorEvaluated is called once per detector per run
	DetectorEvaluated(source Source, fired bool)

	// RunCompleted is called once per finished run
	RunCompleted(duration time.Duration, detectors, matches int)
}

// Engine evaluates a detector set against text and aggregates the results
type Engine struct {
	evaluator   *Evaluator
	parallelism int
	logger      *zap.Logger
	observer    Observer
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithParallelism evaluates up to n detectors concurrently. Values below 2
// evaluate sequentially.
func WithParallelism(n int) EngineOption {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithPatternCache shares a compiled-pattern cache across runs
func WithPatternCache(cache *PatternCache) EngineOption {
	return func(e *Engine) {
		e.evaluator = NewEvaluator(cache)
	}
}

// WithLogger sets the engine's logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers an evaluation observer
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = o
	}
}

// NewEngine creates an engine. Without options it evaluates sequentially and
// compiles patterns on every use.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		evaluator:   NewEvaluator(nil),
		parallelism: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluator returns the engine's evaluator
func (e *Engine) Evaluator() *Evaluator {
	return e.evaluator
}

// FindInvalidDetectors reports detectors with patterns that fail to compile
func (e *Engine) FindInvalidDetectors(set DetectorSet) []InvalidDetector {
	return e.evaluator.FindInvalidDetectors(set)
}

// Evaluate runs every detector and returns the per-detector matches in
// detector-list order: simple detectors first, then rule-pack detectors.
// The order does not depend on parallelism. Evaluation itself never fails;
// the only error is ctx's, when the run is cancelled.
func (e *Engine) Evaluate(ctx context.Context, text string, set DetectorSet) ([]ClassificationMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := set.Len()
	if text == "" || total == 0 {
		return []ClassificationMatch{}, nil
	}

	slots := make([]*ClassificationMatch, total)
	evaluate := func(i int) {
		var (
			m      ClassificationMatch
			fired  bool
			source Source
		)
		if i < len(set.Detectors) {
			d := set.Detectors[i]
			m, fired = e.evaluator.EvaluateDetector(text, d)
			source = SourceManual
			if d.Source == SourceSample {
				source = SourceSample
			}
		} else {
			m, fired = e.evaluator.EvaluateRulePackDetector(text, set.RulePack[i-len(set.Detectors)])
			source = SourceRulePack
		}
		if fired {
			slots[i] = &m
		}
		if e.observer != nil {
			e.observer.DetectorEvaluated(source, fired)
		}
	}

	if e.parallelism < 2 {
		for i := 0; i < total; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			evaluate(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)
		for i := 0; i < total; i++ {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				evaluate(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	matches := make([]ClassificationMatch, 0, total)
	for _, m := range slots {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches, nil
}

// Classify evaluates the set, aggregates matches per SIT and projects the
// policy records.
func (e *Engine) Classify(ctx context.Context, text string, set DetectorSet) (*Result, error) {
	start := time.Now()

	matches, err := e.Evaluate(ctx, text, set)
	if err != nil {
		return nil, err
	}

	aggregated := Aggregate(matches)
	result := &Result{
		Matches:    matches,
		Aggregated: aggregated,
		Policy:     ProjectPolicy(aggregated),
	}

	elapsed := time.Since(start)
	if e.observer != nil {
		e.observer.RunCompleted(elapsed, set.Len(), len(matches))
	}
	e.logger.Debug("classification run completed",
		zap.Int("text_length", len(text)),
		zap.Int("detectors", set.Len()),
		zap.Int("matches", len(matches)),
		zap.Int("sensitive_types", len(result.Policy)),
		zap.Duration("duration", elapsed),
	)

	return result, nil
}
