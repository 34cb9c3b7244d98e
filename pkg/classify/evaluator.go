package classify

import (
	"strings"
)

// Evaluator runs detectors and pattern trees against text. It holds no
// per-run state, so one Evaluator may be shared by concurrent runs.
type Evaluator struct {
	cache *PatternCache
}

// NewEvaluator creates an evaluator. A nil cache compiles patterns on every use.
func NewEvaluator(cache *PatternCache) *Evaluator {
	return &Evaluator{cache: cache}
}

// findAll normalizes, compiles and runs a pattern over the whole text.
// ok is false when the pattern is empty or fails to compile.
func (e *Evaluator) findAll(text string, p PatternDescriptor, defaultFlags string) (matches []string, ok bool) {
	norm, valid := NormalizePattern(p, defaultFlags)
	if !valid {
		return nil, false
	}
	re, err := e.cache.Compile(norm.WithGlobal())
	if err != nil {
		return nil, false
	}
	return re.FindAllString(text, -1), true
}

// EvaluateNode evaluates one pattern-tree node. Unsupported node types yield
// an unmatched result with a zero count.
func (e *Evaluator) EvaluateNode(text string, node PatternNode) NodeResult {
	switch n := node.(type) {
	case RegexNode:
		return e.evaluateRegex(text, n)
	case *RegexNode:
		if n != nil {
			return e.evaluateRegex(text, *n)
		}
	case KeywordNode:
		return e.evaluateKeyword(text, n)
	case *KeywordNode:
		if n != nil {
			return e.evaluateKeyword(text, *n)
		}
	case AnyNode:
		return e.evaluateAny(text, n)
	case *AnyNode:
		if n != nil {
			return e.evaluateAny(text, *n)
		}
	}
	return NodeResult{Samples: []string{}}
}

func (e *Evaluator) evaluateRegex(text string, n RegexNode) NodeResult {
	matches, _ := e.findAll(text, n.Pattern, DefaultFlags)
	return NodeResult{
		Matched: len(matches) >= minMatches(n.MinMatches),
		Count:   len(matches),
		Samples: mergeSamples(nil, matches...),
	}
}

// evaluateKeyword sums the hits of every entry rather than stopping at the
// first entry that matches.
func (e *Evaluator) evaluateKeyword(text string, n KeywordNode) NodeResult {
	total := 0
	samples := []string{}
	for _, entry := range n.Entries {
		matches, _ := e.findAll(text, entry, DefaultFlags)
		total += len(matches)
		samples = mergeSamples(samples, matches...)
	}
	return NodeResult{
		Matched: total >= minMatches(n.MinMatches),
		Count:   total,
		Samples: samples,
	}
}

// evaluateAny evaluates every child, matched or not; there is no short-circuit.
func (e *Evaluator) evaluateAny(text string, n AnyNode) NodeResult {
	total := 0
	samples := []string{}
	for _, child := range n.Children {
		r := e.EvaluateNode(text, child)
		total += r.Count
		samples = mergeSamples(samples, r.Samples...)
	}
	matched := total >= minMatches(n.MinMatches)
	if n.MaxMatches != nil && total > *n.MaxMatches {
		matched = false
	}
	return NodeResult{Matched: matched, Count: total, Samples: samples}
}

// EvaluatePattern evaluates the top-level nodes of a tree as a strict
// conjunction. The first unmatched node ends the pass and the pattern reports
// unmatched with no count or samples, even if earlier nodes matched.
func (e *Evaluator) EvaluatePattern(text string, tree PatternTree, confidence int) PatternResult {
	total := 0
	samples := []string{}
	for _, node := range tree.Nodes {
		r := e.EvaluateNode(text, node)
		if !r.Matched {
			return PatternResult{Samples: []string{}, Confidence: confidence}
		}
		total += r.Count
		samples = mergeSamples(samples, r.Samples...)
	}
	return PatternResult{Matched: true, Count: total, Samples: samples, Confidence: confidence}
}

// EvaluateDetector runs a simple detector. It returns false when the detector
// does not fire, including when its pattern is invalid.
func (e *Evaluator) EvaluateDetector(text string, d Detector) (ClassificationMatch, bool) {
	matches, ok := e.findAll(text, d.Pattern, DefaultFlags)
	if !ok {
		return ClassificationMatch{}, false
	}
	count := len(matches)
	if count < minMatches(d.MinCount) {
		return ClassificationMatch{}, false
	}

	source := SourceManual
	if d.Source == SourceSample {
		source = SourceSample
	}

	return ClassificationMatch{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		Count:           count,
		Confidence:      d.Confidence.Resolve(),
		SensitiveTypeID: strings.TrimSpace(d.SensitiveTypeID),
		Samples:         mergeSamples(nil, matches...),
		Source:          source,
	}, true
}

// EvaluateRulePackDetector runs a rule-pack detector's pattern tree. It
// returns false when the tree is unmatched or its combined count is zero.
func (e *Evaluator) EvaluateRulePackDetector(text string, d RulePackDetector) (ClassificationMatch, bool) {
	declared := d.Confidence.Resolve()
	r := e.EvaluatePattern(text, d.Pattern, declared)
	if !r.Matched || r.Count == 0 {
		return ClassificationMatch{}, false
	}

	confidence := declared
	if r.Confidence > confidence {
		confidence = r.Confidence
	}

	return ClassificationMatch{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		Count:           r.Count,
		Confidence:      clampConfidence(confidence),
		SensitiveTypeID: strings.TrimSpace(d.SITID),
		Samples:         r.Samples,
		Source:          SourceRulePack,
	}, true
}

// mergeSamples appends distinct values to dst in first-seen order, stopping at MaxSamples
func mergeSamples(dst []string, values ...string) []string {
	if dst == nil {
		dst = make([]string, 0, MaxSamples)
	}
	for _, v := range values {
		if len(dst) >= MaxSamples {
			break
		}
		if !containsSample(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func containsSample(samples []string, v string) bool {
	for _, s := range samples {
		if s == v {
			return true
		}
	}
	return false
}
