// Package classify provides the rule-based sensitive information type (SIT)
// classification engine: pattern normalization, recursive pattern-tree
// evaluation, per-detector matching and aggregation of matches into
// per-SIT totals ready for downstream policy evaluation.
package classify

import (
	"regexp"
	"strings"
)

// Source identifies where a detector definition came from
type Source string

const (
	SourceSample   Source = "sample"
	SourceManual   Source = "manual"
	SourceRulePack Source = "rulepack"
)

const (
	// MaxSamples caps the evidence strings kept per result
	MaxSamples = 5

	// DefaultConfidence is used when a detector declares no usable confidence
	DefaultConfidence = 50

	// MaxConfidence is the highest confidence score a detector may carry
	MaxConfidence = 99

	// DefaultFlags is the flag set patterns start from when none are given
	DefaultFlags = "gi"
)

// PatternDescriptor is a raw pattern source plus optional flags. It is never
// stored compiled; it is normalized on every evaluation.
type PatternDescriptor struct {
	// Regexp is an already-compiled pattern. When set, Source is ignored.
	Regexp *regexp.Regexp `json:"-" yaml:"-"`

	// Source is the pattern text. It may be delimiter-wrapped ("/abc/i")
	// or begin with an inline modifier group ("(?i)abc").
	Source string `json:"source" yaml:"source"`

	// Flags replaces DefaultFlags as the starting flag set when non-empty.
	Flags string `json:"flags,omitempty" yaml:"flags,omitempty"`

	// Unicode overrides the \p heuristic when set.
	Unicode *bool `json:"unicode,omitempty" yaml:"unicode,omitempty"`
}

// Detector is a simple single-regex detector
type Detector struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	Pattern         PatternDescriptor `json:"pattern" yaml:"pattern"`
	MinCount        int               `json:"min_count,omitempty" yaml:"min_count,omitempty"`
	Confidence      Score             `json:"confidence" yaml:"confidence"`
	SensitiveTypeID string            `json:"sensitive_type_id,omitempty" yaml:"sensitive_type_id,omitempty"`
	Source          Source            `json:"source,omitempty" yaml:"source,omitempty"` // "manual" or "sample"
}

// RulePackDetector is one (SIT, pattern) pair imported from a rule pack
type RulePackDetector struct {
	ID          string      `json:"id" yaml:"id"`
	SITID       string      `json:"sit_id" yaml:"sit_id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Pattern     PatternTree `json:"pattern" yaml:"pattern"`
	Confidence  Score       `json:"confidence" yaml:"confidence"`
}

// DetectorSet is the full list of detectors for one classification run
type DetectorSet struct {
	Detectors []Detector         `json:"detectors,omitempty" yaml:"detectors,omitempty"`
	RulePack  []RulePackDetector `json:"rule_pack,omitempty" yaml:"rule_pack,omitempty"`
}

// Len returns the number of detectors in the set
func (s DetectorSet) Len() int {
	return len(s.Detectors) + len(s.RulePack)
}

// NodeResult is the outcome of evaluating one pattern node
type NodeResult struct {
	Matched bool     `json:"matched"`
	Count   int      `json:"count"`
	Samples []string `json:"samples"`
}

// PatternResult is the outcome of evaluating a whole pattern tree
type PatternResult struct {
	Matched    bool     `json:"matched"`
	Count      int      `json:"count"`
	Samples    []string `json:"samples"`
	Confidence int      `json:"confidence"`
}

// ClassificationMatch is produced once per firing detector
type ClassificationMatch struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	Count           int      `json:"count"`
	Confidence      int      `json:"confidence"`
	SensitiveTypeID string   `json:"sensitive_type_id,omitempty"`
	Samples         []string `json:"samples"`
	Source          Source   `json:"source"`
}

// AggregatedMatch merges every ClassificationMatch sharing a grouping key
type AggregatedMatch struct {
	ClassificationMatch

	// Contributors is the number of matches merged into this entry
	Contributors int `json:"contributors"`
}

// Key returns the aggregation key: the SIT id when present, else the detector id
func (m ClassificationMatch) Key() string {
	if sit := strings.TrimSpace(m.SensitiveTypeID); sit != "" {
		return sit
	}
	return strings.TrimSpace(m.ID)
}

// PolicyRecord is the minimal shape the downstream label-evaluation service consumes
type PolicyRecord struct {
	SensitiveTypeID string `json:"sensitiveTypeId"`
	Count           int    `json:"count"`
	ConfidenceLevel int    `json:"confidenceLevel"`
}

// Result is the outcome of one classification run
type Result struct {
	Matches    []ClassificationMatch `json:"matches"`
	Aggregated []AggregatedMatch     `json:"aggregated"`
	Policy     []PolicyRecord        `json:"policy"`
}

// InvalidDetector reports a detector whose patterns fail to normalize or compile
type InvalidDetector struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Source   Source           `json:"source"`
	Problems []PatternProblem `json:"problems"`
}

// PatternProblem locates one bad pattern inside a detector
type PatternProblem struct {
	Path    string `json:"path"` // "pattern", "nodes[1].children[0].entries[2]"
	Pattern string `json:"pattern"`
	Reason  string `json:"reason"`
}
