package classify

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Score is a detector's declared confidence. The zero value is "not declared".
// Rule packs and hand-written detectors are untrusted input, so decoding never
// fails: a value that is not a number is treated as undeclared.
type Score struct {
	value int
	set   bool
}

// ScoreOf declares a confidence value
func ScoreOf(v int) Score {
	return Score{value: v, set: true}
}

// IsSet reports whether a numeric confidence was declared
func (s Score) IsSet() bool {
	return s.set
}

// Resolve returns the declared value clamped to [0, MaxConfidence], or
// DefaultConfidence when nothing usable was declared.
func (s Score) Resolve() int {
	if !s.set {
		return DefaultConfidence
	}
	return clampConfidence(s.value)
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

// parseScore accepts integers, decimals and numeric strings
func parseScore(raw string) Score {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Score{}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Score{}
	}
	// Clamp before converting: out-of-range float to int is undefined
	if f > MaxConfidence {
		return ScoreOf(MaxConfidence)
	}
	if f < 0 {
		return ScoreOf(0)
	}
	return ScoreOf(int(math.Round(f)))
}

// MarshalJSON encodes an undeclared score as null
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.value)), nil
}

// UnmarshalJSON accepts a number, a numeric string or null
func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*s = Score{}
			return nil
		}
		*s = parseScore(str)
		return nil
	}
	*s = parseScore(string(data))
	return nil
}

// MarshalYAML encodes an undeclared score as null
func (s Score) MarshalYAML() (interface{}, error) {
	if !s.set {
		return nil, nil
	}
	return s.value, nil
}

// UnmarshalYAML accepts any scalar; non-numeric values leave the score undeclared
func (s *Score) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.Tag == "!!null" {
		*s = Score{}
		return nil
	}
	*s = parseScore(value.Value)
	return nil
}
