package classify

import (
	"fmt"
)

// FindInvalidDetectors reruns the normalizer and compiler over every pattern
// in the set and reports the detectors holding patterns that fail. Evaluation
// silently skips such patterns, so callers run this first to warn users.
// Unsupported node types are not reported; they are not patterns.
func (e *Evaluator) FindInvalidDetectors(set DetectorSet) []InvalidDetector {
	var invalid []InvalidDetector

	for _, d := range set.Detectors {
		if problem, bad := e.checkPattern("pattern", d.Pattern); bad {
			source := SourceManual
			if d.Source == SourceSample {
				source = SourceSample
			}
			invalid = append(invalid, InvalidDetector{
				ID:       d.ID,
				Name:     d.Name,
				Source:   source,
				Problems: []PatternProblem{problem},
			})
		}
	}

	for _, d := range set.RulePack {
		var problems []PatternProblem
		for i, node := range d.Pattern.Nodes {
			problems = e.checkNode(fmt.Sprintf("nodes[%d]", i), node, problems)
		}
		if len(problems) > 0 {
			invalid = append(invalid, InvalidDetector{
				ID:       d.ID,
				Name:     d.Name,
				Source:   SourceRulePack,
				Problems: problems,
			})
		}
	}

	return invalid
}

func (e *Evaluator) checkNode(path string, node PatternNode, problems []PatternProblem) []PatternProblem {
	switch n := node.(type) {
	case *RegexNode:
		if n != nil {
			return e.checkNode(path, *n, problems)
		}
	case *KeywordNode:
		if n != nil {
			return e.checkNode(path, *n, problems)
		}
	case *AnyNode:
		if n != nil {
			return e.checkNode(path, *n, problems)
		}
	case RegexNode:
		if p, bad := e.checkPattern(path+".pattern", n.Pattern); bad {
			problems = append(problems, p)
		}
	case KeywordNode:
		for i, entry := range n.Entries {
			if p, bad := e.checkPattern(fmt.Sprintf("%s.entries[%d]", path, i), entry); bad {
				problems = append(problems, p)
			}
		}
	case AnyNode:
		for i, child := range n.Children {
			problems = e.checkNode(fmt.Sprintf("%s.children[%d]", path, i), child, problems)
		}
	}
	return problems
}

func (e *Evaluator) checkPattern(path string, p PatternDescriptor) (PatternProblem, bool) {
	norm, ok := NormalizePattern(p, DefaultFlags)
	if !ok {
		return PatternProblem{Path: path, Pattern: p.Source, Reason: "empty pattern"}, true
	}
	if _, err := e.cache.Compile(norm.WithGlobal()); err != nil {
		return PatternProblem{Path: path, Pattern: p.Source, Reason: err.Error()}, true
	}
	return PatternProblem{}, false
}

// WithoutInvalid returns a copy of the set minus the detectors reported invalid
func (s DetectorSet) WithoutInvalid(invalid []InvalidDetector) DetectorSet {
	if len(invalid) == 0 {
		return s
	}

	skipSimple := make(map[string]bool)
	skipRulePack := make(map[string]bool)
	for _, d := range invalid {
		if d.Source == SourceRulePack {
			skipRulePack[d.ID] = true
		} else {
			skipSimple[d.ID] = true
		}
	}

	out := DetectorSet{}
	for _, d := range s.Detectors {
		if !skipSimple[d.ID] {
			out.Detectors = append(out.Detectors, d)
		}
	}
	for _, d := range s.RulePack {
		if !skipRulePack[d.ID] {
			out.RulePack = append(out.RulePack, d)
		}
	}
	return out
}
