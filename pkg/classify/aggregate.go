package classify

import "strings"

// Aggregate merges matches that represent the same SIT. Matches are keyed by
// SensitiveTypeID, or by ID when no SIT is set; matches with neither are
// dropped. Counts are summed, confidence is the maximum, and samples are the
// distinct union in first-seen order capped at MaxSamples. Output follows the
// order in which keys were first seen.
func Aggregate(matches []ClassificationMatch) []AggregatedMatch {
	result := make([]AggregatedMatch, 0, len(matches))
	index := make(map[string]int, len(matches))

	for _, m := range matches {
		key := m.Key()
		if key == "" {
			continue
		}

		i, ok := index[key]
		if !ok {
			seed := m
			seed.Samples = mergeSamples(nil, m.Samples...)
			index[key] = len(result)
			result = append(result, AggregatedMatch{ClassificationMatch: seed, Contributors: 1})
			continue
		}

		agg := &result[i]
		agg.Count += m.Count
		if m.Confidence > agg.Confidence {
			agg.Confidence = m.Confidence
		}
		agg.Samples = mergeSamples(agg.Samples, m.Samples...)
		agg.Contributors++
	}

	return result
}

// ProjectPolicy keeps the aggregated matches that carry a SIT id and maps
// them to the triple the downstream label-evaluation service consumes.
// Entries keyed only by detector id are dropped.
func ProjectPolicy(aggregated []AggregatedMatch) []PolicyRecord {
	records := make([]PolicyRecord, 0, len(aggregated))
	for _, a := range aggregated {
		sit := strings.TrimSpace(a.SensitiveTypeID)
		if sit == "" {
			continue
		}
		records = append(records, PolicyRecord{
			SensitiveTypeID: sit,
			Count:           a.Count,
			ConfidenceLevel: a.Confidence,
		})
	}
	return records
}
