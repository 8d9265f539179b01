package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// HighConfidenceThreshold is the inclusive minimum numeric score (0-100 scale)
// for a detection to count as high confidence.
const HighConfidenceThreshold = 70.0

// ConfidenceScheme is the representation used by a batch's confidence column.
type ConfidenceScheme int

const (
	// SchemeNumeric is a 0-100 score (MODIS).
	SchemeNumeric ConfidenceScheme = iota + 1
	// SchemeCategorical is a low/nominal/high code (VIIRS).
	SchemeCategorical
)

func (s ConfidenceScheme) String() string {
	switch s {
	case SchemeNumeric:
		return "numeric"
	case SchemeCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// confidenceCodes maps categorical values to whether they count as high
// confidence. Keys are lower case.
var confidenceCodes = map[string]bool{
	"l":       false,
	"low":     false,
	"n":       true,
	"nominal": true,
	"h":       true,
	"high":    true,
}

// DetectConfidenceScheme decides which representation a confidence column
// uses. Every non-blank value must agree; blank cells carry no vote. An
// all-blank column is treated as numeric, so every record classifies false.
func DetectConfidenceScheme(values []string) (ConfidenceScheme, error) {
	var numeric, categorical int
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := parseScore(v); ok {
			numeric++
			continue
		}
		if _, ok := confidenceCodes[strings.ToLower(v)]; ok {
			categorical++
			continue
		}
		return 0, fmt.Errorf("%w: unrecognized confidence value %q", ErrSchema, raw)
	}

	switch {
	case numeric > 0 && categorical > 0:
		return 0, fmt.Errorf("%w: confidence mixes %d numeric and %d categorical values", ErrSchema, numeric, categorical)
	case categorical > 0:
		return SchemeCategorical, nil
	default:
		return SchemeNumeric, nil
	}
}

// IsHighConfidence classifies a single value under the given scheme.
func IsHighConfidence(scheme ConfidenceScheme, value string) bool {
	v := strings.TrimSpace(value)
	switch scheme {
	case SchemeNumeric:
		score, ok := parseScore(v)
		return ok && score >= HighConfidenceThreshold
	case SchemeCategorical:
		return confidenceCodes[strings.ToLower(v)]
	default:
		return false
	}
}

// parseScore reads a decimal confidence score. Hex notation, Inf and NaN are
// not scores.
func parseScore(v string) (float64, bool) {
	if strings.ContainsAny(v, "xX") {
		return 0, false
	}
	score, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

// ClassifyConfidence sets HighConfidence on every detection. The input slice
// is not modified.
func ClassifyConfidence(detections []Detection) ([]Detection, error) {
	if len(detections) == 0 {
		return []Detection{}, nil
	}

	values := make([]string, len(detections))
	for i, d := range detections {
		v, ok := d.Fields[ColumnConfidence]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchema, ColumnConfidence)
		}
		values[i] = v
	}

	scheme, err := DetectConfidenceScheme(values)
	if err != nil {
		return nil, err
	}

	out := make([]Detection, len(detections))
	for i, d := range detections {
		d.HighConfidence = IsHighConfidence(scheme, values[i])
		out[i] = d
	}
	return out, nil
}

// FilterHighConfidence classifies the detections and keeps the high-confidence
// ones in their original order. A batch with no high-confidence detections
// yields an empty slice, not an error.
func FilterHighConfidence(detections []Detection) ([]Detection, error) {
	classified, err := ClassifyConfidence(detections)
	if err != nil {
		return nil, err
	}

	kept := make([]Detection, 0, len(classified))
	for _, d := range classified {
		if d.HighConfidence {
			kept = append(kept, d)
		}
	}
	return kept, nil
}
