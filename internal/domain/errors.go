package domain

import "errors"

var (
	// ErrDataFetch is returned when the raw source is unreachable or its body
	// cannot be decoded as CSV.
	ErrDataFetch = errors.New("data fetch failed")

	// ErrSchema is returned when required columns are missing, a date or time
	// cannot be parsed, or the confidence column mixes representations.
	ErrSchema = errors.New("schema error")

	// ErrGeometry is returned when a longitude or latitude is missing,
	// non-numeric, or outside the geodetic range.
	ErrGeometry = errors.New("geometry error")

	// ErrEmptyDataset is returned when a centroid is requested for a
	// collection with no detections.
	ErrEmptyDataset = errors.New("empty dataset")
)

// ErrorKind classifies err by the sentinel it wraps, for metric labels and
// API responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrDataFetch):
		return "fetch"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrGeometry):
		return "geometry"
	case errors.Is(err, ErrEmptyDataset):
		return "empty"
	default:
		return "other"
	}
}
