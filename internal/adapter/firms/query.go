package firms

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ErrInvalidQuery is returned for country queries FIRMS would reject.
var ErrInvalidQuery = errors.New("invalid FIRMS query")

// Products lists the FIRMS sources accepted by the country CSV endpoint.
var Products = []string{
	"LANDSAT_NRT",
	"MODIS_NRT",
	"MODIS_SP",
	"VIIRS_NOAA20_NRT",
	"VIIRS_NOAA20_SP",
	"VIIRS_NOAA21_NRT",
	"VIIRS_SNPP_NRT",
	"VIIRS_SNPP_SP",
}

// MaxDays is the largest day range a single FIRMS request may cover.
const MaxDays = 10

var countryCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Query selects the detections of one product over one country for the last
// Days days.
type Query struct {
	Product string
	Country string
	Days    int
}

// Normalize upper-cases the product and country and validates the query.
func (q Query) Normalize() (Query, error) {
	q.Product = strings.ToUpper(strings.TrimSpace(q.Product))
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))

	if !slices.Contains(Products, q.Product) {
		return Query{}, fmt.Errorf("%w: unknown product %q", ErrInvalidQuery, q.Product)
	}
	if !countryCode.MatchString(q.Country) {
		return Query{}, fmt.Errorf("%w: country %q is not an ISO 3166-1 alpha-3 code", ErrInvalidQuery, q.Country)
	}
	if q.Days < 1 || q.Days > MaxDays {
		return Query{}, fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidQuery, MaxDays, q.Days)
	}
	return q, nil
}
