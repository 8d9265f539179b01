package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Properties derived by the pipeline, added to every feature next to the raw
// FIRMS columns.
const (
	PropertyAcquisitionDatetime = "acquisition_datetime"
	PropertyDaysAgo             = "days_ago"
	PropertyHighConfidence      = "high_confidence"
	PropertyMarkerColor         = "marker_color"
)

// markerColors indexes a display colour by days_ago: today is dark red and
// older detections fade towards light gray.
var markerColors = []string{
	"darkred",
	"red",
	"darkorange",
	"orange",
	"orange",
	"gray",
	"beige",
	"beige",
	"lightgray",
	"lightgray",
}

// defaultMarkerColor is used for days_ago outside the palette.
const defaultMarkerColor = "gray"

// MarkerColor returns the display colour for a detection acquired daysAgo days
// before the most recent acquisition.
func MarkerColor(daysAgo int) string {
	if daysAgo < 0 || daysAgo >= len(markerColors) {
		return defaultMarkerColor
	}
	return markerColors[daysAgo]
}

// BuildCollection attaches a (longitude, latitude) point to every detection
// and returns them as a Collection in EPSG:4326.
func BuildCollection(detections []Detection) (Collection, error) {
	out := make([]Detection, len(detections))
	for i, d := range detections {
		lon, err := parseCoordinate(d.Fields, ColumnLongitude, 180)
		if err != nil {
			return Collection{}, fmt.Errorf("%w: detection %d: %w", ErrGeometry, i+1, err)
		}
		lat, err := parseCoordinate(d.Fields, ColumnLatitude, 90)
		if err != nil {
			return Collection{}, fmt.Errorf("%w: detection %d: %w", ErrGeometry, i+1, err)
		}
		d.Point = orb.Point{lon, lat}
		out[i] = d
	}
	return Collection{CRS: CRS, Detections: out}, nil
}

// parseCoordinate reads a numeric column and checks it lies within +-limit.
func parseCoordinate(fields map[string]string, column string, limit float64) (float64, error) {
	raw, ok := fields[column]
	if !ok {
		return 0, fmt.Errorf("missing column %q", column)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("missing %s", column)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", column, raw)
	}
	if math.IsNaN(v) || v < -limit || v > limit {
		return 0, fmt.Errorf("%s %v out of range [-%v, %v]", column, v, limit, limit)
	}
	return v, nil
}

// FeatureCollection renders the collection as GeoJSON. Each feature carries
// every raw column plus the derived fields; the CRS is attached as a foreign
// member and the bbox is set when the collection is non-empty.
func (c Collection) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, d := range c.Detections {
		f := geojson.NewFeature(d.Point)
		for k, v := range d.Fields {
			f.Properties[k] = v
		}
		f.Properties[PropertyAcquisitionDatetime] = d.AcqDatetime
		f.Properties[PropertyDaysAgo] = d.DaysAgo
		f.Properties[PropertyHighConfidence] = d.HighConfidence
		f.Properties[PropertyMarkerColor] = MarkerColor(d.DaysAgo)
		fc.Append(f)
	}

	if c.Len() > 0 {
		fc.BBox = geojson.NewBBox(c.MultiPoint().Bound())
	}
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type":       "name",
			"properties": map[string]string{"name": c.CRS},
		},
	}
	return fc
}
