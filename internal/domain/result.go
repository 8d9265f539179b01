package domain

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Result is the output of one pipeline build: the filtered collection and
// its representative location.
type Result struct {
	Collection Collection
	Centroid   Centroid

	// CentroidFallback is true when the collection was empty and Centroid is
	// the configured fallback location.
	CentroidFallback bool
}

// GeoJSON renders the result as a FeatureCollection with the centroid
// attached as a foreign member.
func (r Result) GeoJSON() *geojson.FeatureCollection {
	fc := r.Collection.FeatureCollection()
	fc.ExtraMembers["centroid"] = map[string]any{
		"lat":      r.Centroid.Lat,
		"lon":      r.Centroid.Lon,
		"fallback": r.CentroidFallback,
	}
	return fc
}

// MarshalResult serializes a result as GeoJSON, adding the given foreign members.
func MarshalResult(r Result, members map[string]any) ([]byte, error) {
	fc := r.GeoJSON()
	for k, v := range members {
		fc.ExtraMembers[k] = v
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}
	return data, nil
}
