package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Column names of the FIRMS country CSV that the pipeline depends on.
const (
	ColumnAcqDate    = "acq_date"
	ColumnAcqTime    = "acq_time"
	ColumnLongitude  = "longitude"
	ColumnLatitude   = "latitude"
	ColumnConfidence = "confidence"
)

// CRS is the coordinate reference system of every Collection.
const CRS = "EPSG:4326"

// RawBatch is a decoded CSV table: a header row and the data rows beneath it.
// Rows may be shorter than Columns; missing trailing cells read as blank.
type RawBatch struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (b RawBatch) Len() int {
	return len(b.Rows)
}

// HasColumn reports whether the header contains name.
func (b RawBatch) HasColumn(name string) bool {
	_, ok := b.index(name)
	return ok
}

func (b RawBatch) index(name string) (int, bool) {
	for i, c := range b.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// record maps row i onto its column names.
func (b RawBatch) record(i int) map[string]string {
	row := b.Rows[i]
	fields := make(map[string]string, len(b.Columns))
	for j, col := range b.Columns {
		if j < len(row) {
			fields[col] = row[j]
		} else {
			fields[col] = ""
		}
	}
	return fields
}

// Detection is one fire/thermal-anomaly observation. Fields holds every raw
// column of the source row; the remaining members are derived by the pipeline
// stages in order.
type Detection struct {
	Fields map[string]string

	AcqDate        time.Time
	AcqDatetime    string
	DaysAgo        int
	HighConfidence bool

	// Point is (longitude, latitude), set by BuildCollection.
	Point orb.Point
}

// Field returns a raw column value, or "" if the column is absent.
func (d Detection) Field(name string) string {
	return d.Fields[name]
}

// Confidence returns the raw confidence value as published by the source.
func (d Detection) Confidence() string {
	return d.Fields[ColumnConfidence]
}

// Collection is an ordered set of geo-referenced detections sharing one CRS.
type Collection struct {
	CRS        string
	Detections []Detection
}

// Len returns the number of detections.
func (c Collection) Len() int {
	return len(c.Detections)
}

// MultiPoint returns the detection points in collection order.
func (c Collection) MultiPoint() orb.MultiPoint {
	mp := make(orb.MultiPoint, len(c.Detections))
	for i, d := range c.Detections {
		mp[i] = d.Point
	}
	return mp
}

// Centroid is the representative location of a Collection: the midpoint of its
// bounding extent computed in equal-area space. It is not a point mean and may
// fall away from every detection when the distribution is skewed.
type Centroid struct {
	Lat float64
	Lon float64

	// Bound is the geodetic extent whose midpoint is the centroid.
	Bound orb.Bound
	// ProjectedBound is the same extent in equal-area metres.
	ProjectedBound orb.Bound
}

// Point returns the centroid as an orb.Point (lon, lat).
func (c Centroid) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}
