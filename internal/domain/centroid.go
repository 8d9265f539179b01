package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// GRS80 ellipsoid, the PROJ default for +proj=cea.
const (
	grs80SemiMajor   = 6378137.0
	grs80Flattening  = 1 / 298.257222101
	grs80EccSquared  = grs80Flattening * (2 - grs80Flattening)
	degreesToRadians = math.Pi / 180
)

var grs80Ecc = math.Sqrt(grs80EccSquared)

// EqualArea is the cylindrical equal-area projection (+proj=cea, lon_0=0,
// lat_ts=0) on the GRS80 ellipsoid. Output is in metres.
var EqualArea = struct {
	FromWGS84 orb.Projection
}{
	FromWGS84: func(p orb.Point) orb.Point {
		lambda := p[0] * degreesToRadians
		sinPhi := math.Sin(p[1] * degreesToRadians)
		return orb.Point{
			grs80SemiMajor * lambda,
			grs80SemiMajor * authalicQ(sinPhi) / 2,
		}
	},
}

// authalicQ is Snyder's q(phi) (eq. 3-12), which makes y proportional to the
// area between the equator and the parallel.
func authalicQ(sinPhi float64) float64 {
	e := grs80Ecc
	esin := e * sinPhi
	return (1 - grs80EccSquared) * (sinPhi/(1-esin*esin) - math.Log((1-esin)/(1+esin))/(2*e))
}

// CalculateCentroid returns the midpoint of the collection's bounding box
// computed in equal-area space and expressed in geodetic coordinates.
//
// The projection is strictly monotone in each axis, so every edge of the
// projected bound is attained by an input point and that point's geodetic
// coordinate is the exact inverse of the edge. A single point therefore maps
// back to itself without round-off.
func CalculateCentroid(c Collection) (Centroid, error) {
	if c.Len() == 0 {
		return Centroid{}, fmt.Errorf("%w: no detections to locate", ErrEmptyDataset)
	}

	geodetic := c.MultiPoint()
	projected := project.MultiPoint(geodetic.Clone(), EqualArea.FromWGS84)

	minX, maxX, minY, maxY := boundIndexes(projected)
	bound := orb.Bound{
		Min: orb.Point{geodetic[minX][0], geodetic[minY][1]},
		Max: orb.Point{geodetic[maxX][0], geodetic[maxY][1]},
	}

	return Centroid{
		Lat:            (bound.Min[1] + bound.Max[1]) / 2,
		Lon:            (bound.Min[0] + bound.Max[0]) / 2,
		Bound:          bound,
		ProjectedBound: projected.Bound(),
	}, nil
}

// boundIndexes returns the indexes of the points holding the minimum and
// maximum x and y. The first occurrence wins on ties.
func boundIndexes(mp orb.MultiPoint) (minX, maxX, minY, maxY int) {
	for i, p := range mp {
		if p[0] < mp[minX][0] {
			minX = i
		}
		if p[0] > mp[maxX][0] {
			maxX = i
		}
		if p[1] < mp[minY][1] {
			minY = i
		}
		if p[1] > mp[maxY][1] {
			maxY = i
		}
	}
	return minX, maxX, minY, maxY
}
