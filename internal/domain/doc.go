// Package domain models NASA FIRMS active-fire detections and the transforms
// that turn a raw country CSV into a ranked, geo-referenced collection.
//
// # Data Source
//
// The Fire Information for Resource Management System (FIRMS) publishes near
// real-time thermal anomaly detections from MODIS, VIIRS and Landsat. The
// country CSV endpoint
//
//	https://firms.modaps.eosdis.nasa.gov/api/country/csv/<MAP_KEY>/<product>/<country>/<days>
//
// returns one row per detection. The pipeline depends on five columns and
// carries every other column (bright_ti4, frp, satellite, daynight, ...)
// through untouched.
//
// # FIRMS Data Conventions
//
// Acquisition date and time:
//
//	acq_date is a UTC calendar date, "2024-01-01".
//	acq_time is HHMM in 24-hour UTC notation written as an integer, so leading
//	zeros are lost: 7 = 00:07, 930 = 09:30, 1510 = 15:10. It is zero-padded to
//	four digits and combined with the date as "2024-01-01 0930".
//
// Confidence (representation differs by instrument, never mixed in one file):
//
//	MODIS:  integer score 0-100. High confidence is a score >= 70.
//	VIIRS:  code "l" (low), "n" (nominal) or "h" (high). Nominal and high
//	        count as high confidence.
//
// Days ago:
//
//	A dense rank over the distinct acquisition dates, most recent first. When
//	the most recent date is today (UTC) it ranks 0, otherwise 1.
//
// # Geometry
//
// Points are (longitude, latitude) in EPSG:4326. The representative location
// of a collection is the midpoint of its bounding box computed in a
// cylindrical equal-area projection, see [CalculateCentroid]. It is a bounding
// box midpoint, not a point mean: it is stable under duplicate detections but
// can sit far from any detection when the distribution is skewed.
package domain
