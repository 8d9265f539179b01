package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 1504"
)

// NormalizeTemporal parses acq_date and acq_time for every row and derives
// acquisition_datetime and days_ago. An empty batch yields no detections and
// no error.
func NormalizeTemporal(batch RawBatch) ([]Detection, error) {
	if batch.Len() == 0 {
		return []Detection{}, nil
	}
	for _, col := range []string{ColumnAcqDate, ColumnAcqTime} {
		if !batch.HasColumn(col) {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchema, col)
		}
	}

	detections := make([]Detection, batch.Len())
	for i := range batch.Rows {
		fields := batch.record(i)

		date, err := time.Parse(dateLayout, strings.TrimSpace(fields[ColumnAcqDate]))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid acq_date %q", ErrSchema, i+1, fields[ColumnAcqDate])
		}
		hhmm, err := padHHMM(fields[ColumnAcqTime])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrSchema, i+1, err)
		}
		acquired, err := time.Parse(datetimeLayout, date.Format(dateLayout)+" "+hhmm)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid acq_time %q", ErrSchema, i+1, fields[ColumnAcqTime])
		}

		detections[i] = Detection{
			Fields:      fields,
			AcqDate:     date,
			AcqDatetime: acquired.Format(datetimeLayout),
		}
	}

	rankDaysAgo(detections, today())
	return detections, nil
}

// padHHMM zero-pads an acq_time value to four digits, e.g. "7" -> "0007",
// "930" -> "0930". Integral float renderings such as "930.0" are accepted.
func padHHMM(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		s = whole
	}
	if s == "" || len(s) > 4 {
		return "", fmt.Errorf("invalid acq_time %q", raw)
	}
	if _, err := strconv.ParseUint(s, 10, 16); err != nil {
		return "", fmt.Errorf("invalid acq_time %q", raw)
	}
	return strings.Repeat("0", 4-len(s)) + s, nil
}

// rankDaysAgo assigns a dense descending rank over the distinct acquisition
// dates: the most recent date is 1, the next distinct date 2, and so on. When
// the most recent date is today every rank shifts down so today is 0.
func rankDaysAgo(detections []Detection, today time.Time) {
	if len(detections) == 0 {
		return
	}

	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, d := range detections {
		if _, ok := seen[d.AcqDate]; ok {
			continue
		}
		seen[d.AcqDate] = struct{}{}
		dates = append(dates, d.AcqDate)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	offset := 0
	if dates[0].Equal(today) {
		offset = 1
	}

	rank := make(map[time.Time]int, len(dates))
	for i, date := range dates {
		rank[date] = i + 1 - offset
	}
	for i := range detections {
		detections[i].DaysAgo = rank[detections[i].AcqDate]
	}
}

// today returns the current UTC calendar date at midnight. FIRMS acquisition
// dates are UTC.
func today() time.Time {
	now := clock.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
