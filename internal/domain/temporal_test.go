package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var firmsColumns = []string{"latitude", "longitude", "bright_ti4", "acq_date", "acq_time", "satellite", "confidence", "frp"}

// firmsRow builds a row in firmsColumns order.
func firmsRow(lat, lon, date, hhmm, confidence string) []string {
	return []string{lat, lon, "330.5", date, hhmm, "N", confidence, "4.2"}
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { SetClock(nil) })
}

func TestNormalizeTemporal_AcquisitionDatetime(t *testing.T) {
	freezeClock(t, time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))

	batch := RawBatch{
		Columns: firmsColumns,
		Rows: [][]string{
			firmsRow("20.0", "10.0", "2024-01-01", "7", "90"),
			firmsRow("20.0", "10.0", "2024-01-01", "930", "90"),
			firmsRow("20.0", "10.0", "2024-01-01", "1510", "90"),
			firmsRow("20.0", "10.0", "2024-01-01", "0000", "90"),
			firmsRow("20.0", "10.0", "2024-01-01", "2359", "90"),
		},
	}

	dets, err := NormalizeTemporal(batch)
	require.NoError(t, err)
	require.Len(t, dets, 5)

	assert.Equal(t, "2024-01-01 0007", dets[0].AcqDatetime)
	assert.Equal(t, "2024-01-01 0930", dets[1].AcqDatetime)
	assert.Equal(t, "2024-01-01 1510", dets[2].AcqDatetime)
	assert.Equal(t, "2024-01-01 0000", dets[3].AcqDatetime)
	assert.Equal(t, "2024-01-01 2359", dets[4].AcqDatetime)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), dets[0].AcqDate)
	assert.Equal(t, "330.5", dets[0].Field("bright_ti4"))
	assert.Equal(t, "90", dets[0].Confidence())
}

func TestNormalizeTemporal_DaysAgo(t *testing.T) {
	rows := [][]string{
		firmsRow("1", "1", "2024-01-03", "100", "90"),
		firmsRow("1", "1", "2024-01-01", "100", "90"),
		firmsRow("1", "1", "2024-01-03", "200", "90"),
		firmsRow("1", "1", "2023-12-28", "100", "90"),
		firmsRow("1", "1", "2024-01-02", "100", "90"),
	}

	t.Run("latest date is not today", func(t *testing.T) {
		freezeClock(t, time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))

		dets, err := NormalizeTemporal(RawBatch{Columns: firmsColumns, Rows: rows})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 3, 1, 4, 2}, daysAgo(dets))
	})

	t.Run("latest date is today", func(t *testing.T) {
		freezeClock(t, time.Date(2024, time.January, 3, 23, 59, 0, 0, time.UTC))

		dets, err := NormalizeTemporal(RawBatch{Columns: firmsColumns, Rows: rows})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 0, 3, 1}, daysAgo(dets))
	})

	t.Run("today is taken in UTC", func(t *testing.T) {
		// 2024-01-02 20:00 in New York is already 2024-01-03 in UTC.
		ny := time.FixedZone("EST", -5*60*60)
		freezeClock(t, time.Date(2024, time.January, 2, 20, 0, 0, 0, ny))

		dets, err := NormalizeTemporal(RawBatch{Columns: firmsColumns, Rows: rows})
		require.NoError(t, err)
		assert.Equal(t, 0, dets[0].DaysAgo)
	})
}

func TestNormalizeTemporal_RanksAreDense(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	dates := []string{"2024-05-01", "2024-05-20", "2024-05-01", "2024-04-02", "2024-05-20", "2024-05-19"}
	batch := RawBatch{Columns: firmsColumns}
	for _, d := range dates {
		batch.Rows = append(batch.Rows, firmsRow("1", "1", d, "1200", "90"))
	}

	dets, err := NormalizeTemporal(batch)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, d := range dets {
		assert.GreaterOrEqual(t, d.DaysAgo, 0)
		seen[d.DaysAgo] = true
	}
	for rank := 1; rank <= len(seen); rank++ {
		assert.True(t, seen[rank], "rank %d missing", rank)
	}
}

func TestNormalizeTemporal_Empty(t *testing.T) {
	dets, err := NormalizeTemporal(RawBatch{Columns: firmsColumns})
	require.NoError(t, err)
	assert.Empty(t, dets)

	dets, err = NormalizeTemporal(RawBatch{})
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestNormalizeTemporal_SchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		batch RawBatch
	}{
		{
			name:  "missing acq_date",
			batch: RawBatch{Columns: []string{"acq_time"}, Rows: [][]string{{"1200"}}},
		},
		{
			name:  "missing acq_time",
			batch: RawBatch{Columns: []string{"acq_date"}, Rows: [][]string{{"2024-01-01"}}},
		},
		{
			name:  "unparseable date",
			batch: RawBatch{Columns: firmsColumns, Rows: [][]string{firmsRow("1", "1", "01/02/2024", "1200", "90")}},
		},
		{
			name:  "hour out of range",
			batch: RawBatch{Columns: firmsColumns, Rows: [][]string{firmsRow("1", "1", "2024-01-01", "2460", "90")}},
		},
		{
			name:  "non-numeric time",
			batch: RawBatch{Columns: firmsColumns, Rows: [][]string{firmsRow("1", "1", "2024-01-01", "noon", "90")}},
		},
		{
			name:  "time too long",
			batch: RawBatch{Columns: firmsColumns, Rows: [][]string{firmsRow("1", "1", "2024-01-01", "12000", "90")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeTemporal(tt.batch)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestPadHHMM(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		wantErr  bool
	}{
		{raw: "0", expected: "0000"},
		{raw: "7", expected: "0007"},
		{raw: "45", expected: "0045"},
		{raw: "930", expected: "0930"},
		{raw: "1510", expected: "1510"},
		{raw: " 930 ", expected: "0930"},
		{raw: "930.0", expected: "0930"},
		{raw: "", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "9.5", wantErr: true},
		{raw: "12345", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := padHHMM(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func daysAgo(dets []Detection) []int {
	out := make([]int, len(dets))
	for i, d := range dets {
		out[i] = d.DaysAgo
	}
	return out
}
