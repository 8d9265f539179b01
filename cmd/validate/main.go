// Command validate checks FIRMS country CSV exports before they are replayed
// through the pipeline. Each file is run through the same stages as the
// service and any row that would fail a stage is reported with its line.
// When -expect is given, the GeoJSON written by cmd/firms for the same export
// is compared against a fresh build.
//
// Usage:
//
//	go run ./cmd/validate -today 2024-01-02 exports/viirs_aus.csv exports/modis_aus.csv
//	go run ./cmd/validate -expect out/viirs_aus.geojson exports/viirs_aus.csv
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// maxReported caps the errors kept per phase so a broken export stays readable.
const maxReported = 20

var requiredColumns = []string{
	domain.ColumnLatitude,
	domain.ColumnLongitude,
	domain.ColumnAcqDate,
	domain.ColumnAcqTime,
	domain.ColumnConfidence,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name    string
	errors  []string
	dropped int
}

func (p *phase) errorf(format string, args ...any) {
	if len(p.errors) >= maxReported {
		p.dropped++
		return
	}
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	todayFlag := fs.String("today", "", "reference UTC date for days_ago, YYYY-MM-DD (default: now)")
	expect := fs.String("expect", "", "GeoJSON written by cmd/firms to compare against (single file only)")
	color := fs.Bool("color", true, "colorize PASS/FAIL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files := fs.Args()
	if len(files) == 0 || (*expect != "" && len(files) != 1) {
		fs.Usage()
		return 2
	}

	if *todayFlag != "" {
		today, err := time.Parse(time.DateOnly, *todayFlag)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -today %q: %v\n", *todayFlag, err)
			return 2
		}
		domain.SetClock(clockwork.NewFakeClockAt(today))
		defer domain.SetClock(nil)
	}

	fmt.Fprintln(stdout, "=== FIRMS Export Validation ===")

	allPassed := true
	for _, path := range files {
		batch, err := loadBatch(path)
		if err != nil {
			fmt.Fprintf(stdout, "\n%s\n  FATAL: %v\n", path, err)
			allPassed = false
			continue
		}

		phases := []*phase{
			validateSchema(batch),
			validateTemporal(batch),
			validateConfidence(batch),
			validateGeometry(batch),
		}
		res, buildPhase := validateBuild(batch)
		phases = append(phases, buildPhase)
		if *expect != "" {
			phases = append(phases, validateExpected(*expect, res))
		}

		if !report(stdout, path, batch, phases, *color) {
			allPassed = false
		}
	}

	if allPassed {
		fmt.Fprintln(stdout, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(stdout, "\nValidation FAILED.")
	return 1
}

func loadBatch(path string) (domain.RawBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.RawBatch{}, err
	}
	defer f.Close()
	return domain.DecodeCSV(f)
}

func report(w io.Writer, path string, batch domain.RawBatch, phases []*phase, color bool) bool {
	fmt.Fprintf(w, "\n%s (%d rows)\n", path, batch.Len())

	passed := true
	for _, p := range phases {
		status := paint(color, "32", "PASS")
		if !p.passed() {
			status = paint(color, "31", fmt.Sprintf("FAIL (%d errors)", len(p.errors)+p.dropped))
			passed = false
		}
		fmt.Fprintf(w, "  %-28s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n  --- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
		if p.dropped > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", p.dropped)
		}
	}
	return passed
}

func paint(enabled bool, code, s string) string {
	if !enabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// rowFields maps data row i (1-based CSV line i+2) onto the header.
func rowFields(batch domain.RawBatch, i int) map[string]string {
	row := batch.Rows[i]
	fields := make(map[string]string, len(batch.Columns))
	for j, col := range batch.Columns {
		if j < len(row) {
			fields[col] = strings.TrimSpace(row[j])
		}
	}
	return fields
}

func line(i int) int { return i + 2 }

// ── Phase 1: Schema ──

func validateSchema(batch domain.RawBatch) *phase {
	p := &phase{name: "Schema"}
	for _, col := range requiredColumns {
		if !batch.HasColumn(col) {
			p.errorf("missing column %q", col)
		}
	}
	seen := make(map[string]bool, len(batch.Columns))
	for _, col := range batch.Columns {
		if seen[col] {
			p.errorf("duplicate column %q", col)
		}
		seen[col] = true
	}
	for i, row := range batch.Rows {
		if len(row) != len(batch.Columns) {
			p.errorf("line %d: %d cells, header has %d", line(i), len(row), len(batch.Columns))
		}
	}
	return p
}

// ── Phase 2: Temporal ──

func validateTemporal(batch domain.RawBatch) *phase {
	p := &phase{name: "Temporal"}
	for i := range batch.Rows {
		f := rowFields(batch, i)
		if _, err := time.Parse(time.DateOnly, f[domain.ColumnAcqDate]); err != nil {
			p.errorf("line %d: invalid acq_date %q", line(i), f[domain.ColumnAcqDate])
		}
		if err := checkAcqTime(f[domain.ColumnAcqTime]); err != nil {
			p.errorf("line %d: %v", line(i), err)
		}
	}
	if !p.passed() {
		return p
	}

	detections, err := domain.NormalizeTemporal(batch)
	if err != nil {
		p.errorf("normalize: %v", err)
		return p
	}
	checkDenseRanks(p, detections)
	return p
}

// checkAcqTime accepts the integer HHMM form FIRMS publishes, with leading
// zeros dropped.
func checkAcqTime(raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 2359 || n%100 > 59 {
		return fmt.Errorf("invalid acq_time %q", raw)
	}
	return nil
}

// checkDenseRanks verifies days_ago covers a contiguous range starting at 0 or 1.
func checkDenseRanks(p *phase, detections []domain.Detection) {
	if len(detections) == 0 {
		return
	}
	ranks := make(map[int]bool)
	lowest, highest := math.MaxInt, math.MinInt
	for _, d := range detections {
		ranks[d.DaysAgo] = true
		lowest = min(lowest, d.DaysAgo)
		highest = max(highest, d.DaysAgo)
	}
	if lowest != 0 && lowest != 1 {
		p.errorf("days_ago starts at %d, want 0 or 1", lowest)
	}
	for r := lowest; r <= highest; r++ {
		if !ranks[r] {
			p.errorf("days_ago rank %d missing between %d and %d", r, lowest, highest)
		}
	}
}

// ── Phase 3: Confidence ──

func validateConfidence(batch domain.RawBatch) *phase {
	p := &phase{name: "Confidence"}
	if !batch.HasColumn(domain.ColumnConfidence) {
		p.errorf("missing column %q", domain.ColumnConfidence)
		return p
	}

	values := make([]string, batch.Len())
	for i := range batch.Rows {
		values[i] = rowFields(batch, i)[domain.ColumnConfidence]
	}
	scheme, err := domain.DetectConfidenceScheme(values)
	if err != nil {
		p.errorf("%v", err)
		return p
	}

	for i, v := range values {
		if scheme != domain.SchemeNumeric || v == "" {
			continue
		}
		if score, _ := strconv.ParseFloat(v, 64); score < 0 || score > 100 {
			p.errorf("line %d: confidence %s outside 0-100", line(i), v)
		}
	}

	// VIIRS exports carry bright_ti4 and categorical codes; MODIS carries
	// brightness and numeric scores.
	switch {
	case batch.HasColumn("bright_ti4") && scheme != domain.SchemeCategorical:
		p.errorf("VIIRS export with %s confidence", scheme)
	case batch.HasColumn("brightness") && scheme != domain.SchemeNumeric:
		p.errorf("MODIS export with %s confidence", scheme)
	}
	return p
}

// ── Phase 4: Geometry ──

func validateGeometry(batch domain.RawBatch) *phase {
	p := &phase{name: "Geometry"}
	for i := range batch.Rows {
		f := rowFields(batch, i)
		checkCoordinate(p, i, f[domain.ColumnLatitude], domain.ColumnLatitude, 90)
		checkCoordinate(p, i, f[domain.ColumnLongitude], domain.ColumnLongitude, 180)
	}
	return p
}

func checkCoordinate(p *phase, i int, raw, column string, limit float64) {
	v, err := strconv.ParseFloat(raw, 64)
	switch {
	case err != nil:
		p.errorf("line %d: invalid %s %q", line(i), column, raw)
	case math.IsNaN(v) || math.Abs(v) > limit:
		p.errorf("line %d: %s %v out of range", line(i), column, v)
	}
}

// ── Phase 5: Build ──

// validateBuild runs the full stage chain and checks the centroid lies inside
// the extent of the kept detections.
func validateBuild(batch domain.RawBatch) (domain.Result, *phase) {
	p := &phase{name: "Build"}

	detections, err := domain.NormalizeTemporal(batch)
	if err != nil {
		p.errorf("%v", err)
		return domain.Result{}, p
	}
	kept, err := domain.FilterHighConfidence(detections)
	if err != nil {
		p.errorf("%v", err)
		return domain.Result{}, p
	}
	collection, err := domain.BuildCollection(kept)
	if err != nil {
		p.errorf("%v", err)
		return domain.Result{}, p
	}
	res := domain.Result{Collection: collection}
	if collection.Len() == 0 {
		return res, p
	}

	centroid, err := domain.CalculateCentroid(collection)
	if err != nil {
		p.errorf("%v", err)
		return res, p
	}
	res.Centroid = centroid
	if !collection.MultiPoint().Bound().Contains(centroid.Point()) {
		p.errorf("centroid (%v, %v) outside detection extent", centroid.Lat, centroid.Lon)
	}
	return res, p
}

// ── Phase 6: Expected output ──

type expectedCollection struct {
	Features []json.RawMessage `json:"features"`
	Centroid *struct {
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
		Fallback bool    `json:"fallback"`
	} `json:"centroid"`
}

func validateExpected(path string, res domain.Result) *phase {
	p := &phase{name: "Expected output"}

	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("%v", err)
		return p
	}
	var want expectedCollection
	if err := json.Unmarshal(data, &want); err != nil {
		p.errorf("decode %s: %v", path, err)
		return p
	}

	if got := res.Collection.Len(); len(want.Features) != got {
		p.errorf("feature count: expected %d, built %d", len(want.Features), got)
	}
	switch {
	case want.Centroid == nil:
		p.errorf("expected output has no centroid member")
	case want.Centroid.Fallback:
		if res.Collection.Len() != 0 {
			p.errorf("expected output used the fallback centroid but the build kept %d detections", res.Collection.Len())
		}
	case !floatEq(want.Centroid.Lat, res.Centroid.Lat) || !floatEq(want.Centroid.Lon, res.Centroid.Lon):
		p.errorf("centroid: expected (%v, %v), built (%v, %v)",
			want.Centroid.Lat, want.Centroid.Lon, res.Centroid.Lat, res.Centroid.Lon)
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
