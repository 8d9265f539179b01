package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viirsHeader = "latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight\n"

const validVIIRS = viirsHeader +
	"-33.5,150.7,340.1,0.4,0.4,2024-01-02,345,N,VIIRS,h,2.0NRT,290.1,8.2,D\n" +
	"-33.6,150.9,331.4,0.4,0.4,2024-01-01,1510,N,VIIRS,n,2.0NRT,288.5,4.0,D\n" +
	"-34.0,151.0,301.2,0.4,0.4,2024-01-01,7,N,VIIRS,l,2.0NRT,280.3,1.1,N\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runValidate(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-color=false"}, args...), &stdout, &stderr)
	return code, stdout.String()
}

func TestRun_ValidExport(t *testing.T) {
	code, out := runValidate(t, "-today", "2024-01-02", writeFile(t, "viirs.csv", validVIIRS))

	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "(3 rows)")
	assert.Contains(t, out, "All validations passed.")
	for _, name := range []string{"Schema", "Temporal", "Confidence", "Geometry", "Build"} {
		assert.Regexp(t, name+`\s+PASS`, out)
	}
}

func TestRun_ReportsRowErrors(t *testing.T) {
	broken := viirsHeader +
		"-33.5,150.7,340.1,0.4,0.4,2024-01-02,2460,N,VIIRS,h,2.0NRT,290.1,8.2,D\n" +
		"-95.0,150.9,331.4,0.4,0.4,2024-01-01,1510,N,VIIRS,n,2.0NRT,288.5,4.0,D\n" +
		"-34.0,151.0,301.2,0.4,0.4,01/01/2024,7,N,VIIRS,x,2.0NRT,280.3,1.1,N\n"

	code, out := runValidate(t, writeFile(t, "broken.csv", broken))

	assert.Equal(t, 1, code)
	assert.Contains(t, out, `line 2: invalid acq_time "2460"`)
	assert.Contains(t, out, `line 4: invalid acq_date "01/01/2024"`)
	assert.Contains(t, out, "line 3: latitude -95 out of range")
	assert.Contains(t, out, `unrecognized confidence value "x"`)
	assert.Contains(t, out, "Validation FAILED.")
}

func TestRun_MissingColumnAndShortRow(t *testing.T) {
	content := "latitude,longitude,acq_date,acq_time\n-33.5,150.7,2024-01-02\n"

	code, out := runValidate(t, writeFile(t, "short.csv", content))

	assert.Equal(t, 1, code)
	assert.Contains(t, out, `missing column "confidence"`)
	assert.Contains(t, out, "line 2: 3 cells, header has 4")
}

func TestRun_SchemeMismatch(t *testing.T) {
	content := viirsHeader +
		"-33.5,150.7,340.1,0.4,0.4,2024-01-02,345,N,VIIRS,85,2.0NRT,290.1,8.2,D\n"

	code, out := runValidate(t, writeFile(t, "viirs.csv", content))

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "VIIRS export with numeric confidence")
}

func TestRun_ExpectedOutput(t *testing.T) {
	csvPath := writeFile(t, "viirs.csv", validVIIRS)

	t.Run("match", func(t *testing.T) {
		expect := writeFile(t, "want.geojson",
			`{"type":"FeatureCollection","features":[{},{}],"centroid":{"lat":-33.55,"lon":150.8,"fallback":false}}`)
		code, out := runValidate(t, "-expect", expect, csvPath)
		assert.Equal(t, 0, code, out)
		assert.Regexp(t, `Expected output\s+PASS`, out)
	})

	t.Run("mismatch", func(t *testing.T) {
		expect := writeFile(t, "want.geojson",
			`{"type":"FeatureCollection","features":[{}],"centroid":{"lat":-33.0,"lon":150.8,"fallback":false}}`)
		code, out := runValidate(t, "-expect", expect, csvPath)
		assert.Equal(t, 1, code)
		assert.Contains(t, out, "feature count: expected 1, built 2")
		assert.Contains(t, out, "centroid: expected (-33, 150.8)")
	})
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"-expect", "x.geojson", "a.csv", "b.csv"}, &stdout, &stderr))
	assert.Equal(t, 2, run([]string{"-today", "tomorrow", "a.csv"}, &stdout, &stderr))
}

func TestRun_MissingFile(t *testing.T) {
	code, out := runValidate(t, filepath.Join(t.TempDir(), "absent.csv"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FATAL")
}
