// Command firms builds the high-confidence detection collection for one FIRMS
// source and prints it as GeoJSON with its representative location. It runs
// the same pipeline stages as the service, without Kafka.
//
// Usage:
//
//	go run ./cmd/firms -product VIIRS_SNPP_NRT -country AUS -days 2
//	go run ./cmd/firms -source ./exports/viirs_aus.csv -today 2024-01-02 -stats
//
// FIRMS_MAP_KEY, FIRMS_BASE_URL, FIRMS_TIMEOUT and FALLBACK_CENTROID are read
// from the environment or a .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/firms-detection-etl/internal/adapter/firms"
	"github.com/couchcryptid/firms-detection-etl/internal/config"
	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	"github.com/couchcryptid/firms-detection-etl/internal/observability"
	"github.com/couchcryptid/firms-detection-etl/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	source  string
	product string
	country string
	days    int
	out     string
	today   string
	stats   bool
	verbose bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("firms", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.source, "source", "", "CSV URL or local file path")
	fs.StringVar(&o.product, "product", "", "FIRMS product, e.g. VIIRS_SNPP_NRT")
	fs.StringVar(&o.country, "country", "", "ISO 3166-1 alpha-3 country code")
	fs.IntVar(&o.days, "days", 1, "days of data, 1-10")
	fs.StringVar(&o.out, "out", "-", "output path for the GeoJSON, - for stdout")
	fs.StringVar(&o.today, "today", "", "reference UTC date for days_ago, YYYY-MM-DD")
	fs.BoolVar(&o.stats, "stats", false, "print a detection summary to stderr")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.source == "" && (o.product == "" || o.country == "") {
		fs.Usage()
		return options{}, errors.New("need -source or -product and -country")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if opts.today != "" {
		today, err := time.Parse(time.DateOnly, opts.today)
		if err != nil {
			return fmt.Errorf("invalid -today %q: %w", opts.today, err)
		}
		domain.SetClock(clockwork.NewFakeClockAt(today))
		defer domain.SetClock(nil)
	}

	metrics := observability.NewUnregisteredMetrics()
	client := firms.NewClient(cfg.FIRMSBaseURL, cfg.FIRMSMapKey, cfg.FIRMSTimeout, logger, metrics)
	builder := pipeline.NewBuilder(csvfile.NewFetcher(client), pipeline.BuilderConfig{
		FallbackCentroid: cfg.FallbackCentroid,
	}, logger, metrics)

	source := opts.source
	if source == "" {
		source, err = client.CSVURL(opts.product, opts.country, opts.days)
		if err != nil {
			return err
		}
	}

	res, err := builder.Build(ctx, source)
	if err != nil {
		if csvfile.IsNotExist(err) {
			return fmt.Errorf("source file not found: %s", opts.source)
		}
		return err
	}

	if err := writeResult(opts.out, stdout, res); err != nil {
		return err
	}
	if opts.stats {
		printStats(stderr, res)
	}
	return nil
}

func writeResult(path string, stdout io.Writer, res domain.Result) error {
	data, err := json.MarshalIndent(res.GeoJSON(), "", "  ")
	if err != nil {
		return fmt.Errorf("serialize result: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

type bucket struct {
	key   string
	count int
}

func sortedBuckets(counts map[string]int) []bucket {
	out := make([]bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, bucket{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func printStats(w io.Writer, res domain.Result) {
	byDay := map[int]int{}
	bySatellite := map[string]int{}
	for _, d := range res.Collection.Detections {
		byDay[d.DaysAgo]++
		if sat := d.Field("satellite"); sat != "" {
			bySatellite[sat]++
		}
	}

	fmt.Fprintln(w, "=== Detection summary ===")
	fmt.Fprintf(w, "High-confidence detections: %d\n", res.Collection.Len())

	days := make([]int, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Ints(days)
	for _, d := range days {
		fmt.Fprintf(w, "  days_ago=%d (%s): %d\n", d, domain.MarkerColor(d), byDay[d])
	}

	if len(bySatellite) > 0 {
		fmt.Fprint(w, "By satellite:")
		for _, b := range sortedBuckets(bySatellite) {
			fmt.Fprintf(w, " %s=%d", b.key, b.count)
		}
		fmt.Fprintln(w)
	}

	label := "Centroid"
	if res.CentroidFallback {
		label = "Centroid (fallback)"
	}
	fmt.Fprintf(w, "%s: lat=%.5f lon=%.5f\n", label, res.Centroid.Lat, res.Centroid.Lon)
	if res.Collection.Len() > 0 {
		b := res.Centroid.Bound
		fmt.Fprintf(w, "Bounds: [%.5f, %.5f] to [%.5f, %.5f]\n", b.Min[1], b.Min[0], b.Max[1], b.Max[0])
	}
}
