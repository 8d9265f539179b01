// Package csvfile reads FIRMS CSV exports from the local filesystem.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
)

// RemoteFetcher fetches sources that are not local files.
type RemoteFetcher interface {
	Fetch(ctx context.Context, source string) (domain.RawBatch, error)
}

// Fetcher implements pipeline.Fetcher for local CSV files. Sources are
// filesystem paths, optionally prefixed with "file://". Sources with an
// http or https scheme go to the remote fetcher when one is set.
type Fetcher struct {
	remote RemoteFetcher
}

// NewFetcher creates a Fetcher. A nil remote rejects URL sources.
func NewFetcher(remote RemoteFetcher) *Fetcher {
	return &Fetcher{remote: remote}
}

func (f *Fetcher) Fetch(ctx context.Context, source string) (domain.RawBatch, error) {
	if isRemote(source) {
		if f.remote == nil {
			return domain.RawBatch{}, fmt.Errorf("%w: remote source not supported", domain.ErrDataFetch)
		}
		return f.remote.Fetch(ctx, source)
	}

	if err := ctx.Err(); err != nil {
		return domain.RawBatch{}, fmt.Errorf("%w: %w", domain.ErrDataFetch, err)
	}

	path := strings.TrimPrefix(source, "file://")
	file, err := os.Open(path)
	if err != nil {
		return domain.RawBatch{}, fmt.Errorf("%w: open csv: %w", domain.ErrDataFetch, err)
	}
	defer file.Close()

	return domain.DecodeCSV(file)
}

func isRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsNotExist reports whether err was caused by a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
