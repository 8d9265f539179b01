package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/firms-detection-etl/internal/domain"
)

// SourceResolver turns a FIRMS country query into a CSV source locator.
type SourceResolver interface {
	CSVURL(product, country string, days int) (string, error)
}

// ResultBuilder builds the detection result for a source.
type ResultBuilder interface {
	Build(ctx context.Context, source string) (domain.Result, error)
}

// QueryTransformer implements Transformer: it parses a query request, builds
// its result and serializes it as GeoJSON keyed by the request ID.
type QueryTransformer struct {
	resolver SourceResolver
	builder  ResultBuilder
	logger   *slog.Logger
}

// NewTransformer creates a QueryTransformer. A nil resolver rejects country
// queries and only accepts requests naming their source.
func NewTransformer(resolver SourceResolver, builder ResultBuilder, logger *slog.Logger) *QueryTransformer {
	return &QueryTransformer{
		resolver: resolver,
		builder:  builder,
		logger:   logger,
	}
}

func (t *QueryTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseQueryRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	source, err := t.resolve(req)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	res, err := t.builder.Build(ctx, source)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("query %s: %w", req.ID, err)
	}

	return SerializeResult(req, res, time.Now().UTC())
}

func (t *QueryTransformer) resolve(req domain.QueryRequest) (string, error) {
	if req.HasSource() {
		return req.Source, nil
	}
	if t.resolver == nil {
		return "", fmt.Errorf("query %s: country queries are not configured", req.ID)
	}
	source, err := t.resolver.CSVURL(req.Product, req.Country, req.Days)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", req.ID, err)
	}
	return source, nil
}

// SerializeResult renders a result as the sink message for req.
func SerializeResult(req domain.QueryRequest, res domain.Result, processedAt time.Time) (domain.OutputEvent, error) {
	members := map[string]any{"request_id": req.ID}
	if !req.HasSource() {
		members["query"] = map[string]any{
			"product": req.Product,
			"country": req.Country,
			"days":    req.Days,
		}
	}

	data, err := domain.MarshalResult(res, members)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	return domain.OutputEvent{
		Key:   []byte(req.ID),
		Value: data,
		Headers: map[string]string{
			"detection_count":   strconv.Itoa(res.Collection.Len()),
			"centroid_fallback": strconv.FormatBool(res.CentroidFallback),
			"processed_at":      processedAt.Format(time.RFC3339),
		},
	}, nil
}
