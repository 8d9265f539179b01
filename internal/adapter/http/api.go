package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/firms-detection-etl/internal/adapter/firms"
	"github.com/couchcryptid/firms-detection-etl/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/google/uuid"
)

const contentTypeGeoJSON = "application/geo+json"

// DetectionBuilder builds and memoizes detection results per source.
type DetectionBuilder interface {
	Build(ctx context.Context, source string) (domain.Result, error)
	Invalidate(source string)
	Purge()
}

// FIRMSClient resolves country queries and reports MAP_KEY usage.
type FIRMSClient interface {
	CSVURL(product, country string, days int) (string, error)
	AccountStatus(ctx context.Context) (firms.AccountStatus, error)
}

// API groups the dependencies of the /v1 routes.
type API struct {
	Builder DetectionBuilder
	FIRMS   FIRMSClient

	// SourcePrefix, when set, restricts ?source= to locators starting with it.
	SourcePrefix string
}

type handlers struct {
	api    API
	logger *slog.Logger
}

type queryRequest struct {
	Product string `json:"product"`
	Country string `json:"country"`
	Days    int    `json:"days"`
}

// detections serves GET /v1/detections?source=... or ?product=&country=&days=.
func (h *handlers) detections(w http.ResponseWriter, r *http.Request) {
	req, err := parseDetectionQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	source, err := h.resolve(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.api.Builder.Build(r.Context(), source)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	members := map[string]any{"request_id": req.ID}
	if !req.HasSource() {
		members["query"] = queryRequest{Product: req.Product, Country: req.Country, Days: req.Days}
	}
	body, err := domain.MarshalResult(res, members)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeGeoJSON)
	w.Header().Set("X-Request-Id", req.ID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// queryURL serves POST /v1/query-url and returns the FIRMS CSV URL for a
// country query.
func (h *handlers) queryURL(w http.ResponseWriter, r *http.Request) {
	if h.api.FIRMS == nil {
		writeError(w, http.StatusServiceUnavailable, firms.ErrMissingMapKey)
		return
	}

	var q queryRequest
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	u, err := h.api.FIRMS.CSVURL(q.Product, q.Country, q.Days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, map[string]string{"url": u})
}

// account serves GET /v1/account.
func (h *handlers) account(w http.ResponseWriter, r *http.Request) {
	if h.api.FIRMS == nil {
		writeError(w, http.StatusServiceUnavailable, firms.ErrMissingMapKey)
		return
	}

	status, err := h.api.FIRMS.AccountStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"transaction_limit":      status.TransactionLimit,
		"current_transactions":   status.CurrentTransactions,
		"remaining_transactions": status.Remaining(),
		"transaction_interval":   status.TransactionInterval,
	})
}

// clearCache serves DELETE /v1/cache: with ?source= it drops one entry,
// otherwise every entry.
func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	if source := r.URL.Query().Get("source"); source != "" {
		h.api.Builder.Invalidate(source)
	} else {
		h.api.Builder.Purge()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) resolve(req domain.QueryRequest) (string, error) {
	if req.HasSource() {
		if h.api.SourcePrefix != "" && !strings.HasPrefix(req.Source, h.api.SourcePrefix) {
			return "", fmt.Errorf("%w: source must start with %s", firms.ErrInvalidQuery, h.api.SourcePrefix)
		}
		return req.Source, nil
	}
	if h.api.FIRMS == nil {
		return "", firms.ErrMissingMapKey
	}
	return h.api.FIRMS.CSVURL(req.Product, req.Country, req.Days)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "status", status, "kind", domain.ErrorKind(err), "error", err)
	} else {
		h.logger.Info("request rejected", "path", r.URL.Path, "status", status, "kind", domain.ErrorKind(err), "error", err)
	}
	writeError(w, status, err)
}

func parseDetectionQuery(r *http.Request) (domain.QueryRequest, error) {
	q := r.URL.Query()
	req := domain.QueryRequest{
		ID:      r.Header.Get("X-Request-Id"),
		Source:  strings.TrimSpace(q.Get("source")),
		Product: strings.ToUpper(strings.TrimSpace(q.Get("product"))),
		Country: strings.ToUpper(strings.TrimSpace(q.Get("country"))),
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	if req.HasSource() {
		return req, nil
	}
	if req.Product == "" || req.Country == "" || q.Get("days") == "" {
		return domain.QueryRequest{}, errors.New("need source or product, country and days")
	}
	days, err := strconv.Atoi(q.Get("days"))
	if err != nil {
		return domain.QueryRequest{}, fmt.Errorf("invalid days %q", q.Get("days"))
	}
	req.Days = days
	return req, nil
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, firms.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, firms.ErrMissingMapKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSchema), errors.Is(err, domain.ErrGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmptyDataset):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDataFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  domain.ErrorKind(err),
	})
}
