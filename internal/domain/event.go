package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// QueryRequest asks for the detections of one FIRMS source. Either Source is
// set to a CSV URL, or Product, Country and Days select a country query that
// the FIRMS client turns into a URL.
type QueryRequest struct {
	ID      string `json:"id"`
	Source  string `json:"source,omitempty"`
	Product string `json:"product,omitempty"`
	Country string `json:"country,omitempty"`
	Days    int    `json:"days,omitempty"`
}

// HasSource reports whether the request names its CSV source directly.
func (q QueryRequest) HasSource() bool {
	return q.Source != ""
}

// ParseQueryRequest decodes a query request from a raw event. The request ID
// defaults to the message key, then to a random UUID.
func ParseQueryRequest(raw RawEvent) (QueryRequest, error) {
	var req QueryRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return QueryRequest{}, fmt.Errorf("parse query request: %w", err)
	}

	req.Source = strings.TrimSpace(req.Source)
	req.Product = strings.ToUpper(strings.TrimSpace(req.Product))
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))

	if !req.HasSource() && (req.Product == "" || req.Country == "" || req.Days == 0) {
		return QueryRequest{}, errors.New("parse query request: need source or product, country and days")
	}

	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, nil
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
