package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/taxonomy"
)

// Row is a single decoded upstream record, keyed by column name. Values are
// the subset of Go types the column-building dispatch knows how to encode:
// string, float64, bool.
type Row map[string]any

// Decoder builds an arrow.Record from the rows an upstream API call
// returned for one apiID. One Decoder is registered per upstream_api_id —
// the tagged-variant registry of design note §9: a single dispatch keyed
// on apiID selects the concrete decode, no runtime reflection needed.
type Decoder func(rows []Row) (arrow.Record, error)

// HTTPFetcher calls a black-box upstream HTTP API, one process-wide client
// with internal connection pooling shared across every worker (design note
// §9: no per-worker singleton state once rate limiting is centralized by
// the Rate-Limit Registry).
type HTTPFetcher struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	decoders map[string]Decoder
	alloc    memory.Allocator
}

// NewHTTPFetcher returns a Fetcher backed by a shared *http.Client. decoders
// maps each upstream_api_id that appears in the schema registry to the
// Decoder that shapes its response into an arrow.Record.
func NewHTTPFetcher(baseURL, apiKey string, decoders map[string]Decoder) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  baseURL,
		apiKey:   apiKey,
		decoders: decoders,
		alloc:    memory.DefaultAllocator,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, entry schema.Entry, params map[string]string) (arrow.Record, error) {
	decode, ok := f.decoders[entry.UpstreamAPIID]
	if !ok {
		return nil, taxonomy.FatalLocal(fmt.Errorf("fetcher: no decoder registered for api id %q (table %s)", entry.UpstreamAPIID, entry.Name))
	}

	merged := mergeParams(entry.RequiredParams, params)

	rows, err := f.call(ctx, entry.UpstreamAPIID, merged)
	if err != nil {
		return nil, err
	}

	// decode is responsible for returning a well-formed, zero-row record
	// (with the table's schema) when rows is empty — an empty successful
	// fetch is a valid outcome (§4.H "empty success"), not an error.
	rec, err := decode(rows)
	if err != nil {
		return nil, taxonomy.FatalUpstream(fmt.Errorf("fetcher: decode response for %s: %w", entry.Name, err))
	}
	return rec, nil
}

func (f *HTTPFetcher) call(ctx context.Context, apiID string, params map[string]string) ([]Row, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+apiID+"?"+q.Encode(), nil)
	if err != nil {
		return nil, taxonomy.FatalLocal(fmt.Errorf("fetcher: build request: %w", err))
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Network errors (timeouts, connection resets) are retryable.
		return nil, taxonomy.Retryable(fmt.Errorf("fetcher: request to %s: %w", apiID, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taxonomy.Retryable(fmt.Errorf("fetcher: read response from %s: %w", apiID, err))
	}

	if err := classifyStatus(apiID, resp.StatusCode, body); err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, taxonomy.FatalUpstream(fmt.Errorf("fetcher: unmarshal response from %s: %w", apiID, err))
	}
	return rows, nil
}

// classifyStatus buckets an HTTP response into the taxonomy: 5xx and
// 429 (quota-exceeded) are Retryable, any other non-2xx is Fatal(Upstream).
func classifyStatus(apiID string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return taxonomy.Retryable(fmt.Errorf("fetcher: %s quota exceeded (429): %s", apiID, truncate(body)))
	case status >= 500:
		return taxonomy.Retryable(fmt.Errorf("fetcher: %s upstream error (%d): %s", apiID, status, truncate(body)))
	default:
		return taxonomy.FatalUpstream(fmt.Errorf("fetcher: %s rejected request (%d): %s", apiID, status, truncate(body)))
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
