// Package fetcher implements the Fetcher (§4.F): given a table identifier
// and parameters, invokes the upstream HTTP API and returns a record batch
// or a taxonomy-classified error. Fetcher implementations are stateless and
// safe to invoke concurrently.
package fetcher

import (
	"context"

	"github.com/apache/arrow/go/v17/arrow"

	"github.com/marketlake/marketlake/internal/schema"
)

// Fetcher is the contract the Fast Worker Pool calls into.
type Fetcher interface {
	// Fetch invokes the upstream API for entry, merging entry's
	// RequiredParams with the runtime params (runtime values win on
	// conflict), and returns a record batch (possibly with zero rows) or a
	// taxonomy-classified error (Retryable or Fatal).
	Fetch(ctx context.Context, entry schema.Entry, params map[string]string) (arrow.Record, error)
}

// mergeParams merges entry.RequiredParams with runtime params, runtime
// values winning on conflict.
func mergeParams(required, runtime map[string]string) map[string]string {
	out := make(map[string]string, len(required)+len(runtime))
	for k, v := range required {
		out[k] = v
	}
	for k, v := range runtime {
		out[k] = v
	}
	return out
}
