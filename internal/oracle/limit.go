package oracle

import (
	"context"
	"encoding/json"

	"lowvibe/internal/chat"
	"lowvibe/internal/ratelimit"
)

// Limited spaces out calls to a backend with request quotas.
type Limited struct {
	inner  Oracle
	bucket *ratelimit.TokenBucket
}

// Limit wraps inner with bucket; a nil bucket returns inner unchanged.
func Limit(inner Oracle, bucket *ratelimit.TokenBucket) Oracle {
	if bucket == nil {
		return inner
	}
	return &Limited{inner: inner, bucket: bucket}
}

// Complete implements Oracle.
func (l *Limited) Complete(ctx context.Context, messages []chat.Message, schema Schema) (json.RawMessage, Usage, error) {
	if err := l.bucket.Wait(ctx, 1); err != nil {
		return nil, Usage{}, err
	}
	return l.inner.Complete(ctx, messages, schema)
}
