package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ollama/ollama/api"
)

// NetworkError is a transport failure that survived the retry budget.
type NetworkError struct {
	Backend string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Backend, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// EmptyResponseError means the endpoint answered with no content.
type EmptyResponseError struct {
	Schema string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty response for schema %s", e.Schema)
}

// SchemaValidationError means the output was not valid JSON for the schema.
type SchemaValidationError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("response does not satisfy schema %s: %v", e.Schema, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// OverflowError means the prompt did not fit the model context window.
type OverflowError struct {
	PromptTokens int
	Limit        int
	Err          error
}

func (e *OverflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context overflow: %v", e.Err)
	}
	return fmt.Sprintf("context overflow: prompt used %d of %d tokens", e.PromptTokens, e.Limit)
}

func (e *OverflowError) Unwrap() error { return e.Err }

// IsOverflow reports whether err is a context overflow.
func IsOverflow(err error) bool {
	var oe *OverflowError
	return errors.As(err, &oe)
}

// IsRecoverable reports whether a step loop may retry after err with a
// corrective message.
func IsRecoverable(err error) bool {
	var sv *SchemaValidationError
	var em *EmptyResponseError
	return errors.As(err, &sv) || errors.As(err, &em)
}

var overflowMarkers = []string{
	"context length",
	"context window",
	"exceeds the maximum number of tokens",
	"input length exceeds",
	"prompt is too long",
	"maximum context",
}

func looksLikeOverflow(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range overflowMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// isRetryable reports whether a transport attempt should be repeated.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if code := statusCode(err); code != 0 {
		switch code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "eof", "timeout", "no such host", "rate limit"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func statusCode(err error) int {
	var sp *api.StatusError
	if errors.As(err, &sp) {
		return sp.StatusCode
	}
	var sv api.StatusError
	if errors.As(err, &sv) {
		return sv.StatusCode
	}
	return 0
}
