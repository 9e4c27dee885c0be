package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// maxPeekBytes bounds how much of a body is read to find the operation name
const maxPeekBytes = 1 << 20

// OperationThrottle rate limits selected GraphQL operations per client IP.
// Other operations pass through untouched.
type OperationThrottle struct {
	operations map[string]struct{}
	limit      func(http.Handler) http.Handler
}

// NewOperationThrottle limits the named operations to limit requests per
// window for each IP, shared across all of them. onLimited writes the rejection.
func NewOperationThrottle(limit int, window time.Duration, onLimited http.HandlerFunc, operations ...string) *OperationThrottle {
	ops := make(map[string]struct{}, len(operations))
	for _, name := range operations {
		ops[name] = struct{}{}
	}

	return &OperationThrottle{
		operations: ops,
		limit: httprate.Limit(limit, window,
			httprate.WithKeyFuncs(ipKey),
			httprate.WithLimitHandler(onLimited),
		),
	}
}

// Handler wraps next. The request body is restored before next reads it.
func (t *OperationThrottle) Handler(next http.Handler) http.Handler {
	limited := t.limit(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if _, ok := t.operations[peekOperationName(r)]; ok {
				limited.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func ipKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

// peekOperationName reads the operationName field and rewinds the body
func peekOperationName(r *http.Request) string {
	if r.Body == nil {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return ""
	}

	var envelope struct {
		OperationName string `json:"operationName"`
	}
	if json.Unmarshal(buf, &envelope) != nil {
		return ""
	}
	return envelope.OperationName
}
