// internal/governor/errors.go
package governor

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrRateLimited marks an error the node returned because of request throttling.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrRPCExhausted возникает, когда исчерпаны повторные попытки после rate limit.
	ErrRPCExhausted = errors.New("rpc retries exhausted")
)

// IsRateLimitError reports whether err means the node is throttling us.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == http.StatusTooManyRequests
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == http.StatusTooManyRequests || mentionsRateLimit(rpcErr.Message)
	}
	return mentionsRateLimit(err.Error())
}

func mentionsRateLimit(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate limit")
}
