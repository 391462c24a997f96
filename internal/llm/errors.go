package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrUpstream indicates the LLM, embedding, or rerank provider
	// failed: transport error, non-200 status, or an unusable response.
	ErrUpstream = errors.New("upstream failure")

	// ErrTimeout indicates an outbound call exceeded its deadline.
	ErrTimeout = errors.New("timeout")
)

// wrapUpstream tags an outbound call failure with its kind so callers
// can assert with errors.Is instead of matching message text.
func wrapUpstream(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}

// upstreamf builds an ErrUpstream for a malformed or empty provider
// response.
func upstreamf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUpstream, fmt.Sprintf(format, args...))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
