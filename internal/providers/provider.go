package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Result is the provider-agnostic shape of one completion. TotalTokens is
// whatever the upstream reported and is not derived from the other two.
type Result struct {
	Answer           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Provider interface {
	Complete(ctx context.Context, systemInstruction, userMessage string) (Result, error)
}

var ErrMissingAPIKey = errors.New("OpenAI API key not provided and not found in environment variables")

type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s API error: timeout", e.Provider)
	case e.StatusCode > 0 && e.Message != "":
		return fmt.Sprintf("%s API error: %d %s", e.Provider, e.StatusCode, e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s API error: %d", e.Provider, e.StatusCode)
	default:
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TransportError classifies a failed round trip. Deadline expiry, from either
// the context or the http.Client timeout, is reported as Timeout.
func TransportError(provider string, err error) *UpstreamError {
	return &UpstreamError{
		Provider: provider,
		Message:  err.Error(),
		Timeout:  IsTimeout(err),
		Err:      err,
	}
}

func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Tokens clamps a reported usage count at zero.
func Tokens(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
