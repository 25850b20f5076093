package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// EmptyResponseError is returned when the model answered with no text.
type EmptyResponseError struct {
	Attempts int
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("empty response after %d attempt(s)", e.Attempts)
}

// IsTransient returns true; an empty answer is usually worth asking again.
func (e *EmptyResponseError) IsTransient() bool { return true }

// BlockedError is returned when the prompt or the answer was stopped by a safety filter.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("response blocked: %s", e.Reason)
}

// IsTransient returns false as the same prompt will be blocked again.
func (e *BlockedError) IsTransient() bool { return false }

// APIError is a non-2xx answer from the model endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed (%d): %s", e.StatusCode, e.Message)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("rate limited: %s", e.Message)
	default:
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether the status is worth retrying (429 and 5xx).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// classify converts client errors into this package's typed errors.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &BlockedError{Reason: blocked.Error()}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return err
}

// IsTransient reports whether a request that failed with err may succeed if retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t interface{ IsTransient() bool }
	if errors.As(err, &t) {
		return t.IsTransient()
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
