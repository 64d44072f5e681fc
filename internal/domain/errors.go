package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrMissingConfig       = errors.New("generation API URL is not configured")
	ErrMissingPollEndpoint = errors.New("no polling URL or job id returned")
	ErrTimeout             = errors.New("generation timed out")
	ErrCancelled           = errors.New("request was cancelled")
	ErrClosed              = errors.New("controller closed")
	ErrPersistenceDisabled = errors.New("persistence is not configured")
)

// Prompt and option validation failures. All of them match ErrInvalidInput.
var (
	ErrEmptyPrompt        = fmt.Errorf("%w: please enter a prompt", ErrInvalidInput)
	ErrPromptTooLong      = fmt.Errorf("%w: prompt must be %d characters or less", ErrInvalidInput, MaxPromptLength)
	ErrUnsafeContent      = fmt.Errorf("%w: prompt contains invalid characters", ErrInvalidInput)
	ErrInvalidAspectRatio = fmt.Errorf("%w: unknown aspect ratio", ErrInvalidInput)
)

// TransportError reports a non-2xx answer to the initial generation request.
type TransportError struct {
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		if e.Status == "" {
			return "generation request failed"
		}
		return "generation request failed: " + e.Status
	}
	return "HTTP error! status: " + strconv.Itoa(e.StatusCode)
}

// RemoteFailure carries the message of a job the remote service marked failed.
type RemoteFailure struct {
	Message string
}

func (e *RemoteFailure) Error() string {
	if e.Message == "" {
		return "generation failed"
	}
	return e.Message
}

// PersistError wraps a failed write or read against the history store. It never
// changes the status of a generation job.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string {
	return "persist " + e.Op + ": " + e.Err.Error()
}

func (e *PersistError) Unwrap() error { return e.Err }

// Error kinds exposed to API and CLI consumers.
const (
	KindInvalidInput        = "invalid_input"
	KindMissingConfig       = "missing_config"
	KindTransport           = "transport_error"
	KindMissingPollEndpoint = "missing_poll_endpoint"
	KindRemoteFailure       = "remote_failure"
	KindTimeout             = "timeout"
	KindCancelled           = "cancelled"
	KindPersist             = "persist_error"
	KindNotFound            = "not_found"
	KindInternal            = "internal"
)

// ErrorKind maps err onto a stable code.
func ErrorKind(err error) string {
	var (
		transport *TransportError
		remote    *RemoteFailure
		persist   *PersistError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrMissingConfig):
		return KindMissingConfig
	case errors.As(err, &transport):
		return KindTransport
	case errors.Is(err, ErrMissingPollEndpoint):
		return KindMissingPollEndpoint
	case errors.As(err, &remote):
		return KindRemoteFailure
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.As(err, &persist):
		return KindPersist
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
