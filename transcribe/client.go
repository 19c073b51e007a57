package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client turns one chunk of audio into text.
type Client interface {
	Transcribe(ctx context.Context, audio []byte, fileName, language string) (string, error)
}

// ErrorKind classifies provider failures independent of the provider's wire format.
type ErrorKind string

const (
	KindBadRequest      ErrorKind = "bad_request"
	KindAuth            ErrorKind = "auth"
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUnavailable     ErrorKind = "unavailable"
)

// ProviderError carries the upstream status. Detail holds the raw upstream body for logs only.
type ProviderError struct {
	StatusCode int
	Kind       ErrorKind
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("transcription provider error (%d): %s", e.StatusCode, e.Kind.message())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (k ErrorKind) message() string {
	switch k {
	case KindBadRequest:
		return "the audio chunk was rejected as invalid or in an unsupported format"
	case KindAuth:
		return "the service is not authorized to call the transcription provider"
	case KindPayloadTooLarge:
		return "the audio chunk is too large for the provider, retry with a shorter segment duration"
	case KindRateLimited:
		return "the provider rate limit was reached, retry later"
	default:
		return "the transcription provider is unavailable, retry later"
	}
}

// KindForStatus maps an upstream HTTP status onto a failure kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindBadRequest
	default:
		return KindUnavailable
	}
}

// IsKind reports whether err is a *ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}
