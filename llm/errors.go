package llm

import "fmt"

// ClientError is the base error type for everything returned by this package.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ProviderError is an error reported by a model provider's API.
type ProviderError struct {
	ClientError
	// Provider is the adapter name that produced the error.
	Provider string
	// StatusCode is the HTTP status, if the transport exposed one.
	StatusCode int
	// ErrorCode is the provider-specific error code string.
	ErrorCode string
	// Retryable indicates the request may succeed if retried.
	Retryable bool
	// RetryAfter is the server-requested wait in seconds, when present.
	RetryAfter *float64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// AuthenticationError indicates a missing or invalid API key (401).
type AuthenticationError struct{ ProviderError }

// AccessDeniedError indicates the credentials lack access (403).
type AccessDeniedError struct{ ProviderError }

// NotFoundError indicates an unknown model or endpoint (404).
type NotFoundError struct{ ProviderError }

// InvalidRequestError indicates a malformed request (400, 422).
type InvalidRequestError struct{ ProviderError }

// RateLimitError indicates the provider throttled the request (429).
type RateLimitError struct{ ProviderError }

// ServerError indicates a provider-side failure (5xx).
type ServerError struct{ ProviderError }

// ContentFilterError indicates the provider blocked the content.
type ContentFilterError struct{ ProviderError }

// ContextLengthError indicates the prompt exceeded the model's window.
type ContextLengthError struct{ ProviderError }

// QuotaExceededError indicates a hard billing or quota limit.
type QuotaExceededError struct{ ProviderError }

// RequestTimeoutError indicates the request timed out client-side.
type RequestTimeoutError struct{ ClientError }

// AbortError indicates the request context was canceled.
type AbortError struct{ ClientError }

// NetworkError indicates a transport-level failure before any response.
type NetworkError struct{ ClientError }

// StreamingError indicates a stream broke after it had started.
type StreamingError struct {
	ClientError
	Provider string
}

// ConfigurationError indicates the client was misconfigured, e.g. no
// provider registered for a requested model.
type ConfigurationError struct{ ClientError }

// ErrorFromStatusCode builds the appropriate typed error for an HTTP status.
func ErrorFromStatusCode(provider string, status int, message string, cause error) error {
	base := ProviderError{
		ClientError: ClientError{Message: message, Cause: cause},
		Provider:    provider,
		StatusCode:  status,
	}
	switch status {
	case 400, 422:
		return &InvalidRequestError{base}
	case 401:
		return &AuthenticationError{base}
	case 403:
		return &AccessDeniedError{base}
	case 404:
		return &NotFoundError{base}
	case 408:
		base.Retryable = true
		return &RequestTimeoutError{ClientError: base.ClientError}
	case 413:
		return &ContextLengthError{base}
	case 429:
		base.Retryable = true
		return &RateLimitError{base}
	case 500, 502, 503, 504:
		base.Retryable = true
		return &ServerError{base}
	default:
		if status >= 500 {
			base.Retryable = true
			return &ServerError{base}
		}
		return &base
	}
}

// IsRetryable reports whether the error is worth retrying. Unknown errors
// default to retryable; the typed hierarchy marks the permanent failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthenticationError, *AccessDeniedError, *NotFoundError,
		*InvalidRequestError, *ContextLengthError, *QuotaExceededError,
		*ContentFilterError, *ConfigurationError, *AbortError,
		*StreamingError:
		return false
	case *RateLimitError, *ServerError, *RequestTimeoutError, *NetworkError:
		return true
	case *ProviderError:
		return e.Retryable
	default:
		return true
	}
}
