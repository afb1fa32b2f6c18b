package remote

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	syncerrors "github.com/arbob/session-sync/internal/errors"
	"github.com/go-resty/resty/v2"
)

// TransientError wraps an error that is likely temporary. The sync core
// never retries internally; the next scheduled cycle is the retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// apiError is the error body GitHub returns on non-2xx responses.
type apiError struct {
	Message string `json:"message"`
}

// checkResponse maps a resty response (or transport error) to the error
// taxonomy used by the sync core. op names the operation for messages.
func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: fmt.Errorf("%s: %w", op, err)}
	}

	if !resp.IsError() {
		return nil
	}

	code := resp.StatusCode()
	msg := errorMessage(resp)

	switch {
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w (%d): %s", op, syncerrors.ErrAuthentication, code, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, syncerrors.ErrNotFound)
	case isTransientStatus(code):
		return &TransientError{Err: fmt.Errorf("%s returned status %d: %s", op, code, msg)}
	default:
		return fmt.Errorf("%s returned status %d: %s", op, code, msg)
	}
}

func errorMessage(resp *resty.Response) string {
	if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
		return sanitizeResponseBody([]byte(e.Message))
	}

	return sanitizeResponseBody(resp.Body())
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
