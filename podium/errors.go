package podium

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// APICode is the apiCode field Podium puts in response bodies. Codes other
// than the ones declared here are passed through untouched.
type APICode int

const (
	// CodeSystemAccountFound is returned by authenticate when the credentials matched a system account
	CodeSystemAccountFound APICode = 1001
	// CodeInvalidToken signals a missing, expired or revoked session token
	CodeInvalidToken APICode = 4001
)

// String returns the symbolic name for known codes
func (c APICode) String() string {
	switch c {
	case CodeSystemAccountFound:
		return "SYSTEM_ACCOUNT_FOUND"
	case CodeInvalidToken:
		return "INVALID_TOKEN"
	default:
		return strconv.Itoa(int(c))
	}
}

// Common errors
var (
	// ErrInvalidToken is returned without contacting the API when a request
	// needs a session token and none is held
	ErrInvalidToken = errors.New("podium: no valid session token")
	// ErrNoEndpoint indicates the client was built without an endpoint
	ErrNoEndpoint = errors.New("podium: endpoint is required")
)

// APIError is the structured error for a request the API answered with a
// non-2xx status. Data holds the decoded response body (timestamps already
// converted), or the raw body text when it was not JSON.
type APIError struct {
	Data       any
	Status     int
	StatusText string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if code, ok := e.Code(); ok {
		return fmt.Sprintf("podium API error: status %d %s: apiCode %s", e.Status, e.StatusText, code)
	}
	return fmt.Sprintf("podium API error: status %d %s", e.Status, e.StatusText)
}

// Code extracts apiCode from the response body, if present
func (e *APIError) Code() (APICode, bool) {
	return CodeOf(e.Data)
}

// IsInvalidToken reports the 400 + INVALID_TOKEN combination that makes the
// client drop its token
func (e *APIError) IsInvalidToken() bool {
	code, ok := e.Code()
	return e.Status == http.StatusBadRequest && ok && code == CodeInvalidToken
}

// IsNotFound checks if the error indicates a not found response
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsUnauthorized checks if the error indicates an authentication failure
func (e *APIError) IsUnauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// NetworkError is returned when the transport failed before any response
// arrived (DNS, refused connection, timeout, cancelled context).
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("podium request %s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when the API answered with a success status but
// the body is not valid JSON. Body holds the raw text.
type DecodeError struct {
	Status     int
	StatusText string
	Body       string
	Err        error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("podium response %d %s could not be decoded: %v", e.Status, e.StatusText, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RequestError is returned when a request could not be built, for example
// because the body does not encode as JSON. Nothing was sent.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return fmt.Sprintf("podium request %s %s could not be built: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsInvalidToken reports whether err means the session token is missing or
// was rejected by the API
func IsInvalidToken(err error) bool {
	if errors.Is(err, ErrInvalidToken) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsInvalidToken()
}

// CodeOf reads the apiCode field of a decoded response body. Numbers may
// arrive as json.Number, float64 or numeric strings.
func CodeOf(data any) (APICode, bool) {
	body, ok := data.(map[string]any)
	if !ok {
		return 0, false
	}

	switch v := body["apiCode"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return APICode(n), true
	case float64:
		return APICode(v), true
	case int:
		return APICode(v), true
	case int64:
		return APICode(v), true
	case APICode:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return APICode(n), true
	}
	return 0, false
}
