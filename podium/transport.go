package podium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single HTTP exchange made by HTTPTransport
const DefaultTimeout = 30 * time.Second

// Call describes one outgoing request handed to a Transport
type Call struct {
	Method  string
	URL     string
	Params  Params
	Headers http.Header
	Body    any

	// Transform decodes a raw response body. It is applied to error
	// responses as well as successful ones.
	Transform func([]byte) (any, error)
}

// Response is what a Transport returns for a completed exchange
type Response struct {
	Data       any
	Status     int
	StatusText string
}

// ResponseError is returned by a Transport when the API answered with a
// non-2xx status. *DecodeError and *RequestError are passed through as is;
// any other error from Do is treated as a network failure.
type ResponseError struct {
	Response *Response
}

// Error implements the error interface
func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Response.Status, e.Response.StatusText)
}

// Transport performs a single request. Implementations must not retry.
type Transport interface {
	Do(ctx context.Context, call *Call) (*Response, error)
}

// HTTPTransport is the net/http backed Transport
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport wraps client; a nil client gets a default with DefaultTimeout
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{client: client}
}

// Do implements Transport
func (t *HTTPTransport) Do(ctx context.Context, call *Call) (*Response, error) {
	reqURL := call.URL
	if values := call.Params.Values(); len(values) > 0 {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + values.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		raw, err := json.Marshal(call.Body)
		if err != nil {
			return nil, &RequestError{Method: call.Method, URL: call.URL, Err: fmt.Errorf("failed to encode request body: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, reqURL, body)
	if err != nil {
		return nil, &RequestError{Method: call.Method, URL: call.URL, Err: err}
	}
	for key, values := range call.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	out := &Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch {
	case call.Transform == nil:
		out.Data = string(raw)
	default:
		data, err := call.Transform(raw)
		if err != nil {
			if ok {
				return nil, &DecodeError{
					Status:     out.Status,
					StatusText: out.StatusText,
					Body:       string(raw),
					Err:        err,
				}
			}
			// error pages are not always JSON; keep the text for the caller
			data = string(raw)
		}
		out.Data = data
	}

	if !ok {
		return nil, &ResponseError{Response: out}
	}
	return out, nil
}

// statusText strips the numeric prefix net/http puts in resp.Status
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
