package podium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// AuthenticateResource is the only resource that may be requested without a token
	AuthenticateResource = "authenticate"

	// AuthenticationHeader carries the raw session token. Podium reads this
	// header, not the standard Authorization header.
	AuthenticationHeader = "Authentication"

	// RequestIDHeader tags each request for log correlation
	RequestIDHeader = "X-Request-Id"

	// DefaultUserAgent is sent unless WithUserAgent overrides it
	DefaultUserAgent = "podium-go"
)

// Client talks to the Podium API. It owns the session token and applies
// timestamp conversion to every payload in and out. A Client is safe for
// concurrent use; resource paths are passed per call rather than stored.
type Client struct {
	endpoint  string
	transport Transport
	tokens    TokenStore
	legacy    bool
	userAgent string
	logger    zerolog.Logger
}

// AuthResult is the outcome of Authenticate. Found is false when the API
// answered successfully but with a code other than SYSTEM_ACCOUNT_FOUND; in
// that case no token was stored and Detail is nil.
type AuthResult struct {
	Found  bool
	Code   APICode
	Detail any
}

// DecodeDetail decodes the authenticated user's details into dst
func (r *AuthResult) DecodeDetail(dst any) error {
	if r == nil || !r.Found {
		return fmt.Errorf("no account details: authentication did not find a system account")
	}
	return Decode(r.Detail, dst)
}

// NewClient creates a Podium client for endpoint, e.g.
// "https://podium.example.com/api/v1/". Resource names are appended to it.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid podium endpoint %q: %w", endpoint, err)
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	transport := options.transport
	if transport == nil {
		httpClient := options.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: options.timeout}
		}
		transport = NewHTTPTransport(httpClient)
	}

	tokens := options.tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}

	return &Client{
		endpoint:  endpoint,
		transport: transport,
		tokens:    tokens,
		legacy:    options.legacy,
		userAgent: options.userAgent,
		logger:    options.logger,
	}, nil
}

// Endpoint returns the normalized base URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Legacy reports whether list pagination uses legacy parameter names
func (c *Client) Legacy() bool {
	return c.legacy
}

// Tokens exposes the client's token store
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// Authenticated reports whether a session token is held
func (c *Client) Authenticated() bool {
	return c.tokens.HasToken()
}

// Logout drops the session token. Nothing is sent to the API.
func (c *Client) Logout() {
	c.tokens.RemoveToken()
}

// Authenticate exchanges system account credentials for a session token.
// A response without SYSTEM_ACCOUNT_FOUND is not an error: the returned
// result has Found set to false and the caller decides what that means.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	data, err := c.Request(ctx, http.MethodPost, AuthenticateResource, "", nil, map[string]any{
		"user_account": username,
		"password":     password,
		"type":         "system",
	})
	if err != nil {
		return nil, err
	}

	code, _ := CodeOf(data)
	result := &AuthResult{Code: code}
	if code != CodeSystemAccountFound {
		c.logger.Debug().Str("api_code", code.String()).Msg("Authenticate did not find a system account")
		return result, nil
	}

	body := data.(map[string]any)
	token, _ := body["token"].(string)
	if token == "" {
		return nil, fmt.Errorf("authenticate response has %s but no token", code)
	}

	c.tokens.SetToken(token)
	result.Found = true
	result.Detail = body["detail"]

	c.logger.Debug().Str("user", username).Msg("Authenticated with Podium")
	return result, nil
}

// Request is the single dispatch path for every operation. Requests other
// than authenticate are refused locally with ErrInvalidToken when no token
// is held. A 400 response carrying INVALID_TOKEN clears the stored token
// before the *APIError is returned.
func (c *Client) Request(ctx context.Context, method, resource, id string, params Params, body any) (any, error) {
	reqURL := c.makeURL(resource, id)

	token, hasToken := c.tokens.GetToken()
	if resource != AuthenticateResource && !hasToken {
		c.logger.Debug().
			Str("method", method).
			Str("url", reqURL).
			Msg("No session token, request not sent")
		return nil, ErrInvalidToken
	}

	requestID := uuid.NewString()
	call := &Call{
		Method:    method,
		URL:       reqURL,
		Params:    params,
		Headers:   c.makeHeaders(token, hasToken, requestID, body != nil),
		Body:      ToWire(body),
		Transform: decodePayload,
	}

	start := time.Now()
	resp, err := c.transport.Do(ctx, call)
	if err != nil {
		return nil, c.catchError(err, call, requestID)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", reqURL).
		Str("request_id", requestID).
		Int("status", resp.Status).
		Dur("duration", time.Since(start)).
		Msg("Podium request completed")

	return resp.Data, nil
}

func (c *Client) makeURL(resource, id string) string {
	build := c.endpoint + strings.TrimPrefix(resource, "/")
	if id != "" {
		build += "/" + url.PathEscape(id)
	}
	return build
}

func (c *Client) makeHeaders(token string, hasToken bool, requestID string, hasBody bool) http.Header {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", c.userAgent)
	headers.Set(RequestIDHeader, requestID)
	if hasBody {
		headers.Set("Content-Type", "application/json")
	}
	if hasToken {
		headers.Set(AuthenticationHeader, token)
	}
	return headers
}

// catchError turns a transport failure into *APIError or *NetworkError.
// *DecodeError and *RequestError are returned unchanged.
func (c *Client) catchError(err error, call *Call, requestID string) error {
	var (
		decodeErr *DecodeError
		reqErr    *RequestError
	)
	if errors.As(err, &decodeErr) || errors.As(err, &reqErr) {
		c.logger.Debug().
			Err(err).
			Str("method", call.Method).
			Str("url", call.URL).
			Str("request_id", requestID).
			Msg("Podium request failed")
		return err
	}

	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil {
		c.logger.Debug().
			Err(err).
			Str("method", call.Method).
			Str("url", call.URL).
			Str("request_id", requestID).
			Msg("Podium request failed without a response")
		return &NetworkError{Method: call.Method, URL: call.URL, Err: err}
	}

	apiErr := &APIError{
		Data:       respErr.Response.Data,
		Status:     respErr.Response.Status,
		StatusText: respErr.Response.StatusText,
	}

	if apiErr.IsInvalidToken() {
		c.tokens.RemoveToken()
		c.logger.Debug().Str("request_id", requestID).Msg("Session token rejected, cleared")
	}

	c.logger.Debug().
		Str("method", call.Method).
		Str("url", call.URL).
		Str("request_id", requestID).
		Int("status", apiErr.Status).
		Msg("Podium request returned an error status")

	return apiErr
}

// decodePayload is the response transform: JSON, then wire timestamps to time.Time
func decodePayload(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return ToNative(data), nil
}

// expectEOF rejects anything but whitespace after the first JSON value
func expectEOF(dec *json.Decoder) error {
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return nil
}
