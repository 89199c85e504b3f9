package podium

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testToken = "tok-123"

// fakePodium is an in-memory stand-in for the Podium API
type fakePodium struct {
	server *httptest.Server

	mu       sync.Mutex
	hits     int
	lastReq  *http.Request
	lastBody map[string]any
}

func newFakePodium(t *testing.T) *fakePodium {
	t.Helper()
	f := &fakePodium{}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/authenticate", f.authenticate)
		r.Group(func(r chi.Router) {
			r.Use(requireToken)
			r.Get("/members", f.echoQuery)
			r.Post("/members", f.echoBody)
			r.Get("/members/{id}", f.getMember)
			r.Put("/members/{id}", f.echoBody)
			r.Delete("/members/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte("<html>upstream down</html>"))
			})
			r.Get("/missing/{id}", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusNotFound, map[string]any{"apiCode": 4004, "message": "not found"})
			})
		})
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePodium) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		f.mu.Lock()
		f.hits++
		f.lastReq = r
		f.lastBody = body
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *fakePodium) snapshot() (int, *http.Request, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits, f.lastReq, f.lastBody
}

func (f *fakePodium) endpoint() string {
	return f.server.URL + "/api/v1/"
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(AuthenticationHeader) != testToken {
			writeJSON(w, http.StatusBadRequest, map[string]any{"apiCode": int(CodeInvalidToken)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *fakePodium) authenticate(w http.ResponseWriter, r *http.Request) {
	_, _, body := f.snapshot()
	if body["user_account"] == "admin" && body["password"] == "secret" && body["type"] == "system" {
		writeJSON(w, http.StatusOK, map[string]any{
			"apiCode": int(CodeSystemAccountFound),
			"token":   testToken,
			"detail": map[string]any{
				"id":        1,
				"name":      "Admin",
				"lastLogin": "2023-3-5 9:07:02",
			},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apiCode": 2002})
}

func (f *fakePodium) getMember(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     chi.URLParam(r, "id"),
		"joined": "2023-3-5 9:07:02",
		"note":   "2023-13-05 09:07:02",
	})
}

func (f *fakePodium) echoQuery(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}
	for k := range r.URL.Query() {
		out[k] = r.URL.Query().Get(k)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakePodium) echoBody(w http.ResponseWriter, r *http.Request) {
	_, _, body := f.snapshot()
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mockTransport lets tests assert on what reaches the wire
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Do(ctx context.Context, call *Call) (*Response, error) {
	args := m.Called(ctx, call)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func newAuthenticatedClient(t *testing.T, f *fakePodium, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(f.endpoint(), append([]Option{WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)

	result, err := client.Authenticate(context.Background(), "admin", "secret")
	require.NoError(t, err)
	require.True(t, result.Found)
	return client
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{name: "trailing slash kept", endpoint: "http://localhost:8080/api/", want: "http://localhost:8080/api/"},
		{name: "trailing slash added", endpoint: "http://localhost:8080/api", want: "http://localhost:8080/api/"},
		{name: "empty", endpoint: "", wantErr: true},
		{name: "not a url", endpoint: "podium", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.endpoint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, client.Endpoint())
			assert.False(t, client.Authenticated())
			assert.False(t, client.Legacy())
		})
	}

	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestRequestWithoutTokenIsRefusedLocally(t *testing.T) {
	transport := &mockTransport{}
	client, err := NewClient("http://podium.test/api/", WithTransport(transport))
	require.NoError(t, err)

	members := client.Resource("members")
	ctx := context.Background()

	calls := map[string]func() (any, error){
		"get":    func() (any, error) { return members.Get(ctx, "1") },
		"list":   func() (any, error) { return members.List(ctx, Params{"q": "x"}, NewPaginator(1, 10)) },
		"post":   func() (any, error) { return members.Post(ctx, map[string]any{"name": "x"}) },
		"update": func() (any, error) { return members.Update(ctx, "1", map[string]any{"name": "x"}) },
		"delete": func() (any, error) { return members.Delete(ctx, "1") },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			data, err := call()
			assert.Nil(t, data)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.True(t, IsInvalidToken(err))
		})
	}

	transport.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
}

func TestAuthenticate(t *testing.T) {
	f := newFakePodium(t)

	t.Run("system account found", func(t *testing.T) {
		client, err := NewClient(f.endpoint())
		require.NoError(t, err)

		result, err := client.Authenticate(context.Background(), "admin", "secret")
		require.NoError(t, err)
		assert.True(t, result.Found)
		assert.Equal(t, CodeSystemAccountFound, result.Code)
		assert.True(t, client.Authenticated())

		token, ok := client.Tokens().GetToken()
		assert.True(t, ok)
		assert.Equal(t, testToken, token)

		detail := result.Detail.(map[string]any)
		assert.Equal(t, "Admin", detail["name"])
		assert.Equal(t, time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC), detail["lastLogin"])

		var user struct {
			ID        json.Number `json:"id"`
			Name      string      `json:"name"`
			LastLogin Timestamp   `json:"lastLogin"`
		}
		require.NoError(t, result.DecodeDetail(&user))
		assert.Equal(t, "Admin", user.Name)
		assert.Equal(t, "2023-03-05 09:07:02", user.LastLogin.String())

		_, req, body := f.snapshot()
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/v1/authenticate", req.URL.Path)
		assert.Empty(t, req.Header.Get(AuthenticationHeader))
		assert.Equal(t, map[string]any{"user_account": "admin", "password": "secret", "type": "system"}, body)
	})

	t.Run("other code yields empty result", func(t *testing.T) {
		client, err := NewClient(f.endpoint())
		require.NoError(t, err)

		result, err := client.Authenticate(context.Background(), "admin", "wrong")
		require.NoError(t, err)
		assert.False(t, result.Found)
		assert.Equal(t, APICode(2002), result.Code)
		assert.Nil(t, result.Detail)
		assert.False(t, client.Authenticated())
		assert.Error(t, result.DecodeDetail(&struct{}{}))
	})
}

func TestRequestSendsAuthenticationHeader(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f, WithUserAgent("podium-test"))

	data, err := client.Resource("members").Get(context.Background(), "42")
	require.NoError(t, err)

	member := data.(map[string]any)
	assert.Equal(t, "42", member["id"])
	assert.Equal(t, time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC), member["joined"])
	assert.Equal(t, "2023-13-05 09:07:02", member["note"])

	_, req, _ := f.snapshot()
	assert.Equal(t, testToken, req.Header.Get("Authentication"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "podium-test", req.Header.Get("User-Agent"))
	assert.NotEmpty(t, req.Header.Get(RequestIDHeader))
	assert.Equal(t, "/api/v1/members/42", req.URL.Path)
}

func TestInvalidTokenResponseClearsToken(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)

	// server starts rejecting the token
	client.Tokens().SetToken("stale")

	_, err := client.Resource("members").Get(context.Background(), "1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Bad Request", apiErr.StatusText)
	assert.True(t, apiErr.IsInvalidToken())
	assert.True(t, IsInvalidToken(err))
	assert.False(t, client.Authenticated())

	hits, _, _ := f.snapshot()
	_, err = client.Resource("members").Get(context.Background(), "1")
	assert.ErrorIs(t, err, ErrInvalidToken)
	hitsAfter, _, _ := f.snapshot()
	assert.Equal(t, hits, hitsAfter, "gated request must not reach the server")
}

func TestOtherErrorsKeepToken(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)
	ctx := context.Background()

	t.Run("non JSON error body", func(t *testing.T) {
		_, err := client.Resource("broken").List(ctx, nil, nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "<html>upstream down</html>", apiErr.Data)
		assert.True(t, client.Authenticated())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.Resource("missing").Get(ctx, "9")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsNotFound())
		code, ok := apiErr.Code()
		assert.True(t, ok)
		assert.Equal(t, APICode(4004), code)
		assert.True(t, client.Authenticated())
	})
}

func TestInvalidTokenOnlyOn400(t *testing.T) {
	transport := &mockTransport{}
	client, err := NewClient("http://podium.test/api/", WithTransport(transport))
	require.NoError(t, err)
	client.Tokens().SetToken("tok")

	transport.On("Do", mock.Anything, mock.Anything).Return(nil, &ResponseError{Response: &Response{
		Data:       map[string]any{"apiCode": json.Number("4001")},
		Status:     http.StatusUnauthorized,
		StatusText: "Unauthorized",
	}}).Once()

	_, err = client.Resource("members").Get(context.Background(), "1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnauthorized())
	assert.True(t, client.Authenticated())
	transport.AssertExpectations(t)
}

func TestListMergesPagination(t *testing.T) {
	f := newFakePodium(t)
	ctx := context.Background()

	t.Run("current names", func(t *testing.T) {
		client := newAuthenticatedClient(t, f)
		params := Params{"status": "active", "page": 7}
		paginator := NewPaginator(2, 25)

		data, err := client.Resource("members").List(ctx, params, paginator)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"status": "active", "page": "2", "per_page": "25"}, data)
		assert.Equal(t, Params{"status": "active", "page": 7}, params, "caller params must not change")
		assert.False(t, paginator.Legacy())
	})

	t.Run("legacy names", func(t *testing.T) {
		client := newAuthenticatedClient(t, f, WithLegacy(true))
		paginator := NewCursorPaginator("c-1", 10)

		data, err := client.Resource("members").List(ctx, Params{"status": "active"}, paginator)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"status": "active", "start": "c-1", "pageSize": "10"}, data)
		assert.True(t, paginator.Legacy())
	})

	t.Run("without paginator", func(t *testing.T) {
		client := newAuthenticatedClient(t, f)
		since := time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC)

		data, err := client.Resource("members").List(ctx, Params{"since": since}, nil)
		require.NoError(t, err)

		// the echoed wire string is converted back on the way in
		assert.Equal(t, map[string]any{"since": since}, data)
		_, req, _ := f.snapshot()
		assert.Equal(t, "2023-03-05 09:07:02", req.URL.Query().Get("since"))
	})
}

func TestPostAndUpdateConvertBody(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	_, err := client.Resource("members").Post(ctx, map[string]any{"name": "Jane", "start": start})
	require.NoError(t, err)
	_, req, body := f.snapshot()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/v1/members", req.URL.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{"name": "Jane", "start": "2024-01-02 02:04:05"}, body)

	data, err := client.Resource("members").Update(ctx, "5", map[string]any{"start": start})
	require.NoError(t, err)
	_, req, _ = f.snapshot()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/v1/members/5", req.URL.Path)
	assert.Equal(t, map[string]any{"start": start.UTC()}, data)
}

func TestPostStructBody(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)
	at := time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC)

	type schedule struct {
		At time.Time `json:"at"`
	}
	type member struct {
		Name     string    `json:"name"`
		Joined   time.Time `json:"joined"`
		Schedule schedule  `json:"schedule"`
	}

	_, err := client.Resource("members").Post(context.Background(), member{
		Name:     "Jane",
		Joined:   at,
		Schedule: schedule{At: at},
	})
	require.NoError(t, err)

	_, _, body := f.snapshot()
	assert.Equal(t, map[string]any{
		"name":     "Jane",
		"joined":   "2023-03-05 09:07:02",
		"schedule": map[string]any{"at": "2023-03-05 09:07:02"},
	}, body)

	_, err = client.Resource("members").Post(context.Background(), map[string]any{
		"nested": schedule{At: at},
	})
	require.NoError(t, err)
	_, _, body = f.snapshot()
	assert.Equal(t, map[string]any{"nested": map[string]any{"at": "2023-03-05 09:07:02"}}, body)
}

func TestDelete(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)

	data, err := client.Resource("members").Delete(context.Background(), "3")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, req, _ := f.snapshot()
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/api/v1/members/3", req.URL.Path)
}

func TestNetworkError(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)
	f.server.Close()

	_, err := client.Resource("members").Get(context.Background(), "1")
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.MethodGet, netErr.Method)
	assert.Contains(t, netErr.URL, "/api/v1/members/1")

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.True(t, client.Authenticated())
}

func TestUndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	client.Tokens().SetToken(testToken)

	_, err = client.Resource("members").Get(context.Background(), "1")
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, http.StatusOK, decodeErr.Status)
	assert.Equal(t, "<html>oops</html>", decodeErr.Body)

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))
	assert.True(t, client.Authenticated())
}

func TestUnencodableBody(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)
	hits, _, _ := f.snapshot()

	_, err := client.Resource("members").Post(context.Background(), map[string]any{"ch": make(chan int)})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.MethodPost, reqErr.Method)

	var netErr *NetworkError
	assert.False(t, errors.As(err, &netErr))

	after, _, _ := f.snapshot()
	assert.Equal(t, hits, after, "nothing is sent")
}

func TestContextCancellation(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Resource("members").Get(ctx, "1")
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetMany(t *testing.T) {
	f := newFakePodium(t)
	client := newAuthenticatedClient(t, f)

	results, err := client.Resource("members").GetMany(context.Background(), "1", "2", "3")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, id := range []string{"1", "2", "3"} {
		assert.Equal(t, id, results[i].(map[string]any)["id"])
	}

	empty, err := client.Resource("members").GetMany(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)

	client.Logout()
	_, err = client.Resource("members").GetMany(context.Background(), "1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCapturedAtDispatch(t *testing.T) {
	transport := &mockTransport{}
	client, err := NewClient("http://podium.test/api/", WithTransport(transport))
	require.NoError(t, err)
	client.Tokens().SetToken("first")

	transport.On("Do", mock.Anything, mock.MatchedBy(func(call *Call) bool {
		return call.Headers.Get(AuthenticationHeader) == "first"
	})).Run(func(args mock.Arguments) {
		// a concurrent logout does not affect the request already built
		client.Logout()
	}).Return(&Response{Data: map[string]any{"ok": true}, Status: 200, StatusText: "OK"}, nil).Once()

	data, err := client.Resource("members").Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, data)
	assert.False(t, client.Authenticated())
	transport.AssertExpectations(t)
}

func TestResourceName(t *testing.T) {
	client, err := NewClient("http://podium.test/api")
	require.NoError(t, err)
	assert.Equal(t, "members", client.Resource("/members/").Name())
	assert.Equal(t, "http://podium.test/api/members/a%2Fb", client.makeURL("members", "a/b"))
	assert.Equal(t, "http://podium.test/api/members", client.makeURL("members", ""))
}

func TestDecodePayload(t *testing.T) {
	data, err := decodePayload([]byte(`{"at":"2023-3-5 9:07:02","n":12345678901234567890}`))
	require.NoError(t, err)
	body := data.(map[string]any)
	assert.Equal(t, time.Date(2023, 3, 5, 9, 7, 2, 0, time.UTC), body["at"])
	assert.Equal(t, json.Number("12345678901234567890"), body["n"])

	data, err = decodePayload([]byte("  "))
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = decodePayload([]byte("{"))
	assert.Error(t, err)

	for _, raw := range []string{`{"a":1} trailing junk`, `{"a":1}{"b":2}`, `[1] ]`} {
		_, err = decodePayload([]byte(raw))
		assert.Error(t, err, raw)
	}

	data, err = decodePayload([]byte("{\"a\":1}\n  "))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, data)
}
