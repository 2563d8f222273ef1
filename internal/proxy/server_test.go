package proxy

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/healthlink/pkg/config"
)

func newTestHandler(t *testing.T, upstream string, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Proxy.Upstream = upstream
	cfg.Proxy.MaxBodyBytes = 64
	if mutate != nil {
		mutate(cfg)
	}

	router, err := NewRouter(Options{
		Upstream:     cfg.Proxy.Upstream,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
		Breaker:      cfg.Breaker,
		Client:       NewHTTPClient(time.Second, 2*time.Second),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewServer(cfg, router, nil).Handler(ctx)
}

func post(h http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:40000"
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Forwarding(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{"ReturnCode":0,"Data":[]}`))
	h := newTestHandler(t, up.URL, nil)

	w := post(h, "/fora-api/TaidocWeb/QueryQAListO2WebAES", `{"group_id":"g1"}`, http.Header{
		"Authorization": {"Bearer tok"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ReturnCode":0,"Data":[]}`, w.Body.String())
	assert.JSONEq(t, `{"group_id":"g1"}`, up.lastBody.Load().(string))
	assert.Equal(t, "/TaidocWeb/QueryQAListO2WebAES", up.lastReq.Load().URL.Path)
	assert.Equal(t, "Bearer tok", up.lastReq.Load().Header.Get("Authorization"))
}

func TestHandler_EmptyBodySendsObject(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{}`))
	h := newTestHandler(t, up.URL, nil)

	w := post(h, "/fora-api/TaidocWeb/QueryQAListO2WebAES", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "{}", up.lastBody.Load().(string))
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		respond    func(http.ResponseWriter, string, func(string) []byte)
		closed     bool
		body       string
		wantStatus int
		wantBody   string
		wantJSON   string
	}{
		{
			name: "upstream error body forwarded as is",
			respond: func(w http.ResponseWriter, _ string, _ func(string) []byte) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte("denied"))
			},
			body:       `{}`,
			wantStatus: http.StatusForbidden,
			wantBody:   "denied",
		},
		{
			name: "upstream error without body",
			respond: func(w http.ResponseWriter, _ string, _ func(string) []byte) {
				w.WriteHeader(http.StatusNotFound)
			},
			body:       `{}`,
			wantStatus: http.StatusNotFound,
			wantJSON:   `{"statusCode":404,"message":"upstream responded 404 Not Found"}`,
		},
		{
			name:       "invalid JSON",
			respond:    echoJSON(`{}`),
			body:       `{"group_id":`,
			wantStatus: http.StatusBadRequest,
			wantJSON:   `{"statusCode":400,"message":"request body is not valid JSON"}`,
		},
		{
			name:       "body over limit",
			respond:    echoJSON(`{}`),
			body:       `{"pad":"` + strings.Repeat("x", 100) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantJSON:   `{"statusCode":413,"message":"request body too large (max 64 bytes)"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream(t, tt.respond)
			h := newTestHandler(t, up.URL, nil)

			w := post(h, "/fora-api/TaidocWeb/GroupLoginAES", tt.body, nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			if tt.wantJSON != "" {
				assert.JSONEq(t, tt.wantJSON, w.Body.String())
			}
		})
	}
}

func TestHandler_TransportFailure(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{}`))
	addr := up.URL
	up.Close()
	h := newTestHandler(t, addr, nil)

	w := post(h, "/fora-api/TaidocWeb/GroupLoginAES", `{}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Message, "FORA API request failed")
}

func TestHandler_CircuitOpen(t *testing.T) {
	up := newFakeUpstream(t, func(w http.ResponseWriter, _ string, _ func(string) []byte) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := newTestHandler(t, up.URL, func(c *config.Config) {
		c.Breaker.MaxFailures = 1
	})

	first := post(h, "/fora-api/TaidocWeb/GroupLoginAES", `{}`, nil)
	second := post(h, "/fora-api/TaidocWeb/GroupLoginAES", `{}`, nil)

	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, http.StatusServiceUnavailable, second.Code)
	assert.Equal(t, int32(1), up.hits.Load())
}

func TestHandler_Routing(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{}`))
	h := newTestHandler(t, up.URL, nil)

	t.Run("GET not allowed on gateway", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/fora-api/TaidocWeb/GroupLoginAES", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("unknown path", func(t *testing.T) {
		w := post(h, "/other", `{}`, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("health reports breaker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","breaker":"closed"}`, w.Body.String())
	})

	assert.Zero(t, up.hits.Load())
}

func TestHandler_SecurityHeaders(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{}`))
	h := newTestHandler(t, up.URL, nil)

	w := post(h, "/fora-api/TaidocWeb/GroupLoginAES", `{}`, nil)

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}
	for header, value := range expected {
		assert.Equal(t, value, w.Header().Get(header), header)
	}
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTSWithTLS(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	up := newFakeUpstream(t, echoJSON(`{"ok":true}`))
	cfg := config.DefaultConfig()
	cfg.Proxy.Upstream = up.URL
	cfg.Proxy.ShutdownTimeout = time.Second

	router, err := NewRouter(Options{Upstream: up.URL})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(cfg, router, nil).Serve(ctx, ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/fora-api/ForaO2API/ClientRingDataAES", "application/json", strings.NewReader(`{"mode":0}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_StartListenFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Proxy.Listen = "256.0.0.1:bad"
	router, err := NewRouter(Options{})
	require.NoError(t, err)

	err = NewServer(cfg, router, nil).Start(context.Background())

	assert.ErrorContains(t, err, "listen 256.0.0.1:bad")
}
