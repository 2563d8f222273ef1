// Package proxy forwards plain JSON requests to the FORA backend, encrypting the
// request body and decrypting the response with the key selected by the path.
package proxy

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

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/srg/healthlink/internal/cipher"
	"github.com/srg/healthlink/pkg/config"
)

// DefaultUpstream is the FORA backend origin.
const DefaultUpstream = "https://www.foracare.live"

// maxResponseBytes bounds how much of an upstream answer is read.
const maxResponseBytes = 8 << 20

// Options configures a Router.
type Options struct {
	Upstream     string
	MaxBodyBytes int64
	Breaker      config.BreakerConfig
	Client       *http.Client
	Gateway      *cipher.Gateway
	Logger       *logrus.Logger
}

// Result is a decrypted upstream answer.
type Result struct {
	Domain cipher.KeyDomain
	// Data is the decrypted JSON document, or {"raw": text} when the plaintext is not JSON.
	Data json.RawMessage
}

// upstreamResponse is what a single breaker-guarded exchange yields.
type upstreamResponse struct {
	status int
	body   []byte
}

// Router is the encrypted gateway in front of the FORA backend. It is safe for
// concurrent use.
type Router struct {
	origin       string
	maxBodyBytes int64
	client       *http.Client
	gateway      *cipher.Gateway
	breaker      *gobreaker.CircuitBreaker[*upstreamResponse]
	logger       *logrus.Logger
}

// NewRouter validates opts and builds a Router. Zero values take defaults.
func NewRouter(opts Options) (*Router, error) {
	if opts.Upstream == "" {
		opts.Upstream = DefaultUpstream
	}
	u, err := url.Parse(opts.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", opts.Upstream)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(io.Discard)
	}
	if opts.Gateway == nil {
		opts.Gateway = cipher.NewGateway(opts.Logger)
	}

	return &Router{
		origin:       strings.TrimRight(opts.Upstream, "/"),
		maxBodyBytes: opts.MaxBodyBytes,
		client:       opts.Client,
		gateway:      opts.Gateway,
		breaker:      newBreaker(opts.Breaker, opts.Logger),
		logger:       opts.Logger,
	}, nil
}

func newBreaker(cfg config.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker[*upstreamResponse] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	return gobreaker.NewCircuitBreaker[*upstreamResponse](gobreaker.Settings{
		Name:        "fora-upstream",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state change")
		},
		// A 4xx answer means the backend is healthy.
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return ue.clientFault()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// BreakerState returns the current circuit breaker state.
func (r *Router) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// Target returns the upstream URL for path.
func (r *Router) Target(path string) string {
	return r.origin + "/" + strings.TrimLeft(path, "/")
}

// Forward serializes body as JSON, encrypts it with the key for path, posts it upstream
// and decrypts the answer. authHeader is forwarded verbatim when non-empty.
func (r *Router) Forward(ctx context.Context, path string, body any, authHeader string) (Result, error) {
	domain := cipher.DomainForPath(path)
	target := r.Target(path)
	log := r.logger.WithFields(logrus.Fields{
		"api":    domain.String(),
		"path":   path,
		"target": target,
	})

	payload, err := encodeBody(body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode request body: %w", err)
	}
	encrypted, err := r.gateway.EncryptBytes(domain, payload)
	if err != nil {
		return Result{}, err
	}

	log.Info("Forwarding request")
	log.WithField("body", string(payload)).Debug("Request body")

	resp, err := r.breaker.Execute(func() (*upstreamResponse, error) {
		return r.post(ctx, target, encrypted, authHeader)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn("Upstream circuit open, request rejected")
			return Result{}, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		log.WithError(err).Error("Upstream request failed")
		return Result{}, err
	}

	plain := r.gateway.DecryptBytes(domain, resp.body)
	log.WithFields(logrus.Fields{
		"status":   resp.status,
		"response": plain,
	}).Debug("Decrypted response")

	return Result{Domain: domain, Data: toJSON(plain)}, nil
}

// encodeBody marshals body as compact JSON without HTML escaping.
func encodeBody(body any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (r *Router) post(ctx context.Context, target string, body []byte, authHeader string) (*upstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "*/*")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Status:      resp.StatusCode,
			Body:        data,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}
	return &upstreamResponse{status: resp.StatusCode, body: data}, nil
}

// toJSON keeps valid JSON documents and wraps anything else as {"raw": text}.
func toJSON(plain string) json.RawMessage {
	trimmed := strings.TrimSpace(plain)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": plain})
	return wrapped
}

// ServeHTTP handles POST /fora-api/{path...}.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.PathValue("path")

	req.Body = http.MaxBytesReader(w, req.Body, r.maxBodyBytes)
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body too large (max %d bytes)", r.maxBodyBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	body := json.RawMessage("{}")
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 {
		if !json.Valid(trimmed) {
			writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
		body = trimmed
	}

	result, err := r.Forward(req.Context(), path, body, req.Header.Get("Authorization"))
	if err != nil {
		r.writeForwardError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (r *Router) writeForwardError(w http.ResponseWriter, err error) {
	var ue *UpstreamError
	switch {
	case errors.As(err, &ue) && ue.HasBody():
		contentType := ue.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(ue.Status)
		_, _ = w.Write(ue.Body)
	case errors.As(err, &ue) && ue.Status != 0:
		writeError(w, ue.Status, err.Error())
	case errors.Is(err, ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "FORA API temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "FORA API request failed: "+err.Error())
	}
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{StatusCode: status, Message: message})
}
