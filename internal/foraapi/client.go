// Package foraapi is a typed client for the FORA ring and web endpoints, called in
// plain JSON through the healthlink gateway.
package foraapi

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
	"sync"

	"github.com/sirupsen/logrus"
)

// Endpoint paths below the gateway prefix.
const (
	PathRingData       = "ForaO2API/ClientRingDataAES"
	PathGroupLogin     = "TaidocWeb/GroupLoginAES"
	PathGroupUserList  = "TaidocWeb/QryGroupUserListO2WebAES"
	PathUserFileList   = "TaidocWeb/QryUserFileListO2WebAES"
	PathAnalysisResult = "TaidocWeb/AnalysisResultO2WebAES"
	PathQAList         = "TaidocWeb/QueryQAListO2WebAES"
)

// HTTPError is a non-2xx answer from the gateway.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("FORA API request failed with status %d: %s", e.Status, e.Body)
}

// Client calls the FORA API through a gateway such as "http://localhost:3000/fora-api".
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, logger *logrus.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid FORA API base URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}, nil
}

// SetToken sets the bearer token sent with authenticated calls. Empty signs out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SpO2HR fetches oxygen saturation and heart rate samples.
func (c *Client) SpO2HR(ctx context.Context, p RangeParams) (*SpO2HRResponse, error) {
	var out SpO2HRResponse
	if err := c.post(ctx, PathRingData, ringDataRequest{RangeParams: p, Mode: ModeSpO2HR}, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Activity fetches daily steps, calories and diet entries.
func (c *Client) Activity(ctx context.Context, p RangeParams) (*ActivityResponse, error) {
	var out ActivityResponse
	if err := c.post(ctx, PathRingData, ringDataRequest{RangeParams: p, Mode: ModeActivity}, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sleep fetches sleep sessions.
func (c *Client) Sleep(ctx context.Context, p RangeParams) (*SleepResponse, error) {
	var out SleepResponse
	if err := c.post(ctx, PathRingData, ringDataRequest{RangeParams: p, Mode: ModeSleep}, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GroupLogin signs in without a token. On success the returned token is kept for later calls.
func (c *Client) GroupLogin(ctx context.Context, p GroupLoginParams) (*GroupLoginResponse, error) {
	var out GroupLoginResponse
	if err := c.post(ctx, PathGroupLogin, p, false, &out); err != nil {
		return nil, err
	}
	if out.ReturnCode == 0 && out.Token != "" {
		c.SetToken(out.Token)
	}
	return &out, nil
}

// GroupUserList lists the patients or authorised users of a group.
func (c *Client) GroupUserList(ctx context.Context, p GroupUserListParams) (*GroupUserListResponse, error) {
	var out GroupUserListResponse
	if err := c.post(ctx, PathGroupUserList, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserFileList lists a user's report files.
func (c *Client) UserFileList(ctx context.Context, p UserFileListParams) (*UserFileListResponse, error) {
	var out UserFileListResponse
	if err := c.post(ctx, PathUserFileList, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalysisResult fetches a report as PDF location, data rows or notes depending on p.Mode.
func (c *Client) AnalysisResult(ctx context.Context, p AnalysisResultParams) (*AnalysisResultResponse, error) {
	var out AnalysisResultResponse
	if err := c.post(ctx, PathAnalysisResult, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QAList fetches the questionnaire of a group.
func (c *Client) QAList(ctx context.Context, p QAListParams) (*QAListResponse, error) {
	var out QAListResponse
	if err := c.post(ctx, PathQAList, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SleepImageURL builds the URL of a rendered sleep report page.
func (c *Client) SleepImageURL(resultData, filename string, lang Lang) string {
	return SleepImageURL(c.baseURL, resultData, filename, lang)
}

func (c *Client) post(ctx context.Context, path string, body any, useToken bool, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); useToken && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	log := c.logger.WithField("path", path)
	log.Debug("Calling FORA API")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("FORA API %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("FORA API request failed")
		return &HTTPError{Status: resp.StatusCode, Body: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// IsUnauthorized reports whether err means the token was rejected.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusUnauthorized
}
