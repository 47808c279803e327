package docqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/docqa/internal/version"
)

const defaultTimeout = 2 * time.Minute

// Client talks to a docqa server.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	adminKey  string
	userAgent string
	obs       *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("docqa: base URL required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("docqa: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("docqa: unsupported URL scheme %q", u.Scheme)
	}

	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	ua := cfg.userAgent
	if ua == "" {
		ua = "docqa-go/" + version.Version
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:   u,
		http:      hc,
		adminKey:  cfg.adminKey,
		userAgent: ua,
		obs:       obs,
	}, nil
}

// Ask answers a question. A failed answer is returned as an *APIError.
func (c *Client) Ask(ctx context.Context, question string) (ans Answer, err error) {
	defer c.obs.observe("ask", time.Now(), &err)

	var resp askResponse
	if err := c.do(ctx, http.MethodPost, "/api/ask", nil, askRequest{Question: question}, &resp); err != nil {
		return Answer{}, err
	}
	if resp.Status != "success" {
		return Answer{}, &APIError{StatusCode: http.StatusOK, Kind: resp.ErrorKind, Message: resp.Error}
	}
	return Answer{Question: resp.Question, Text: resp.Answer, Sources: resp.Sources}, nil
}

// Status returns the index status.
func (c *Client) Status(ctx context.Context) (st Status, err error) {
	defer c.obs.observe("status", time.Now(), &err)

	if err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Rebuild rebuilds the index and waits for the new snapshot.
func (c *Client) Rebuild(ctx context.Context) (RebuildResult, error) {
	return c.rebuild(ctx, true)
}

// RebuildAsync starts a rebuild in the background. Poll Status for completion.
func (c *Client) RebuildAsync(ctx context.Context) error {
	_, err := c.rebuild(ctx, false)
	return err
}

func (c *Client) rebuild(ctx context.Context, wait bool) (res RebuildResult, err error) {
	defer c.obs.observe("rebuild", time.Now(), &err)

	q := url.Values{"wait": {strconv.FormatBool(wait)}}
	var resp rebuildResponse
	if err := c.do(ctx, http.MethodPost, "/api/rebuild", q, nil, &resp); err != nil {
		return RebuildResult{}, err
	}
	if resp.Status != "success" {
		return RebuildResult{}, &APIError{StatusCode: http.StatusOK, Kind: resp.ErrorKind, Message: resp.Message}
	}
	return RebuildResult{
		Message:       resp.Message,
		BuildID:       resp.BuildID,
		DocumentCount: resp.DocumentCount,
		ChunkCount:    resp.ChunkCount,
		Skipped:       resp.Skipped,
	}, nil
}

// Search retrieves the top-k chunks for query without generating an answer.
// k <= 0 uses the server's configured default.
func (c *Client) Search(ctx context.Context, query string, k int) (hits []Hit, err error) {
	defer c.obs.observe("search", time.Now(), &err)

	q := url.Values{"q": {query}}
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}
	var resp searchResponse
	if err := c.do(ctx, http.MethodGet, "/api/search", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, &APIError{StatusCode: http.StatusOK, Kind: resp.ErrorKind, Message: resp.Error}
	}
	return resp.Hits, nil
}

// Health returns the server's component health. A degraded server still
// yields a HealthStatus and a nil error.
func (c *Client) Health(ctx context.Context) (hs HealthStatus, err error) {
	defer c.obs.observe("health", time.Now(), &err)

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("docqa: health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("docqa: decode health: %w", err)
	}
	return hs, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("docqa: encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("docqa: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}
	return req, nil
}

// do sends a request and decodes a 200 reply into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("docqa: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("docqa: decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Message != "" {
		apiErr.Message = er.Message
		if er.Code == "unauthorized" {
			apiErr.Kind = er.Code
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
