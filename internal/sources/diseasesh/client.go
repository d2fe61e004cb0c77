// Package diseasesh extracts daily statistics from the disease.sh API.
package diseasesh

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/ratelimit"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/stageerr"
)

// Kind names one of the source endpoints.
type Kind string

const (
	KindCountries  Kind = "countries"
	KindGlobal     Kind = "global"
	KindHistorical Kind = "historical"
)

const maxErrorBody = 512

// Client issues GET requests against the statistics API.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	baseURL    string
	endpoints  map[string]string
	userAgent  string
}

// NewClient creates a new API client.
func NewClient(cfg config.SourceConfig, limiter ratelimit.Limiter) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		endpoints:  cfg.Endpoints,
		userAgent:  cfg.UserAgent,
	}
}

// URL returns the endpoint address for kind.
func (c *Client) URL(kind Kind) (string, error) {
	path, ok := c.endpoints[string(kind)]
	if !ok {
		return "", stageerr.Newf(stageerr.KindConfig, "fetch", "invalid data type: %q", kind)
	}
	return c.baseURL + path, nil
}

// Fetch returns the response body of the endpoint for kind, unmodified.
// It does not retry.
func (c *Client) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	u, err := c.URL(kind)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, stageerr.Transport("fetch", fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, stageerr.New(stageerr.KindConfig, "fetch", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, stageerr.Transport("fetch", fmt.Errorf("execute request: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, stageerr.Transport("fetch", fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, u, strings.TrimSpace(string(body))))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageerr.Transport("fetch", fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
