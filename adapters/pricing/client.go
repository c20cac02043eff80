// Package pricing talks to the soil price site (bpej.vumop.cz): single code
// pages for cache misses and the overview table for bulk cache refreshes.
package pricing

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"bonita/core/types"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

// DefaultUserAgent is sent with every request; the site rejects bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

// DefaultBaseURL serves both the code pages and the overview table
const DefaultBaseURL = "https://bpej.vumop.cz/"

// maxPageBytes caps a single response body.
const maxPageBytes = 32 << 20

// Config configures the site client
type Config struct {
	// PageBaseURL is prefixed to a soil code to get its page
	PageBaseURL string

	// TableURL is the page with the full code/price table
	TableURL string

	// UserAgent header value
	UserAgent string

	// Timeout per request
	Timeout time.Duration
}

// DefaultConfig returns the public site settings
func DefaultConfig() Config {
	return Config{
		PageBaseURL: DefaultBaseURL,
		TableURL:    DefaultBaseURL,
		UserAgent:   DefaultUserAgent,
		Timeout:     15 * time.Second,
	}
}

// Client fetches pages from the price site
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.PageBaseURL == "" {
		config.PageBaseURL = def.PageBaseURL
	}
	if config.TableURL == "" {
		config.TableURL = def.TableURL
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logging.Named("vumop"),
	}
}

// FetchPage returns the HTML page of one soil code. One attempt; the caller
// owns retries.
func (c *Client) FetchPage(ctx context.Context, code types.SoilCode) (string, error) {
	return c.get(ctx, pageURL(c.config.PageBaseURL, code))
}

func pageURL(base string, code types.SoilCode) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + code.String()
}

func (c *Client) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Internal("create request", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Debug("fetching", zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Transport("fetch "+url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf(errors.TypeTransport, "fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", errors.Transport("read "+url, err)
	}
	return string(body), nil
}
