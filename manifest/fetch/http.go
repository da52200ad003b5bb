// Package fetch provides the net/http implementation of the networking
// collaborator the update engine depends on.
package fetch

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// HTTPConfig holds HTTP-related configuration for playlist and segment
// fetches.
type HTTPConfig struct {
	UserAgent         string            `json:"user_agent"`
	AcceptHeader      string            `json:"accept_header"`
	ConnectionTimeout time.Duration     `json:"connection_timeout"`
	ReadTimeout       time.Duration     `json:"read_timeout"`
	CustomHeaders     map[string]string `json:"custom_headers"`
}

// DefaultHTTPConfig returns the default fetch configuration.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		UserAgent:         "hls-manifest-engine/1.0",
		AcceptHeader:      "application/vnd.apple.mpegurl,application/x-mpegurl,text/plain,*/*",
		ConnectionTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		CustomHeaders:     make(map[string]string),
	}
}

// Headers returns all HTTP headers that should be set on a request.
func (c *HTTPConfig) Headers() map[string]string {
	headers := make(map[string]string)
	headers["User-Agent"] = c.UserAgent
	headers["Accept"] = c.AcceptHeader
	maps.Copy(headers, c.CustomHeaders)
	return headers
}

// Client implements common.Fetcher over net/http. Byte ranges become
// Range request headers; the response content type is captured for
// container sniffing downstream.
type Client struct {
	client *http.Client
	config *HTTPConfig
}

// NewClient creates a fetch client with the given configuration. A nil
// config uses defaults.
func NewClient(config *HTTPConfig) *Client {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	return &Client{
		client: &http.Client{
			Timeout: config.ConnectionTimeout + config.ReadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    300 * time.Second,
				DisableCompression: false,
			},
		},
		config: config,
	}
}

// Fetch retrieves the resource at uri, restricted to byteRange when it is
// non-nil. Non-success status codes are NETWORK errors.
func (c *Client) Fetch(ctx context.Context, uri string, byteRange *common.ByteRange) (*common.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, common.NewManifestError(common.CategoryNetwork, uri,
			common.ErrCodeFetchFailed, "failed to create request", err)
	}

	for key, value := range c.config.Headers() {
		req.Header.Set(key, value)
	}
	if byteRange != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", byteRange.Offset, byteRange.End()-1))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.NewManifestError(common.CategoryNetwork, uri,
			common.ErrCodeFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	// 206 is the expected answer to a Range request.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, common.NewManifestErrorWithFields(common.CategoryNetwork, uri,
			common.ErrCodeFetchFailed, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status), nil,
			logging.Fields{"status_code": resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewManifestError(common.CategoryNetwork, uri,
			common.ErrCodeFetchFailed, "failed to read response body", err)
	}

	return &common.FetchResult{
		URI:         uri,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
