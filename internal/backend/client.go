// Package backend implements the HTTP client for the local resolution/download service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/backend/types"
)

// DefaultBaseURL is where the backend listens when nothing else is configured.
const DefaultBaseURL = "http://127.0.0.1:5000"

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration // 0 disables the client-side timeout
}

// Client talks to the backend. It never retries.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// New creates a backend client.
func New(cfg Config, logger zerolog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(base, "/"),
		logger:  logger.With().Str("component", "backend").Logger(),
	}
}

// BaseURL returns the backend address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CheckHealth returns true only when /health answers 2xx.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("Backend health check failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return isSuccess(resp.StatusCode)
}

// Resolve asks the backend for metadata and formats of a page URL.
func (c *Client) Resolve(ctx context.Context, pageURL string) (*types.ResolvedVideo, error) {
	var out types.ResolvedVideo
	if err := c.do(ctx, "resolve", http.MethodPost, "/video-info", types.VideoInfoRequest{URL: pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartDownload asks the backend to begin downloading the given format.
func (c *Client) StartDownload(ctx context.Context, pageURL, formatID, quality string) (*types.DownloadStarted, error) {
	body := types.DownloadRequest{URL: pageURL, FormatID: formatID, Quality: quality}

	var out types.DownloadStarted
	if err := c.do(ctx, "startDownload", http.MethodPost, "/download", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PollStatus fetches the current state of a download job.
func (c *Client) PollStatus(ctx context.Context, downloadID string) (*types.DownloadStatus, error) {
	var out types.DownloadStatus
	path := "/download-status/" + url.PathEscape(downloadID)
	if err := c.do(ctx, "pollStatus", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("Backend request failed")
		return &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request")

	if !isSuccess(resp.StatusCode) {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var eb errorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &eb) == nil {
				reqErr.Message = eb.Error
			}
		}
		return reqErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}

	return nil
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
