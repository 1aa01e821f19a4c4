// Package coordinator implements the long-lived context that owns the backend
// client, answers requests from detectors and panels, and keeps the per-tab
// indicator in sync with detection and backend reachability.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/backend/types"
	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/classifier"
	"github.com/slipstream/vidgrab/internal/message"
)

// ErrUnsupportedRequest is returned for requests the coordinator does not answer.
var ErrUnsupportedRequest = errors.New("request not handled by coordinator")

// Backend is the subset of the backend client the coordinator uses.
type Backend interface {
	CheckHealth(ctx context.Context) bool
	Resolve(ctx context.Context, pageURL string) (*types.ResolvedVideo, error)
	StartDownload(ctx context.Context, pageURL, formatID, quality string) (*types.DownloadStarted, error)
	PollStatus(ctx context.Context, downloadID string) (*types.DownloadStatus, error)
}

// Indicator toggles the per-tab actionable-page marker.
type Indicator interface {
	Show(tabID int)
	Hide(tabID int)
}

// Coordinator routes messages to the backend. Concurrent requests are not
// queued or deduplicated; writes to the indicator are last-write-wins.
type Coordinator struct {
	backend   Backend
	indicator Indicator
	logger    zerolog.Logger

	// tabs remembers the last completed-navigation URL per tab for refreshes.
	tabs map[int]string
	mu   sync.Mutex
}

var _ bridge.Handler = (*Coordinator)(nil)

// New creates a coordinator.
func New(backend Backend, indicator Indicator, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		backend:   backend,
		indicator: indicator,
		logger:    logger.With().Str("component", "coordinator").Logger(),
		tabs:      make(map[int]string),
	}
}

// Handle answers one request. Backend failures never surface as errors; they
// are folded into the response value.
func (c *Coordinator) Handle(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
	switch r := req.(type) {
	case message.VideoDetected:
		c.logger.Debug().Int("tabId", from.TabID).Str("url", r.URL).Msg("Video detected")
		if from.TabID != 0 {
			c.indicator.Show(from.TabID)
		}
		return message.Ack{}, nil

	case message.GetVideoInfo:
		data, err := c.backend.Resolve(ctx, r.URL)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", r.URL).Msg("Failed to resolve video info")
			return message.VideoInfoResult{Success: false, Error: err.Error()}, nil
		}
		return message.VideoInfoResult{Success: true, Data: data}, nil

	case message.StartDownload:
		data, err := c.backend.StartDownload(ctx, r.URL, r.FormatID, r.Quality)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", r.URL).Str("formatId", r.FormatID).Msg("Failed to start download")
			return message.DownloadStartedResult{Success: false, Error: err.Error()}, nil
		}
		c.logger.Info().Str("downloadId", data.DownloadID).Str("quality", r.Quality).Msg("Download started")
		return message.DownloadStartedResult{Success: true, Data: data}, nil

	case message.GetDownloadStatus:
		data, err := c.backend.PollStatus(ctx, r.DownloadID)
		if err != nil {
			c.logger.Warn().Err(err).Str("downloadId", r.DownloadID).Msg("Failed to get download status")
			return message.DownloadStatusResult{Success: false, Error: err.Error()}, nil
		}
		return message.DownloadStatusResult{Success: true, Data: data}, nil

	case message.CheckBackend:
		return message.BackendStatus{Success: true, Connected: c.backend.CheckHealth(ctx)}, nil

	case message.GetCurrentVideoURL:
		return nil, fmt.Errorf("%s: %w", r.Action(), ErrUnsupportedRequest)

	default:
		return nil, fmt.Errorf("%T: %w", req, ErrUnsupportedRequest)
	}
}

// OnNavigationComplete is called when a tab finishes loading url. The
// indicator is shown only for matching pages while the backend is reachable.
func (c *Coordinator) OnNavigationComplete(ctx context.Context, tabID int, url string) {
	if url == "" {
		return
	}

	c.mu.Lock()
	c.tabs[tabID] = url
	c.mu.Unlock()

	c.evaluate(ctx, tabID, url)
}

// TabClosed forgets a tab.
func (c *Coordinator) TabClosed(tabID int) {
	c.mu.Lock()
	delete(c.tabs, tabID)
	c.mu.Unlock()
}

// Startup probes the backend once and reports whether it is reachable.
func (c *Coordinator) Startup(ctx context.Context) bool {
	connected := c.backend.CheckHealth(ctx)
	if connected {
		c.logger.Info().Msg("Backend service is running")
	} else {
		c.logger.Warn().Msg("Backend service is not running, start the download server")
	}
	return connected
}

// RefreshIndicators re-evaluates every known tab against a fresh health probe.
func (c *Coordinator) RefreshIndicators(ctx context.Context) error {
	c.mu.Lock()
	tabs := make(map[int]string, len(c.tabs))
	for id, url := range c.tabs {
		tabs[id] = url
	}
	c.mu.Unlock()

	if len(tabs) == 0 {
		return nil
	}

	connected := c.backend.CheckHealth(ctx)
	for id, url := range tabs {
		c.apply(id, classifier.IsVideoURL(url) && connected)
	}

	c.logger.Debug().Int("tabs", len(tabs)).Bool("connected", connected).Msg("Refreshed indicators")
	return nil
}

func (c *Coordinator) evaluate(ctx context.Context, tabID int, url string) {
	if !classifier.IsVideoURL(url) {
		c.apply(tabID, false)
		return
	}
	c.apply(tabID, c.backend.CheckHealth(ctx))
}

func (c *Coordinator) apply(tabID int, visible bool) {
	if visible {
		c.indicator.Show(tabID)
	} else {
		c.indicator.Hide(tabID)
	}
}
