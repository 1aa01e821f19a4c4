// Package detector runs inside one browsed page. It classifies the page URL
// after load and after client-side navigations, reports matches to the
// coordinator, and answers panel queries for the best-known media URL.
package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/classifier"
	"github.com/slipstream/vidgrab/internal/message"
)

// Default delays.
const (
	DefaultSettleDelay     = 2 * time.Second
	DefaultNavigationDelay = 1 * time.Second
)

// Page is the document the detector observes.
type Page interface {
	URL() string
}

// Config holds detector timing.
type Config struct {
	SettleDelay     time.Duration // after initial load
	NavigationDelay time.Duration // debounce after a URL change
}

// DefaultConfig returns the standard delays.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     DefaultSettleDelay,
		NavigationDelay: DefaultNavigationDelay,
	}
}

// Detector is scoped to a page's lifetime: create it on load, Close it on unload.
type Detector struct {
	cfg       Config
	page      Page
	messenger bridge.Messenger
	clock     clockwork.Clock
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	lastURL    string
	currentURL string
	pending    clockwork.Timer
	closed     bool
}

var _ bridge.Handler = (*Detector)(nil)

// New creates a detector for page. Matches are reported through messenger.
func New(cfg Config, page Page, messenger bridge.Messenger, clock clockwork.Clock, logger zerolog.Logger) *Detector {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.NavigationDelay <= 0 {
		cfg.NavigationDelay = DefaultNavigationDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Detector{
		cfg:       cfg,
		page:      page,
		messenger: messenger,
		clock:     clock,
		logger:    logger.With().Str("component", "detector").Logger(),
		ctx:       ctx,
		cancel:    cancel,
		lastURL:   page.URL(),
	}
}

// Loaded schedules the first classification once the page has settled.
func (d *Detector) Loaded() {
	d.schedule(d.cfg.SettleDelay)
}

// Mutated is the document-mutation signal. If the URL changed since the last
// signal, a check is scheduled after the navigation delay; further changes
// before it fires push it back.
func (d *Detector) Mutated() {
	url := d.page.URL()

	d.mu.Lock()
	changed := url != d.lastURL
	if changed {
		d.lastURL = url
	}
	d.mu.Unlock()

	if changed {
		d.schedule(d.cfg.NavigationDelay)
	}
}

// CurrentURL returns the last matching URL, falling back to the live page URL.
func (d *Detector) CurrentURL() string {
	d.mu.Lock()
	current := d.currentURL
	d.mu.Unlock()

	if current != "" {
		return current
	}
	return d.page.URL()
}

// Handle answers panel queries addressed to this page.
func (d *Detector) Handle(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
	switch r := req.(type) {
	case message.GetCurrentVideoURL:
		return message.CurrentVideoURL{URL: d.CurrentURL()}, nil
	default:
		return nil, fmt.Errorf("detector does not handle %s", r.Action())
	}
}

// Check classifies the page now. It reports whether the URL matched.
func (d *Detector) Check() bool {
	url := d.page.URL()
	if !classifier.IsVideoURL(url) {
		return false
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.currentURL = url
	d.mu.Unlock()

	d.logger.Debug().Str("url", url).Msg("Video detected")

	if _, err := d.messenger.Send(d.ctx, bridge.Coordinator, message.VideoDetected{URL: url}); err != nil {
		d.logger.Debug().Err(err).Str("url", url).Msg("Failed to notify coordinator")
	}
	return true
}

// Close stops any pending check. The detector is unusable afterwards.
func (d *Detector) Close() {
	d.mu.Lock()
	d.closed = true
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.mu.Unlock()
	d.cancel()
}

func (d *Detector) schedule(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.pending != nil {
		d.pending.Stop()
	}
	d.pending = d.clock.AfterFunc(delay, func() {
		d.Check()
	})
}
