// Package panel implements the user-facing download panel: it checks the
// backend, resolves the active tab's media URL, lets the user pick one format,
// starts the download and polls its status until a terminal state.
//
// A Panel lives from Open to Close. Every goroutine it starts and every timer
// it arms is tied to that lifetime.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/backend/types"
	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/classifier"
	"github.com/slipstream/vidgrab/internal/message"
)

// Default timings.
const (
	DefaultPollInterval = 1 * time.Second
	DefaultCloseDelay   = 3 * time.Second
)

var (
	ErrPanelClosed        = errors.New("panel closed")
	ErrInvalidTransition  = errors.New("action not allowed in current state")
	ErrInvalidFormat      = errors.New("format index out of range")
	ErrNoSelection        = errors.New("no format selected")
	ErrDownloadInProgress = errors.New("download start already in progress")
	ErrStartFailed        = errors.New("download could not be started")
)

// Config holds panel timing.
type Config struct {
	PollInterval time.Duration
	CloseDelay   time.Duration // after completion, before auto-close
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		CloseDelay:   DefaultCloseDelay,
	}
}

// Panel is one open panel session.
type Panel struct {
	id        string
	cfg       Config
	tabID     int
	messenger bridge.Messenger
	view      View
	clock     clockwork.Clock
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	statusBar  *StatusBar
	errMsg     string
	pageURL    string
	video      *types.ResolvedVideo
	selected   int
	starting   bool
	downloadID string
	progress   *Progress
	pollCancel context.CancelFunc
	closeTimer clockwork.Timer
	closed     bool
}

// New creates a panel for the tab it was opened on. Nothing happens until Open.
func New(cfg Config, tabID int, messenger bridge.Messenger, view View, clock clockwork.Clock, logger zerolog.Logger) *Panel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CloseDelay <= 0 {
		cfg.CloseDelay = DefaultCloseDelay
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Panel{
		id:        id,
		cfg:       cfg,
		tabID:     tabID,
		messenger: messenger,
		view:      view,
		clock:     clock,
		logger:    logger.With().Str("component", "panel").Str("session", id).Int("tabId", tabID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateInit,
		selected:  -1,
	}
}

// ID returns the session id.
func (p *Panel) ID() string {
	return p.id
}

// Done is closed when the panel has closed.
func (p *Panel) Done() <-chan struct{} {
	return p.done
}

// State returns the current state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DownloadID returns the id of the started job, if any.
func (p *Panel) DownloadID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloadID
}

// Snapshot returns what the panel currently shows.
func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Open runs the opening sequence up to Ready or a terminal state.
func (p *Panel) Open() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	if p.state != StateInit {
		p.mu.Unlock()
		return fmt.Errorf("open: %w", ErrInvalidTransition)
	}
	p.setStateLocked(StateCheckingBackend)
	p.mu.Unlock()

	connected := p.checkBackend()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	p.statusBar = newStatusBar(connected)
	if !connected {
		p.errMsg = MsgBackendDown
		p.setStateLocked(StateBackendDown)
		p.mu.Unlock()
		p.logger.Info().Msg("Backend not reachable")
		return nil
	}
	p.mu.Unlock()

	url, err := p.currentURL()
	if errors.Is(err, context.Canceled) {
		return ErrPanelClosed
	}
	if err != nil {
		p.logger.Debug().Err(err).Msg("Could not query detector")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	if url == "" || !classifier.IsVideoURL(url) {
		p.setStateLocked(StateNoVideo)
		p.mu.Unlock()
		return nil
	}
	p.pageURL = url
	p.setStateLocked(StateLoading)
	p.mu.Unlock()

	return p.loadVideoInfo(url)
}

// Select makes the format at index the only selection.
func (p *Panel) Select(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}
	if !p.state.acceptsSelection() || p.starting {
		return fmt.Errorf("select: %w", ErrInvalidTransition)
	}
	if index < 0 || index >= len(p.video.Formats) {
		return fmt.Errorf("select %d: %w", index, ErrInvalidFormat)
	}

	p.selected = index
	p.setStateLocked(StateSelecting)
	return nil
}

// Download starts the selected format and, on success, begins polling.
func (p *Panel) Download() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelClosed
	}
	if p.starting {
		p.mu.Unlock()
		return ErrDownloadInProgress
	}
	switch p.state {
	case StateSelecting:
	case StateReady:
		p.mu.Unlock()
		return ErrNoSelection
	default:
		p.mu.Unlock()
		return fmt.Errorf("download: %w", ErrInvalidTransition)
	}

	format := p.video.Formats[p.selected]
	url := p.pageURL
	p.starting = true
	p.errMsg = ""
	p.renderLocked()
	p.mu.Unlock()

	p.logger.Info().Str("formatId", format.FormatID).Str("quality", format.Quality).Msg("Starting download")

	resp, err := p.messenger.Send(p.ctx, bridge.Coordinator, message.StartDownload{
		URL:      url,
		FormatID: format.FormatID,
		Quality:  format.Quality,
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}
	p.starting = false

	var reason string
	result, ok := resp.(message.DownloadStartedResult)
	switch {
	case err != nil:
		reason = err.Error()
	case !ok:
		reason = message.ErrUnexpectedResponse.Error()
	case !result.Success:
		reason = result.Error
	case result.Data == nil || result.Data.DownloadID == "":
		reason = "missing download id"
	}
	if reason != "" {
		p.errMsg = prefixStartFailed + reason
		p.renderLocked()
		p.logger.Warn().Str("reason", reason).Msg("Download start failed")
		return fmt.Errorf("%w: %s", ErrStartFailed, reason)
	}

	p.downloadID = result.Data.DownloadID
	p.progress = newProgress(labelInitialStatus, 0)
	p.setStateLocked(StateDownloading)
	p.startPollingLocked(p.downloadID)
	return nil
}

// Close tears the panel down: polling stops, pending timers are dropped and
// late replies are discarded. Safe to call more than once.
func (p *Panel) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopPollingLocked()
	if p.closeTimer != nil {
		p.closeTimer.Stop()
		p.closeTimer = nil
	}
	p.mu.Unlock()

	p.cancel()
	p.view.Close()
	close(p.done)
	p.logger.Debug().Msg("Panel closed")
}

// autoClose runs from the close timer, which must not be stopped from its own callback.
func (p *Panel) autoClose() {
	p.mu.Lock()
	p.closeTimer = nil
	p.mu.Unlock()
	p.Close()
}

func (p *Panel) checkBackend() bool {
	resp, err := p.messenger.Send(p.ctx, bridge.Coordinator, message.CheckBackend{})
	if err != nil {
		return false
	}
	status, ok := resp.(message.BackendStatus)
	return ok && status.Success && status.Connected
}

func (p *Panel) currentURL() (string, error) {
	resp, err := p.messenger.Send(p.ctx, bridge.Tab(p.tabID), message.GetCurrentVideoURL{})
	if err != nil {
		return "", err
	}
	current, ok := resp.(message.CurrentVideoURL)
	if !ok {
		return "", message.ErrUnexpectedResponse
	}
	return current.URL, nil
}

func (p *Panel) loadVideoInfo(url string) error {
	resp, err := p.messenger.Send(p.ctx, bridge.Coordinator, message.GetVideoInfo{URL: url})

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPanelClosed
	}

	prefix, reason := prefixLoadFailed, ""
	result, ok := resp.(message.VideoInfoResult)
	switch {
	case err != nil:
		prefix, reason = prefixUnexpected, err.Error()
	case !ok:
		prefix, reason = prefixUnexpected, message.ErrUnexpectedResponse.Error()
	case !result.Success:
		reason = result.Error
	case result.Data == nil:
		reason = "empty video info"
	}
	if reason != "" {
		p.errMsg = prefix + reason
		p.setStateLocked(StateError)
		p.logger.Warn().Str("reason", reason).Msg("Video info failed")
		return nil
	}

	p.video = result.Data
	p.setStateLocked(StateReady)
	p.logger.Debug().Str("title", p.video.VideoInfo.Title).Int("formats", len(p.video.Formats)).Msg("Video info loaded")
	return nil
}

// startPollingLocked replaces any running poll loop with a new one for id.
func (p *Panel) startPollingLocked(id string) {
	p.stopPollingLocked()

	ctx, cancel := context.WithCancel(p.ctx)
	p.pollCancel = cancel
	ticker := p.clock.NewTicker(p.cfg.PollInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !p.poll(ctx, id) {
					cancel()
					return
				}
			}
		}
	}()
}

func (p *Panel) stopPollingLocked() {
	if p.pollCancel != nil {
		p.pollCancel()
		p.pollCancel = nil
	}
}

// poll performs one tick. It returns false when the loop must end.
func (p *Panel) poll(ctx context.Context, id string) bool {
	resp, err := p.messenger.Send(ctx, bridge.Coordinator, message.GetDownloadStatus{DownloadID: id})

	p.mu.Lock()
	defer p.mu.Unlock()

	if ctx.Err() != nil || p.closed {
		return false
	}

	result, ok := resp.(message.DownloadStatusResult)
	if err != nil || !ok || !result.Success || result.Data == nil {
		// The loop ends without telling the user; the last render stays.
		p.logger.Debug().Err(err).Str("downloadId", id).Str("error", result.Error).Msg("Status poll failed, progress tracking stopped")
		p.pollCancel = nil
		return false
	}

	status := result.Data
	p.progress = newProgress(StatusMessage(status), status.Progress)

	switch status.Status {
	case types.StatusCompleted:
		p.pollCancel = nil
		p.closeTimer = p.clock.AfterFunc(p.cfg.CloseDelay, p.autoClose)
		p.setStateLocked(StateCompleted)
		p.logger.Info().Str("downloadId", id).Str("filename", status.Filename).Msg("Download completed")
		return false
	case types.StatusFailed:
		p.pollCancel = nil
		p.errMsg = status.Error
		p.setStateLocked(StateFailed)
		p.logger.Warn().Str("downloadId", id).Str("error", status.Error).Msg("Download failed")
		return false
	default:
		p.renderLocked()
		return true
	}
}

func (p *Panel) setStateLocked(s State) {
	p.state = s
	p.renderLocked()
}

func (p *Panel) renderLocked() {
	p.view.Render(p.snapshotLocked())
}

func (p *Panel) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: p.id,
		TabID:     p.tabID,
		State:     p.state,
		Error:     p.errMsg,
	}
	if p.state == StateNoVideo {
		snap.Notice = MsgNoVideo
	}
	if p.statusBar != nil {
		bar := *p.statusBar
		snap.StatusBar = &bar
	}

	showMain := p.video != nil && (p.state == StateReady || p.state == StateSelecting ||
		p.state == StateDownloading || p.state == StateCompleted || p.state == StateFailed)
	if showMain {
		info := p.video.VideoInfo
		snap.Video = &VideoSummary{
			Title:    info.Title,
			Uploader: info.Uploader,
			Duration: FormatDuration(info.Duration),
		}
		snap.Formats = make([]FormatOption, len(p.video.Formats))
		for i, f := range p.video.Formats {
			snap.Formats[i] = FormatOption{
				Index:    i,
				Quality:  f.Quality,
				Kind:     kindLabel(f.Type),
				Selected: i == p.selected,
			}
		}
		snap.FormatsEnabled = p.state.acceptsSelection() && !p.starting
	}

	switch {
	case p.state == StateSelecting && p.starting:
		snap.Trigger = Trigger{Visible: true, Enabled: false, Label: labelStarting}
	case p.state == StateSelecting:
		snap.Trigger = Trigger{Visible: true, Enabled: true, Label: downloadLabel(p.video.Formats[p.selected].Quality)}
	case p.state == StateReady:
		snap.Trigger = Trigger{Visible: true, Enabled: false, Label: labelSelectQuality}
	}

	if p.progress != nil {
		prog := *p.progress
		snap.Progress = &prog
	}
	return snap
}

func newStatusBar(connected bool) *StatusBar {
	if connected {
		return &StatusBar{Connected: true, Text: MsgBackendConnected}
	}
	return &StatusBar{Connected: false, Text: MsgBackendOffline}
}
