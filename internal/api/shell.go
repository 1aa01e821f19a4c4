package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/detector"
	"github.com/slipstream/vidgrab/internal/panel"
)

var (
	ErrTabNotFound  = errors.New("tab not found")
	ErrNoActiveTab  = errors.New("no active tab")
	ErrNoPanel      = errors.New("no panel open")
	ErrShellStopped = errors.New("shell stopped")
)

// Navigator receives tab lifecycle events. The coordinator implements it.
type Navigator interface {
	OnNavigationComplete(ctx context.Context, tabID int, url string)
	TabClosed(tabID int)
}

// ShellConfig holds the timings handed to per-tab and per-panel components.
type ShellConfig struct {
	Detector detector.Config
	Panel    panel.Config
}

// TabInfo describes one simulated browser tab.
type TabInfo struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Active    bool   `json:"active"`
	Indicator bool   `json:"indicator"`
}

// page is the live document of a tab as a detector sees it.
type page struct {
	mu  sync.RWMutex
	url string
}

func (p *page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *page) set(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

type tab struct {
	id       int
	page     *page
	detector *detector.Detector
}

// Shell plays the browser: it owns tabs and their detectors, and at most one
// open panel bound to the active tab.
type Shell struct {
	cfg        ShellConfig
	bridge     *bridge.Bridge
	navigator  Navigator
	indicators *IndicatorState
	events     Broadcaster
	clock      clockwork.Clock
	logger     zerolog.Logger

	mu       sync.Mutex
	nextID   int
	tabs     map[int]*tab
	active   int
	panel    *panel.Panel
	panelTab int
	stopped  bool
}

// NewShell creates a shell. navigator must already be registered on b as the
// coordinator.
func NewShell(cfg ShellConfig, b *bridge.Bridge, navigator Navigator, indicators *IndicatorState, events Broadcaster, clock clockwork.Clock, logger zerolog.Logger) *Shell {
	if events == nil {
		events = nopBroadcaster{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Shell{
		cfg:        cfg,
		bridge:     b,
		navigator:  navigator,
		indicators: indicators,
		events:     events,
		clock:      clock,
		logger:     logger.With().Str("component", "shell").Logger(),
		tabs:       make(map[int]*tab),
	}
}

// OpenTab opens url in a new tab and makes it active.
func (s *Shell) OpenTab(ctx context.Context, url string) (TabInfo, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return TabInfo{}, ErrShellStopped
	}
	s.nextID++
	t := &tab{id: s.nextID, page: &page{url: url}}
	s.tabs[t.id] = t
	s.mu.Unlock()

	s.activate(t.id)
	s.load(ctx, t)

	s.logger.Debug().Int("tabId", t.id).Str("url", url).Msg("Tab opened")
	return s.info(t.id)
}

// Navigate points a tab at url. A reload replaces the page and its detector;
// otherwise the URL changes in place, as a single-page app would.
func (s *Shell) Navigate(ctx context.Context, tabID int, url string, reload bool) (TabInfo, error) {
	t, err := s.tab(tabID)
	if err != nil {
		return TabInfo{}, err
	}

	if reload {
		s.unload(t)
		t.page.set(url)
		s.load(ctx, t)
	} else {
		t.page.set(url)
		s.mu.Lock()
		d := t.detector
		s.mu.Unlock()
		if d != nil {
			d.Mutated()
		}
		s.navigator.OnNavigationComplete(ctx, t.id, url)
	}
	return s.info(tabID)
}

// Activate switches the active tab. An open panel belongs to the previous tab
// and is closed.
func (s *Shell) Activate(tabID int) error {
	if _, err := s.tab(tabID); err != nil {
		return err
	}
	s.activate(tabID)
	return nil
}

// CloseTab tears a tab down together with its detector and any panel on it.
func (s *Shell) CloseTab(tabID int) error {
	s.mu.Lock()
	t, ok := s.tabs[tabID]
	if !ok {
		s.mu.Unlock()
		return ErrTabNotFound
	}
	delete(s.tabs, tabID)
	if s.active == tabID {
		s.active = 0
	}
	var p *panel.Panel
	if s.panelTab == tabID {
		p = s.detachPanelLocked()
	}
	s.mu.Unlock()

	if p != nil {
		p.Close()
	}
	s.unload(t)
	s.navigator.TabClosed(tabID)
	s.indicators.Forget(tabID)

	s.logger.Debug().Int("tabId", tabID).Msg("Tab closed")
	return nil
}

// Tabs lists open tabs by id.
func (s *Shell) Tabs() []TabInfo {
	s.mu.Lock()
	ids := make([]int, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Ints(ids)

	out := make([]TabInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := s.info(id); err == nil {
			out = append(out, info)
		}
	}
	return out
}

// OpenPanel opens a panel on the active tab, replacing any open one, and
// runs it up to Ready or a terminal state.
func (s *Shell) OpenPanel() (panel.Snapshot, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return panel.Snapshot{}, ErrShellStopped
	}
	if s.active == 0 {
		s.mu.Unlock()
		return panel.Snapshot{}, ErrNoActiveTab
	}
	prev := s.detachPanelLocked()

	p := panel.New(s.cfg.Panel, s.active, s.bridge.Endpoint(bridge.Sender{}), newHubView(s.events), s.clock, s.logger)
	s.panel = p
	s.panelTab = s.active
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	go s.forgetWhenDone(p)

	if err := p.Open(); err != nil {
		return panel.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// PanelSnapshot returns what the open panel shows.
func (s *Shell) PanelSnapshot() (panel.Snapshot, error) {
	p, err := s.currentPanel()
	if err != nil {
		return panel.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// SelectFormat selects a format on the open panel.
func (s *Shell) SelectFormat(index int) (panel.Snapshot, error) {
	p, err := s.currentPanel()
	if err != nil {
		return panel.Snapshot{}, err
	}
	err = p.Select(index)
	return p.Snapshot(), err
}

// StartDownload presses the panel's download trigger.
func (s *Shell) StartDownload() (panel.Snapshot, error) {
	p, err := s.currentPanel()
	if err != nil {
		return panel.Snapshot{}, err
	}
	err = p.Download()
	return p.Snapshot(), err
}

// ClosePanel closes the open panel.
func (s *Shell) ClosePanel() error {
	s.mu.Lock()
	p := s.detachPanelLocked()
	s.mu.Unlock()

	if p == nil {
		return ErrNoPanel
	}
	p.Close()
	return nil
}

// Stop closes the panel and every tab.
func (s *Shell) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	p := s.detachPanelLocked()
	tabs := make([]*tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.tabs = make(map[int]*tab)
	s.active = 0
	s.mu.Unlock()

	if p != nil {
		p.Close()
	}
	for _, t := range tabs {
		s.unload(t)
	}
}

func (s *Shell) load(ctx context.Context, t *tab) {
	d := detector.New(s.cfg.Detector, t.page, s.bridge.Endpoint(bridge.Sender{TabID: t.id}), s.clock, s.logger)

	s.mu.Lock()
	t.detector = d
	s.mu.Unlock()

	s.bridge.Register(bridge.Tab(t.id), d)
	d.Loaded()
	s.navigator.OnNavigationComplete(ctx, t.id, t.page.URL())
}

func (s *Shell) unload(t *tab) {
	s.mu.Lock()
	d := t.detector
	t.detector = nil
	s.mu.Unlock()

	if d == nil {
		return
	}
	s.bridge.Unregister(bridge.Tab(t.id))
	d.Close()
}

func (s *Shell) activate(tabID int) {
	s.mu.Lock()
	var p *panel.Panel
	if s.active != tabID {
		p = s.detachPanelLocked()
	}
	s.active = tabID
	s.mu.Unlock()

	if p != nil {
		p.Close()
	}
}

func (s *Shell) detachPanelLocked() *panel.Panel {
	p := s.panel
	s.panel = nil
	s.panelTab = 0
	return p
}

func (s *Shell) forgetWhenDone(p *panel.Panel) {
	<-p.Done()
	s.mu.Lock()
	if s.panel == p {
		s.detachPanelLocked()
	}
	s.mu.Unlock()
}

func (s *Shell) currentPanel() (*panel.Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panel == nil {
		return nil, ErrNoPanel
	}
	return s.panel, nil
}

func (s *Shell) tab(tabID int) (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[tabID]
	if !ok {
		return nil, ErrTabNotFound
	}
	return t, nil
}

func (s *Shell) info(tabID int) (TabInfo, error) {
	s.mu.Lock()
	t, ok := s.tabs[tabID]
	active := s.active == tabID
	s.mu.Unlock()
	if !ok {
		return TabInfo{}, ErrTabNotFound
	}
	return TabInfo{
		ID:        t.id,
		URL:       t.page.URL(),
		Active:    active,
		Indicator: s.indicators.Visible(tabID),
	}, nil
}
