package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/vidgrab/internal/backend"
	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/coordinator"
	"github.com/slipstream/vidgrab/internal/message"
)

const (
	testTabID    = 4
	testVideoURL = "https://www.youtube.com/watch?v=abc123"
)

// pollStep is one scripted /download-status answer.
type pollStep struct {
	status   string
	progress float64
	filename string
	errMsg   string
	fail     bool
}

// scriptedBackend plays the download server.
type scriptedBackend struct {
	mu          sync.Mutex
	healthy     bool
	infoStatus  int
	startStatus int
	downloadID  string
	steps       []pollStep
	pollHits    int
	calls       []string
}

func newScriptedBackend() *scriptedBackend {
	return &scriptedBackend{
		healthy:     true,
		infoStatus:  http.StatusOK,
		startStatus: http.StatusOK,
		downloadID:  "42",
	}
}

func (b *scriptedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls = append(b.calls, r.Method+" "+r.URL.Path)
	b.mu.Unlock()

	switch {
	case r.URL.Path == "/health":
		b.mu.Lock()
		healthy := b.healthy
		b.mu.Unlock()
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))

	case r.URL.Path == "/video-info":
		if b.infoStatus != http.StatusOK {
			w.WriteHeader(b.infoStatus)
			w.Write([]byte(`{"error":"extraction failed"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"video_info": map[string]any{"title": "Never Gonna", "uploader": "Rick", "duration": 212},
			"formats": []map[string]any{
				{"format_id": "best[height<=720]", "quality": "720p HD", "type": "video+audio"},
				{"format_id": "bestaudio", "quality": "Best Audio (MP3)", "type": "audio"},
			},
		})

	case r.URL.Path == "/download":
		if b.startStatus != http.StatusOK {
			w.WriteHeader(b.startStatus)
			w.Write([]byte(`{"error":"FFmpeg required"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"download_id": b.downloadID, "status": "başlatıldı"})

	case strings.HasPrefix(r.URL.Path, "/download-status/"):
		b.mu.Lock()
		idx := b.pollHits
		b.pollHits++
		var step pollStep
		if len(b.steps) > 0 {
			if idx >= len(b.steps) {
				idx = len(b.steps) - 1
			}
			step = b.steps[idx]
		}
		b.mu.Unlock()

		if step.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":   step.status,
			"progress": step.progress,
			"filename": step.filename,
			"error":    step.errMsg,
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *scriptedBackend) polls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pollHits
}

func (b *scriptedBackend) recordedCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// recordingView captures renders.
type recordingView struct {
	renders chan Snapshot
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	count   int
}

func newRecordingView() *recordingView {
	return &recordingView{
		renders: make(chan Snapshot, 256),
		closed:  make(chan struct{}),
	}
}

func (v *recordingView) Render(s Snapshot) {
	v.mu.Lock()
	v.count++
	v.mu.Unlock()
	select {
	case v.renders <- s:
	default:
	}
}

func (v *recordingView) Close() {
	v.once.Do(func() { close(v.closed) })
}

func (v *recordingView) renderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

func (v *recordingView) waitFor(t *testing.T, match func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-v.renders:
			if match(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for render")
			return Snapshot{}
		}
	}
}

func (v *recordingView) isClosed() bool {
	select {
	case <-v.closed:
		return true
	default:
		return false
	}
}

type fixture struct {
	backend *scriptedBackend
	bridge  *bridge.Bridge
	view    *recordingView
	clock   *clockwork.FakeClock
	panel   *Panel
}

func newFixture(t *testing.T, pageURL string, configure func(*scriptedBackend)) *fixture {
	t.Helper()

	sb := newScriptedBackend()
	if configure != nil {
		configure(sb)
	}
	server := httptest.NewServer(sb)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	client := backend.New(backend.Config{BaseURL: server.URL}, logger)

	b := bridge.New(logger)
	b.Register(bridge.Coordinator, coordinator.New(client, nopIndicator{}, logger))
	b.Register(bridge.Tab(testTabID), bridge.HandlerFunc(func(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
		return message.CurrentVideoURL{URL: pageURL}, nil
	}))

	view := newRecordingView()
	clock := clockwork.NewFakeClock()
	p := New(DefaultConfig(), testTabID, b.Endpoint(bridge.Sender{}), view, clock, logger)
	t.Cleanup(p.Close)

	return &fixture{backend: sb, bridge: b, view: view, clock: clock, panel: p}
}

type nopIndicator struct{}

func (nopIndicator) Show(int) {}
func (nopIndicator) Hide(int) {}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(DefaultPollInterval)
}

func TestPanel_ScenarioA_ReadyWithFormats(t *testing.T) {
	f := newFixture(t, testVideoURL, nil)

	require.NoError(t, f.panel.Open())

	snap := f.panel.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.StatusBar)
	assert.True(t, snap.StatusBar.Connected)
	require.NotNil(t, snap.Video)
	assert.Equal(t, "Never Gonna", snap.Video.Title)
	assert.Equal(t, "Rick", snap.Video.Uploader)
	assert.Equal(t, "3:32", snap.Video.Duration)

	require.Len(t, snap.Formats, 2)
	assert.Equal(t, FormatOption{Index: 0, Quality: "720p HD", Kind: "Video"}, snap.Formats[0])
	assert.Equal(t, FormatOption{Index: 1, Quality: "Best Audio (MP3)", Kind: "Audio"}, snap.Formats[1])
	assert.True(t, snap.FormatsEnabled)

	assert.True(t, snap.Trigger.Visible)
	assert.False(t, snap.Trigger.Enabled)
	assert.Equal(t, "Select quality", snap.Trigger.Label)
	assert.Nil(t, snap.Progress)
}

func TestPanel_ScenarioB_BackendDown(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) { b.healthy = false })

	require.NoError(t, f.panel.Open())

	snap := f.panel.Snapshot()
	assert.Equal(t, StateBackendDown, snap.State)
	assert.Equal(t, MsgBackendDown, snap.Error)
	require.NotNil(t, snap.StatusBar)
	assert.False(t, snap.StatusBar.Connected)
	assert.Nil(t, snap.Video)
	assert.Equal(t, []string{"GET /health"}, f.backend.recordedCalls())

	assert.ErrorIs(t, f.panel.Select(0), ErrInvalidTransition)
	assert.ErrorIs(t, f.panel.Download(), ErrInvalidTransition)
	assert.Equal(t, []string{"GET /health"}, f.backend.recordedCalls())
}

func TestPanel_NoVideo(t *testing.T) {
	f := newFixture(t, "https://example.com/", nil)

	require.NoError(t, f.panel.Open())

	snap := f.panel.Snapshot()
	assert.Equal(t, StateNoVideo, snap.State)
	assert.Equal(t, MsgNoVideo, snap.Notice)
	assert.Equal(t, []string{"GET /health"}, f.backend.recordedCalls())
}

func TestPanel_NoDetectorMeansNoVideo(t *testing.T) {
	f := newFixture(t, testVideoURL, nil)
	f.bridge.Unregister(bridge.Tab(testTabID))

	require.NoError(t, f.panel.Open())
	assert.Equal(t, StateNoVideo, f.panel.State())
}

func TestPanel_ResolveFailureShowsError(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) { b.infoStatus = http.StatusInternalServerError })

	require.NoError(t, f.panel.Open())

	snap := f.panel.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "Could not load video info: HTTP error! status: 500: extraction failed", snap.Error)
	assert.Empty(t, snap.Formats)
	assert.True(t, snap.State.IsTerminal())
}

func TestPanel_OpenTwice(t *testing.T) {
	f := newFixture(t, testVideoURL, nil)
	require.NoError(t, f.panel.Open())
	assert.ErrorIs(t, f.panel.Open(), ErrInvalidTransition)
}

func TestPanel_SelectionReplacesPrevious(t *testing.T) {
	f := newFixture(t, testVideoURL, nil)
	require.NoError(t, f.panel.Open())

	assert.ErrorIs(t, f.panel.Download(), ErrNoSelection)

	require.NoError(t, f.panel.Select(0))
	snap := f.panel.Snapshot()
	assert.Equal(t, StateSelecting, snap.State)
	assert.True(t, snap.Formats[0].Selected)
	assert.False(t, snap.Formats[1].Selected)
	assert.True(t, snap.Trigger.Enabled)
	assert.Equal(t, "Download 720p HD", snap.Trigger.Label)

	require.NoError(t, f.panel.Select(1))
	snap = f.panel.Snapshot()
	assert.False(t, snap.Formats[0].Selected)
	assert.True(t, snap.Formats[1].Selected)
	assert.True(t, snap.Trigger.Enabled)
	assert.Equal(t, "Download Best Audio (MP3)", snap.Trigger.Label)

	selected := 0
	for _, fo := range snap.Formats {
		if fo.Selected {
			selected++
		}
	}
	assert.Equal(t, 1, selected)

	require.NoError(t, f.panel.Select(1))
	assert.Equal(t, StateSelecting, f.panel.State())

	assert.ErrorIs(t, f.panel.Select(2), ErrInvalidFormat)
	assert.ErrorIs(t, f.panel.Select(-1), ErrInvalidFormat)
	assert.True(t, f.panel.Snapshot().Formats[1].Selected)
}

func TestPanel_StartFailureReenablesTrigger(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) { b.startStatus = http.StatusBadRequest })
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(1))

	err := f.panel.Download()
	assert.ErrorIs(t, err, ErrStartFailed)

	snap := f.panel.Snapshot()
	assert.Equal(t, StateSelecting, snap.State)
	assert.Equal(t, "Could not start download: HTTP error! status: 400: FFmpeg required", snap.Error)
	assert.True(t, snap.Trigger.Visible)
	assert.True(t, snap.Trigger.Enabled)
	assert.Nil(t, snap.Progress)
	assert.Empty(t, f.panel.DownloadID())

	f.view.waitFor(t, func(s Snapshot) bool { return s.Trigger.Label == "Starting..." && !s.Trigger.Enabled })
}

func TestPanel_ScenarioC_DownloadToCompletion(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{
			{status: "indiriliyor", progress: 10, filename: "Never Gonna.mp4"},
			{status: "indiriliyor", progress: 45, filename: "Never Gonna.mp4"},
			{status: "indiriliyor", progress: 80, filename: "Never Gonna.mp4"},
			{status: "tamamlandı", progress: 100, filename: "Never Gonna.mp4"},
		}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	snap := f.panel.Snapshot()
	assert.Equal(t, StateDownloading, snap.State)
	assert.Equal(t, "42", f.panel.DownloadID())
	assert.False(t, snap.Trigger.Visible)
	require.NotNil(t, snap.Progress)
	assert.Equal(t, 0, f.backend.polls())

	for i, want := range []float64{10, 45, 80} {
		f.tick(t)
		got := f.view.waitFor(t, func(s Snapshot) bool { return s.Progress != nil && s.Progress.Percent == want })
		assert.Equal(t, "Downloading: Never Gonna.mp4", got.Progress.Message)
		assert.Equal(t, StateDownloading, got.State)
		assert.Equal(t, i+1, f.backend.polls())
	}

	f.tick(t)
	done := f.view.waitFor(t, func(s Snapshot) bool { return s.State == StateCompleted })
	assert.Equal(t, "Completed: Never Gonna.mp4", done.Progress.Message)
	assert.Equal(t, 100.0, done.Progress.Percent)
	assert.Equal(t, "100.0%", done.Progress.Text)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.clock.Advance(DefaultCloseDelay - time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.view.isClosed())

	f.clock.Advance(time.Millisecond)
	select {
	case <-f.panel.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("panel did not auto-close")
	}
	assert.True(t, f.view.isClosed())

	f.clock.Advance(5 * DefaultPollInterval)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, f.backend.polls())
}

func TestPanel_FailedStatusStaysOpen(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{
			{status: "hata", progress: 0, errMsg: "Requested format is not available"},
		}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	f.tick(t)
	snap := f.view.waitFor(t, func(s Snapshot) bool { return s.State == StateFailed })
	assert.Equal(t, "Error: Requested format is not available", snap.Progress.Message)
	assert.Equal(t, "Requested format is not available", snap.Error)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 0))

	f.clock.Advance(10 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.view.isClosed())
	assert.Equal(t, 1, f.backend.polls())
}

func TestPanel_UnrecognizedStatusFallsBackToRawTag(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{{status: "postprocessing", progress: 142}}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	f.tick(t)
	snap := f.view.waitFor(t, func(s Snapshot) bool { return s.Progress != nil && s.Progress.Message == "Status: postprocessing" })
	assert.Equal(t, 100.0, snap.Progress.Percent)
	assert.Equal(t, StateDownloading, snap.State)
}

func TestPanel_ScenarioD_PollFailureStopsSilently(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{
			{status: "indiriliyor", progress: 30, filename: "clip.mp4"},
			{fail: true},
			{status: "indiriliyor", progress: 90, filename: "clip.mp4"},
		}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	f.tick(t)
	last := f.view.waitFor(t, func(s Snapshot) bool { return s.Progress != nil && s.Progress.Percent == 30 })
	rendersBefore := f.view.renderCount()

	f.tick(t)
	require.Eventually(t, func() bool { return f.backend.polls() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 0))

	f.clock.Advance(10 * DefaultPollInterval)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 2, f.backend.polls())
	assert.Equal(t, rendersBefore, f.view.renderCount())
	assert.Equal(t, last, f.panel.Snapshot())
	assert.Equal(t, StateDownloading, f.panel.State())
	assert.False(t, f.view.isClosed())
}

func TestPanel_CloseStopsPolling(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{{status: "indiriliyor", progress: 10, filename: "clip.mp4"}}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	f.tick(t)
	f.view.waitFor(t, func(s Snapshot) bool { return s.Progress != nil && s.Progress.Percent == 10 })

	f.panel.Close()
	assert.True(t, f.view.isClosed())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 0))

	f.clock.Advance(10 * DefaultPollInterval)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.backend.polls())

	assert.ErrorIs(t, f.panel.Select(0), ErrPanelClosed)
	assert.ErrorIs(t, f.panel.Download(), ErrPanelClosed)
	f.panel.Close()
}

func TestPanel_AtMostOneRequestPerTick(t *testing.T) {
	f := newFixture(t, testVideoURL, func(b *scriptedBackend) {
		b.steps = []pollStep{{status: "indiriliyor", progress: 5, filename: "clip.mp4"}}
	})
	require.NoError(t, f.panel.Open())
	require.NoError(t, f.panel.Select(0))
	require.NoError(t, f.panel.Download())

	f.clock.Advance(DefaultPollInterval / 2)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.backend.polls())

	for i := 1; i <= 3; i++ {
		f.tick(t)
		require.Eventually(t, func() bool { return f.backend.polls() == i }, 2*time.Second, 10*time.Millisecond)
	}
}

// blockingMessenger never answers so tests can close a panel mid-request.
type blockingMessenger struct {
	entered chan struct{}
}

func (m *blockingMessenger) Send(ctx context.Context, to bridge.Target, req message.Request) (message.Response, error) {
	m.entered <- struct{}{}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPanel_CloseDuringOpen(t *testing.T) {
	msgr := &blockingMessenger{entered: make(chan struct{}, 1)}
	view := newRecordingView()
	p := New(DefaultConfig(), testTabID, msgr, view, clockwork.NewFakeClock(), zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- p.Open() }()

	<-msgr.entered
	p.Close()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrPanelClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return after Close")
	}
	assert.True(t, view.isClosed())
}

func TestPanel_BridgeFailureDuringResolve(t *testing.T) {
	logger := zerolog.Nop()
	b := bridge.New(logger)
	b.Register(bridge.Coordinator, bridge.HandlerFunc(func(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
		if _, ok := req.(message.CheckBackend); ok {
			return message.BackendStatus{Success: true, Connected: true}, nil
		}
		return nil, errors.New("router exploded")
	}))
	b.Register(bridge.Tab(testTabID), bridge.HandlerFunc(func(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
		return message.CurrentVideoURL{URL: testVideoURL}, nil
	}))

	p := New(DefaultConfig(), testTabID, b.Endpoint(bridge.Sender{}), newRecordingView(), clockwork.NewFakeClock(), logger)
	defer p.Close()

	require.NoError(t, p.Open())
	snap := p.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.True(t, strings.HasPrefix(snap.Error, "An error occurred: "), snap.Error)
	assert.Contains(t, snap.Error, "router exploded")
}
