package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/message"
)

type fakePage struct {
	url string
	mu  sync.Mutex
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) navigate(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

type recordingMessenger struct {
	sent chan message.Request
	err  error
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{sent: make(chan message.Request, 16)}
}

func (m *recordingMessenger) Send(ctx context.Context, to bridge.Target, req message.Request) (message.Response, error) {
	m.sent <- req
	if m.err != nil {
		return nil, m.err
	}
	return message.Ack{}, nil
}

func (m *recordingMessenger) expect(t *testing.T) message.Request {
	t.Helper()
	select {
	case req := <-m.sent:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message to the coordinator")
		return nil
	}
}

func (m *recordingMessenger) expectNone(t *testing.T) {
	t.Helper()
	select {
	case req := <-m.sent:
		t.Fatalf("unexpected message: %#v", req)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestDetector(url string) (*Detector, *fakePage, *recordingMessenger, *clockwork.FakeClock) {
	page := &fakePage{url: url}
	msgr := newRecordingMessenger()
	clock := clockwork.NewFakeClock()
	d := New(DefaultConfig(), page, msgr, clock, zerolog.Nop())
	return d, page, msgr, clock
}

func TestDetector_LoadedReportsAfterSettleDelay(t *testing.T) {
	d, _, msgr, clock := newTestDetector("https://www.youtube.com/watch?v=abc")
	defer d.Close()

	d.Loaded()

	clock.Advance(DefaultSettleDelay - time.Millisecond)
	msgr.expectNone(t)

	clock.Advance(time.Millisecond)
	req := msgr.expect(t)
	assert.Equal(t, message.VideoDetected{URL: "https://www.youtube.com/watch?v=abc"}, req)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", d.CurrentURL())
}

func TestDetector_NonMatchingPageNotReported(t *testing.T) {
	d, _, msgr, clock := newTestDetector("https://example.com/")
	defer d.Close()

	d.Loaded()
	clock.Advance(DefaultSettleDelay)
	msgr.expectNone(t)

	assert.Equal(t, "https://example.com/", d.CurrentURL())
}

func TestDetector_MutationWithoutURLChangeIgnored(t *testing.T) {
	d, _, msgr, clock := newTestDetector("https://www.youtube.com/watch?v=abc")
	defer d.Close()

	d.Mutated()
	clock.Advance(DefaultNavigationDelay * 2)
	msgr.expectNone(t)
}

func TestDetector_ClientSideNavigationDebounced(t *testing.T) {
	d, page, msgr, clock := newTestDetector("https://www.youtube.com/")
	defer d.Close()

	page.navigate("https://www.youtube.com/watch?v=first")
	d.Mutated()
	clock.Advance(500 * time.Millisecond)

	page.navigate("https://www.youtube.com/watch?v=second")
	d.Mutated()
	clock.Advance(600 * time.Millisecond)
	msgr.expectNone(t)

	clock.Advance(400 * time.Millisecond)
	req := msgr.expect(t)
	assert.Equal(t, message.VideoDetected{URL: "https://www.youtube.com/watch?v=second"}, req)
	msgr.expectNone(t)
}

func TestDetector_CurrentURLKeepsLastMatch(t *testing.T) {
	d, page, msgr, _ := newTestDetector("https://www.instagram.com/p/abc/")
	defer d.Close()

	require.True(t, d.Check())
	msgr.expect(t)

	page.navigate("https://www.instagram.com/explore/")
	assert.False(t, d.Check())
	assert.Equal(t, "https://www.instagram.com/p/abc/", d.CurrentURL())
}

func TestDetector_NotifyFailureIsNotFatal(t *testing.T) {
	d, _, msgr, _ := newTestDetector("https://www.youtube.com/watch?v=x")
	defer d.Close()
	msgr.err = errors.New("receiving end does not exist")

	assert.True(t, d.Check())
	msgr.expect(t)
	assert.Equal(t, "https://www.youtube.com/watch?v=x", d.CurrentURL())
}

func TestDetector_HandleGetCurrentVideoURL(t *testing.T) {
	d, _, _, _ := newTestDetector("https://example.com/page")
	defer d.Close()

	resp, err := d.Handle(context.Background(), bridge.Sender{}, message.GetCurrentVideoURL{})
	require.NoError(t, err)
	assert.Equal(t, message.CurrentVideoURL{URL: "https://example.com/page"}, resp)

	_, err = d.Handle(context.Background(), bridge.Sender{}, message.CheckBackend{})
	assert.Error(t, err)
}

func TestDetector_CloseCancelsPendingCheck(t *testing.T) {
	d, _, msgr, clock := newTestDetector("https://www.youtube.com/watch?v=x")

	d.Loaded()
	d.Close()
	clock.Advance(DefaultSettleDelay * 2)
	msgr.expectNone(t)

	d.Loaded()
	clock.Advance(DefaultSettleDelay * 2)
	msgr.expectNone(t)
}

func TestDetector_OverBridge(t *testing.T) {
	b := bridge.New(zerolog.Nop())
	detected := make(chan bridge.Sender, 1)
	b.Register(bridge.Coordinator, bridge.HandlerFunc(func(ctx context.Context, from bridge.Sender, req message.Request) (message.Response, error) {
		if _, ok := req.(message.VideoDetected); ok {
			detected <- from
		}
		return message.Ack{}, nil
	}))

	page := &fakePage{url: "https://www.instagram.com/tv/xyz/"}
	d := New(DefaultConfig(), page, b.Endpoint(bridge.Sender{TabID: 9}), clockwork.NewFakeClock(), zerolog.Nop())
	defer d.Close()
	b.Register(bridge.Tab(9), d)

	require.True(t, d.Check())
	select {
	case from := <-detected:
		assert.Equal(t, 9, from.TabID)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator not notified")
	}

	resp, err := b.Send(context.Background(), bridge.Sender{}, bridge.Tab(9), message.GetCurrentVideoURL{})
	require.NoError(t, err)
	assert.Equal(t, message.CurrentVideoURL{URL: "https://www.instagram.com/tv/xyz/"}, resp)
}
