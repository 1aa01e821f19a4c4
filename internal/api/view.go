package api

import (
	"sync"

	"github.com/slipstream/vidgrab/internal/panel"
)

// PanelClosed is the payload of EventPanelClosed.
type PanelClosed struct {
	SessionID string `json:"sessionId"`
	TabID     int    `json:"tabId"`
}

// hubView renders a panel by broadcasting its snapshots.
type hubView struct {
	events Broadcaster

	mu   sync.Mutex
	last panel.Snapshot
}

func newHubView(events Broadcaster) *hubView {
	return &hubView{events: events}
}

func (v *hubView) Render(s panel.Snapshot) {
	v.mu.Lock()
	v.last = s
	v.mu.Unlock()

	_ = v.events.Broadcast(EventPanelRender, s)
}

func (v *hubView) Close() {
	v.mu.Lock()
	last := v.last
	v.mu.Unlock()

	_ = v.events.Broadcast(EventPanelClosed, PanelClosed{SessionID: last.SessionID, TabID: last.TabID})
}
