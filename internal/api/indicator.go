package api

import (
	"sync"
)

// Shell events pushed over the hub.
const (
	EventIndicatorUpdate = "indicator:update"
	EventPanelRender     = "panel:render"
	EventPanelClosed     = "panel:closed"
)

// Broadcaster pushes an event to every connected shell client.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) error { return nil }

// IndicatorUpdate is the payload of EventIndicatorUpdate.
type IndicatorUpdate struct {
	TabID   int  `json:"tabId"`
	Visible bool `json:"visible"`
}

// IndicatorState is the toolbar indicator of every tab. Writes are
// last-write-wins and each one is broadcast.
type IndicatorState struct {
	events Broadcaster

	mu      sync.RWMutex
	visible map[int]bool
}

// NewIndicatorState creates indicator state publishing to events (may be nil).
func NewIndicatorState(events Broadcaster) *IndicatorState {
	if events == nil {
		events = nopBroadcaster{}
	}
	return &IndicatorState{
		events:  events,
		visible: make(map[int]bool),
	}
}

// Show makes the indicator visible for tabID.
func (s *IndicatorState) Show(tabID int) {
	s.set(tabID, true)
}

// Hide clears the indicator for tabID.
func (s *IndicatorState) Hide(tabID int) {
	s.set(tabID, false)
}

// Visible reports the indicator of tabID.
func (s *IndicatorState) Visible(tabID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible[tabID]
}

// Forget drops a closed tab.
func (s *IndicatorState) Forget(tabID int) {
	s.mu.Lock()
	delete(s.visible, tabID)
	s.mu.Unlock()
}

func (s *IndicatorState) set(tabID int, visible bool) {
	s.mu.Lock()
	s.visible[tabID] = visible
	s.mu.Unlock()

	_ = s.events.Broadcast(EventIndicatorUpdate, IndicatorUpdate{TabID: tabID, Visible: visible})
}
