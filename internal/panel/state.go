package panel

// State is a Panel lifecycle state.
type State string

const (
	StateInit            State = "init"
	StateCheckingBackend State = "checking_backend"
	StateBackendDown     State = "backend_down"
	StateNoVideo         State = "no_video"
	StateLoading         State = "loading"
	StateError           State = "error"
	StateReady           State = "ready"
	StateSelecting       State = "selecting"
	StateDownloading     State = "downloading"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// IsTerminal returns true for states after which the session makes no further
// backend calls.
func (s State) IsTerminal() bool {
	switch s {
	case StateBackendDown, StateNoVideo, StateError, StateCompleted, StateFailed:
		return true
	default:
		return false
	}
}

// acceptsSelection reports whether a format may be picked in s.
func (s State) acceptsSelection() bool {
	return s == StateReady || s == StateSelecting
}
