package panel

import (
	"fmt"
	"math"

	"github.com/slipstream/vidgrab/internal/backend/types"
)

// User-facing texts.
const (
	MsgBackendDown      = "Backend service is not running! Start the download server."
	MsgBackendConnected = "Backend service is running"
	MsgBackendOffline   = "Cannot connect to backend service"
	MsgNoVideo          = "No downloadable video found on this page"

	labelSelectQuality = "Select quality"
	labelStarting      = "Starting..."
	labelInitialStatus = "Preparing download..."

	prefixLoadFailed  = "Could not load video info: "
	prefixStartFailed = "Could not start download: "
	prefixUnexpected  = "An error occurred: "
)

// Snapshot is everything the Panel currently shows. Views render it as a whole.
type Snapshot struct {
	SessionID      string         `json:"sessionId"`
	TabID          int            `json:"tabId"`
	State          State          `json:"state"`
	StatusBar      *StatusBar     `json:"statusBar,omitempty"`
	Error          string         `json:"error,omitempty"`
	Notice         string         `json:"notice,omitempty"`
	Video          *VideoSummary  `json:"video,omitempty"`
	Formats        []FormatOption `json:"formats,omitempty"`
	FormatsEnabled bool           `json:"formatsEnabled"`
	Trigger        Trigger        `json:"trigger"`
	Progress       *Progress      `json:"progress,omitempty"`
}

// StatusBar shows backend reachability.
type StatusBar struct {
	Connected bool   `json:"connected"`
	Text      string `json:"text"`
}

// VideoSummary is the rendered metadata block.
type VideoSummary struct {
	Title    string `json:"title"`
	Uploader string `json:"uploader"`
	Duration string `json:"duration"`
}

// FormatOption is one entry of the quality list.
type FormatOption struct {
	Index    int    `json:"index"`
	Quality  string `json:"quality"`
	Kind     string `json:"kind"`
	Selected bool   `json:"selected"`
}

// Trigger is the download button.
type Trigger struct {
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// Progress is the download progress indicator.
type Progress struct {
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
	Text    string  `json:"text"`
}

// View displays a Panel. Render is called with the full state after every
// change; Close is called once when the Panel goes away.
type View interface {
	Render(Snapshot)
	Close()
}

// ClampProgress forces a backend-supplied progress value into [0, 100].
func ClampProgress(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// StatusMessage maps a backend status to the line shown above the progress bar.
func StatusMessage(s *types.DownloadStatus) string {
	switch s.Status {
	case types.StatusStarted:
		return "Download started..."
	case types.StatusDownloading:
		return "Downloading: " + s.Filename
	case types.StatusCompleted:
		return "Completed: " + s.Filename
	case types.StatusFailed:
		return "Error: " + s.Error
	default:
		return "Status: " + string(s.Status)
	}
}

// FormatDuration renders seconds as h:mm:ss or m:ss.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	if total <= 0 {
		return "Unknown"
	}

	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func kindLabel(k types.MediaKind) string {
	if k.IsAudio() {
		return "Audio"
	}
	return "Video"
}

func newProgress(message string, raw float64) *Progress {
	pct := ClampProgress(raw)
	return &Progress{
		Message: message,
		Percent: pct,
		Text:    fmt.Sprintf("%.1f%%", pct),
	}
}

func downloadLabel(quality string) string {
	return "Download " + quality
}
