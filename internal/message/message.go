// Package message defines the closed set of requests and responses exchanged
// between the Detector, the Coordinator and the Panel.
//
// Every kind of request is its own struct implementing Request. Receivers
// dispatch with a type switch over these structs; the unexported marker method
// keeps the set closed to this package.
package message

import "github.com/slipstream/vidgrab/internal/backend/types"

// Action is the wire tag of a request.
type Action string

const (
	ActionVideoDetected      Action = "videoDetected"
	ActionGetCurrentVideoURL Action = "getCurrentVideoUrl"
	ActionGetVideoInfo       Action = "getVideoInfo"
	ActionStartDownload      Action = "startDownload"
	ActionGetDownloadStatus  Action = "getDownloadStatus"
	ActionCheckBackend       Action = "checkBackend"
)

// Request is a message sent to another context.
type Request interface {
	Action() Action
	isRequest()
}

// Response is the reply to a Request.
type Response interface {
	isResponse()
}

// VideoDetected tells the Coordinator the sending tab shows a media page.
type VideoDetected struct {
	URL string `json:"url"`
}

// GetCurrentVideoURL asks a Detector for its best-known media URL.
type GetCurrentVideoURL struct{}

// GetVideoInfo asks the Coordinator to resolve a URL.
type GetVideoInfo struct {
	URL string `json:"url"`
}

// StartDownload asks the Coordinator to start a download.
type StartDownload struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`
}

// GetDownloadStatus asks the Coordinator for a job's state.
type GetDownloadStatus struct {
	DownloadID string `json:"download_id"`
}

// CheckBackend asks the Coordinator whether the backend is reachable.
type CheckBackend struct{}

func (VideoDetected) Action() Action      { return ActionVideoDetected }
func (GetCurrentVideoURL) Action() Action { return ActionGetCurrentVideoURL }
func (GetVideoInfo) Action() Action       { return ActionGetVideoInfo }
func (StartDownload) Action() Action      { return ActionStartDownload }
func (GetDownloadStatus) Action() Action  { return ActionGetDownloadStatus }
func (CheckBackend) Action() Action       { return ActionCheckBackend }

func (VideoDetected) isRequest()      {}
func (GetCurrentVideoURL) isRequest() {}
func (GetVideoInfo) isRequest()       {}
func (StartDownload) isRequest()      {}
func (GetDownloadStatus) isRequest()  {}
func (CheckBackend) isRequest()       {}

// Ack answers requests that carry no reply data.
type Ack struct{}

// CurrentVideoURL answers GetCurrentVideoURL.
type CurrentVideoURL struct {
	URL string `json:"url"`
}

// VideoInfoResult answers GetVideoInfo.
type VideoInfoResult struct {
	Success bool                 `json:"success"`
	Data    *types.ResolvedVideo `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// DownloadStartedResult answers StartDownload.
type DownloadStartedResult struct {
	Success bool                   `json:"success"`
	Data    *types.DownloadStarted `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// DownloadStatusResult answers GetDownloadStatus.
type DownloadStatusResult struct {
	Success bool                  `json:"success"`
	Data    *types.DownloadStatus `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// BackendStatus answers CheckBackend.
type BackendStatus struct {
	Success   bool   `json:"success"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func (Ack) isResponse()                   {}
func (CurrentVideoURL) isResponse()       {}
func (VideoInfoResult) isResponse()       {}
func (DownloadStartedResult) isResponse() {}
func (DownloadStatusResult) isResponse()  {}
func (BackendStatus) isResponse()         {}
