// Package types defines the data exchanged with the resolution/download backend.
package types

// StatusTag is the backend's job state label. The backend reports these in Turkish.
type StatusTag string

const (
	StatusStarted     StatusTag = "başlatıldı"
	StatusDownloading StatusTag = "indiriliyor"
	StatusCompleted   StatusTag = "tamamlandı"
	StatusFailed      StatusTag = "hata"
)

// IsTerminal returns true once the job can no longer change.
func (s StatusTag) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MediaKind is the kind of stream a format yields.
type MediaKind string

const (
	KindAudio      MediaKind = "audio"
	KindVideo      MediaKind = "video"
	KindVideoAudio MediaKind = "video+audio"
)

// IsAudio reports whether the format produces an audio-only file.
func (k MediaKind) IsAudio() bool {
	return k == KindAudio
}

// VideoInfo holds descriptive metadata for a resolved page.
type VideoInfo struct {
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"` // seconds, 0 if unknown
	ViewCount   int64   `json:"view_count,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
	Description string  `json:"description,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	WebpageURL  string  `json:"webpage_url,omitempty"`
}

// Format is one selectable quality/kind choice.
type Format struct {
	FormatID string    `json:"format_id"`
	Quality  string    `json:"quality"`
	Type     MediaKind `json:"type"`
	Ext      string    `json:"ext,omitempty"`
}

// ResolvedVideo is the /video-info response body.
type ResolvedVideo struct {
	VideoInfo VideoInfo `json:"video_info"`
	Formats   []Format  `json:"formats"`
}

// DownloadStarted is the /download response body.
type DownloadStarted struct {
	DownloadID string    `json:"download_id"`
	Status     StatusTag `json:"status,omitempty"`
}

// DownloadStatus is the /download-status/{id} response body.
type DownloadStatus struct {
	Status   StatusTag `json:"status"`
	Progress float64   `json:"progress"` // nominally 0-100, not guaranteed
	Filename string    `json:"filename,omitempty"`
	Error    string    `json:"error,omitempty"`
	URL      string    `json:"url,omitempty"`
	FormatID string    `json:"format_id,omitempty"`
	Quality  string    `json:"quality,omitempty"`
}

// VideoInfoRequest is the /video-info request body.
type VideoInfoRequest struct {
	URL string `json:"url"`
}

// DownloadRequest is the /download request body.
type DownloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`
}
