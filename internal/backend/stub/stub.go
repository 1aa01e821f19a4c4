// Package stub is an in-process stand-in for the download server. It serves
// the same four endpoints with a fixed format list and simulated progress so
// the shell can run without the real extractor.
package stub

import (
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/backend/types"
	"github.com/slipstream/vidgrab/internal/classifier"
)

// Defaults for simulated progress.
const (
	DefaultStepInterval = 500 * time.Millisecond
	DefaultStepPercent  = 12.5
	defaultFormatID     = "best[height<=720]"
	defaultQuality      = "Best Quality"
)

// Formats is the list every resolve returns.
var Formats = []types.Format{
	{FormatID: "best[height<=720]", Quality: "720p HD", Type: types.KindVideoAudio, Ext: "mp4"},
	{FormatID: "best[height<=480]", Quality: "480p", Type: types.KindVideoAudio, Ext: "mp4"},
	{FormatID: "worst[height>=240]", Quality: "360p", Type: types.KindVideoAudio, Ext: "mp4"},
	{FormatID: "bestaudio", Quality: "Best Audio (MP3)", Type: types.KindAudio, Ext: "mp3"},
}

// Config tunes the simulation.
type Config struct {
	StepInterval time.Duration
	StepPercent  float64
	// FailFormats lists format ids whose downloads fail after the first step.
	FailFormats []string
	Clock       clockwork.Clock
}

type job struct {
	url      string
	formatID string
	quality  string
	filename string
	started  time.Time
	fail     bool
}

// Server is the stub backend.
type Server struct {
	echo   *echo.Echo
	cfg    Config
	clock  clockwork.Clock
	logger zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*job
}

// New creates a stub backend.
func New(cfg Config, logger zerolog.Logger) *Server {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultStepInterval
	}
	if cfg.StepPercent <= 0 {
		cfg.StepPercent = DefaultStepPercent
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("component", "stub-backend").Logger(),
		jobs:   make(map[string]*job),
	}

	e.GET("/health", s.health)
	e.POST("/video-info", s.videoInfo)
	e.POST("/download", s.startDownload)
	e.GET("/download-status/:id", s.downloadStatus)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Echo exposes the router for Start/Shutdown.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	s.mu.RLock()
	active := 0
	now := s.clock.Now()
	for _, j := range s.jobs {
		if !s.statusOf(j, now).Status.IsTerminal() {
			active++
		}
	}
	s.mu.RUnlock()

	return c.JSON(http.StatusOK, map[string]any{
		"status":           "healthy",
		"active_downloads": active,
	})
}

func (s *Server) videoInfo(c echo.Context) error {
	var req types.VideoInfoRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	s.logger.Debug().Str("url", req.URL).Msg("Resolving")

	return c.JSON(http.StatusOK, types.ResolvedVideo{
		VideoInfo: types.VideoInfo{
			Title:       titleFor(req.URL),
			Uploader:    uploaderFor(req.URL),
			Duration:    212,
			ViewCount:   1000,
			UploadDate:  "20240101",
			Description: "Simulated media served by the development backend",
			WebpageURL:  req.URL,
		},
		Formats: Formats,
	})
}

func (s *Server) startDownload(c echo.Context) error {
	var req types.DownloadRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	if req.FormatID == "" {
		req.FormatID = defaultFormatID
	}
	if req.Quality == "" {
		req.Quality = defaultQuality
	}

	id := uuid.NewString()
	j := &job{
		url:      req.URL,
		formatID: req.FormatID,
		quality:  req.Quality,
		filename: titleFor(req.URL) + "." + extFor(req.FormatID),
		started:  s.clock.Now(),
		fail:     s.fails(req.FormatID),
	}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.logger.Info().Str("downloadId", id).Str("formatId", req.FormatID).Str("url", req.URL).Msg("Download started")

	return c.JSON(http.StatusOK, types.DownloadStarted{
		DownloadID: id,
		Status:     types.StatusStarted,
	})
}

func (s *Server) downloadStatus(c echo.Context) error {
	id := c.Param("id")

	s.mu.RLock()
	j, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "download not found"})
	}

	return c.JSON(http.StatusOK, s.statusOf(j, s.clock.Now()))
}

// statusOf derives a job's state from elapsed time: one step of
// StepPercent per StepInterval, the first step still reporting "started".
func (s *Server) statusOf(j *job, now time.Time) types.DownloadStatus {
	st := types.DownloadStatus{
		URL:      j.url,
		FormatID: j.formatID,
		Quality:  j.quality,
	}

	steps := int(now.Sub(j.started) / s.cfg.StepInterval)
	switch {
	case steps == 0:
		st.Status = types.StatusStarted
	case j.fail:
		st.Status = types.StatusFailed
		st.Error = "Requested format is not available"
	default:
		progress := math.Min(100, float64(steps)*s.cfg.StepPercent)
		st.Progress = math.Round(progress*10) / 10
		st.Filename = j.filename
		st.Status = types.StatusDownloading
		if progress >= 100 {
			st.Status = types.StatusCompleted
		}
	}
	return st
}

func (s *Server) fails(formatID string) bool {
	for _, f := range s.cfg.FailFormats {
		if f == formatID {
			return true
		}
	}
	return false
}

func titleFor(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "Video"
	}
	if v := u.Query().Get("v"); v != "" {
		return "Video " + v
	}
	if base := path.Base(strings.TrimSuffix(u.Path, "/")); base != "" && base != "." && base != "/" {
		return "Video " + base
	}
	return "Video"
}

func uploaderFor(raw string) string {
	if site, ok := classifier.Match(raw); ok {
		return string(site)
	}
	return "Unknown"
}

func extFor(formatID string) string {
	for _, f := range Formats {
		if f.FormatID == formatID && f.Ext != "" {
			return f.Ext
		}
	}
	return "mp4"
}
