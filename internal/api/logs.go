package api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/vidgrab/internal/logger"
)

// LogsProvider provides access to log data.
type LogsProvider interface {
	GetRecentLogs() []logger.LogEntry
	GetLogFilePath() string
}

// LogsHandlers handles log-related HTTP endpoints.
type LogsHandlers struct {
	provider LogsProvider
}

// NewLogsHandlers creates a new logs handlers instance.
func NewLogsHandlers(provider LogsProvider) *LogsHandlers {
	return &LogsHandlers{provider: provider}
}

// RegisterRoutes registers log routes on the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRecentLogs)
	g.GET("/download", h.DownloadLogFile)
}

// GetRecentLogs returns buffered entries, optionally filtered by ?level= or ?component=.
func (h *LogsHandlers) GetRecentLogs(c echo.Context) error {
	level := c.QueryParam("level")
	component := c.QueryParam("component")

	logs := make([]logger.LogEntry, 0)
	for _, e := range h.provider.GetRecentLogs() {
		if level != "" && e.Level != level {
			continue
		}
		if component != "" && e.Component != component {
			continue
		}
		logs = append(logs, e)
	}
	return c.JSON(http.StatusOK, logs)
}

// DownloadLogFile serves the current log file for download.
func (h *LogsHandlers) DownloadLogFile(c echo.Context) error {
	logPath := h.provider.GetLogFilePath()
	if logPath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}

	return c.Attachment(logPath, "vidgrab.log")
}
