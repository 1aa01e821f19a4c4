package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/vidgrab/internal/panel"
)

type selectRequest struct {
	Index *int `json:"index"`
}

// panelResponse carries the snapshot alongside a rejected action.
type panelResponse struct {
	Error    string         `json:"error,omitempty"`
	Snapshot panel.Snapshot `json:"snapshot"`
}

// POST /api/panel
func (s *Server) openPanel(c echo.Context) error {
	snap, err := s.shell.OpenPanel()
	if err != nil {
		return shellError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// GET /api/panel
func (s *Server) getPanel(c echo.Context) error {
	snap, err := s.shell.PanelSnapshot()
	if err != nil {
		return shellError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// POST /api/panel/select
func (s *Server) selectFormat(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil || req.Index == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "index is required")
	}
	snap, err := s.shell.SelectFormat(*req.Index)
	return panelResult(c, snap, err)
}

// POST /api/panel/download
func (s *Server) startDownload(c echo.Context) error {
	snap, err := s.shell.StartDownload()
	return panelResult(c, snap, err)
}

// DELETE /api/panel
func (s *Server) closePanel(c echo.Context) error {
	if err := s.shell.ClosePanel(); err != nil {
		return shellError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func panelResult(c echo.Context, snap panel.Snapshot, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, snap)
	}

	status := panelStatus(err)
	if status == 0 {
		return shellError(err)
	}
	return c.JSON(status, panelResponse{Error: err.Error(), Snapshot: snap})
}

func panelStatus(err error) int {
	switch {
	case errors.Is(err, panel.ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, panel.ErrNoSelection),
		errors.Is(err, panel.ErrInvalidTransition),
		errors.Is(err, panel.ErrDownloadInProgress):
		return http.StatusConflict
	case errors.Is(err, panel.ErrPanelClosed):
		return http.StatusGone
	case errors.Is(err, panel.ErrStartFailed):
		return http.StatusBadGateway
	default:
		return 0
	}
}

// registerCommands lets websocket clients drive the panel without HTTP.
func (s *Server) registerCommands() {
	s.hub.Handle("panel:open", func(_ context.Context, _ json.RawMessage) error {
		_, err := s.shell.OpenPanel()
		return err
	})
	s.hub.Handle("panel:select", func(_ context.Context, payload json.RawMessage) error {
		var req selectRequest
		if err := json.Unmarshal(payload, &req); err != nil || req.Index == nil {
			return errors.New("index is required")
		}
		_, err := s.shell.SelectFormat(*req.Index)
		return err
	})
	s.hub.Handle("panel:download", func(_ context.Context, _ json.RawMessage) error {
		_, err := s.shell.StartDownload()
		return err
	})
	s.hub.Handle("panel:close", func(_ context.Context, _ json.RawMessage) error {
		return s.shell.ClosePanel()
	})
}
