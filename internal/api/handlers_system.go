package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/vidgrab/internal/config"
)

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	resp := map[string]any{
		"version": config.Version,
		"tabs":    len(s.shell.Tabs()),
	}

	if s.backend != nil {
		resp["backendUrl"] = s.backend.BaseURL()
		resp["backendConnected"] = s.backend.CheckHealth(c.Request().Context())
	}

	if snap, err := s.shell.PanelSnapshot(); err == nil {
		resp["panel"] = map[string]any{
			"sessionId": snap.SessionID,
			"tabId":     snap.TabID,
			"state":     snap.State,
		}
	}

	if s.hub != nil {
		resp["clients"] = s.hub.ClientCount()
	}

	return c.JSON(http.StatusOK, resp)
}
