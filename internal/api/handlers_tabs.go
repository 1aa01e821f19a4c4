package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type openTabRequest struct {
	URL string `json:"url"`
}

type navigateRequest struct {
	URL    string `json:"url"`
	Reload bool   `json:"reload"`
}

func (s *Server) listTabs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.shell.Tabs())
}

// POST /api/tabs
func (s *Server) openTab(c echo.Context) error {
	var req openTabRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	info, err := s.shell.OpenTab(c.Request().Context(), req.URL)
	if err != nil {
		return shellError(err)
	}
	return c.JSON(http.StatusCreated, info)
}

// PUT /api/tabs/:id
func (s *Server) navigateTab(c echo.Context) error {
	id, err := tabID(c)
	if err != nil {
		return err
	}

	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	info, err := s.shell.Navigate(c.Request().Context(), id, req.URL, req.Reload)
	if err != nil {
		return shellError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// POST /api/tabs/:id/activate
func (s *Server) activateTab(c echo.Context) error {
	id, err := tabID(c)
	if err != nil {
		return err
	}
	if err := s.shell.Activate(id); err != nil {
		return shellError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /api/tabs/:id
func (s *Server) closeTab(c echo.Context) error {
	id, err := tabID(c)
	if err != nil {
		return err
	}
	if err := s.shell.CloseTab(id); err != nil {
		return shellError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func tabID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid tab id")
	}
	return id, nil
}

func shellError(err error) error {
	switch {
	case errors.Is(err, ErrTabNotFound), errors.Is(err, ErrNoPanel):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoActiveTab):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrShellStopped):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
