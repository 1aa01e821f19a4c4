package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/api/handlers"
	apimw "github.com/slipstream/vidgrab/internal/api/middleware"
	"github.com/slipstream/vidgrab/internal/scheduler"
	"github.com/slipstream/vidgrab/internal/websocket"
)

// HealthChecker probes the download server for the status endpoint.
type HealthChecker interface {
	CheckHealth(ctx context.Context) bool
	BaseURL() string
}

// Options wires a Server. Hub, Scheduler and Logs are optional.
type Options struct {
	Shell     *Shell
	Backend   HealthChecker
	Hub       *websocket.Hub
	Scheduler *scheduler.Scheduler
	Logs      LogsProvider
	Logger    zerolog.Logger
}

// Server serves the browser shell over HTTP.
type Server struct {
	echo    *echo.Echo
	shell   *Shell
	backend HealthChecker
	hub     *websocket.Hub
	sched   *scheduler.Scheduler
	logs    LogsProvider
	logger  zerolog.Logger
}

// NewServer creates a new API server instance.
func NewServer(opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		shell:   opts.Shell,
		backend: opts.Backend,
		hub:     opts.Hub,
		sched:   opts.Scheduler,
		logs:    opts.Logs,
		logger:  opts.Logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	if s.hub != nil {
		s.registerCommands()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(apimw.LoopbackOnly())
	s.echo.Use(middleware.BodyLimit("64K"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Warn().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}

	api := s.echo.Group("/api")
	api.GET("/status", s.getStatus)

	tabs := api.Group("/tabs")
	tabs.GET("", s.listTabs)
	tabs.POST("", s.openTab)
	tabs.PUT("/:id", s.navigateTab)
	tabs.POST("/:id/activate", s.activateTab)
	tabs.DELETE("/:id", s.closeTab)

	p := api.Group("/panel")
	p.POST("", s.openPanel)
	p.GET("", s.getPanel)
	p.POST("/select", s.selectFormat)
	p.POST("/download", s.startDownload)
	p.DELETE("", s.closePanel)

	if s.sched != nil {
		h := handlers.NewSchedulerHandler(s.sched)
		tasks := api.Group("/scheduler/tasks")
		tasks.GET("", h.ListTasks)
		tasks.GET("/:id", h.GetTask)
		tasks.POST("/:id/run", h.RunTask)
	}

	if s.logs != nil {
		NewLogsHandlers(s.logs).RegisterRoutes(api.Group("/logs"))
	}
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and closes every tab and panel.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shell.Stop()
	return s.echo.Shutdown(ctx)
}
