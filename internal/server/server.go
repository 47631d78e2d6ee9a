// Package server hosts the dashboard over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/logging"
	"github.com/KaramelBytes/crashlens/internal/metrics"
	"github.com/KaramelBytes/crashlens/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Options configures a Server.
type Options struct {
	Addr    string
	MaxRows int
	// Controls are applied before query parameters.
	Controls dashboard.Controls
	Renderer dashboard.Renderer
	Logger   *slog.Logger
	// Metrics is optional; /metrics is only mounted when set.
	Metrics *metrics.Metrics
}

// Server serves the dashboard page, its JSON API and chart images.
type Server struct {
	Echo    *echo.Echo
	session *session.Session
	opt     Options
	log     *slog.Logger
}

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
}

// Render renders a template with the given data.
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

// New builds the echo instance and its routes.
func New(sess *session.Session, opt Options) (*Server, error) {
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &TemplateRenderer{templates: tmpl}

	s := &Server{Echo: e, session: sess, opt: opt, log: logging.ForModule(log, "server")}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.log.LogAttrs(c.Request().Context(), level, "request", attrs...)
			if s.opt.Metrics != nil {
				path := c.Path()
				if path == "" {
					path = "unmatched"
				}
				s.opt.Metrics.RecordHTTPRequest(v.Method, path, v.Status, v.Latency.Seconds())
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.Echo.GET("/", s.handlePage)
	s.Echo.GET("/api/dashboard", s.handleDashboard)
	s.Echo.GET("/api/schema", s.handleSchema)
	s.Echo.GET("/charts/:name", s.handleChart)
	s.Echo.GET("/healthz", s.handleHealth)
	if s.opt.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.opt.Metrics.Handler()))
	}
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.log.Info("dashboard listening", "addr", s.opt.Addr, "session_id", s.session.ID())
	if err := s.Echo.Start(s.opt.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := s.Echo.Shutdown(ctx)
	s.log.Info("dashboard stopped", "elapsed", time.Since(start), "error", err)
	return err
}
