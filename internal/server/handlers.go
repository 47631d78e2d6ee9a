package server

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KaramelBytes/crashlens/internal/analysis"
	"github.com/KaramelBytes/crashlens/internal/charts"
	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// PageData is the view model of the HTML page.
type PageData struct {
	Page      *dashboard.Page
	SessionID string
	// Query re-encodes the effective controls for chart URLs.
	Query template.URL
	Hours []int
}

// SchemaResponse is the body of /api/schema.
type SchemaResponse struct {
	SessionID string           `json:"session_id"`
	Schema    normalize.Schema `json:"schema"`
	Profile   *analysis.Report `json:"profile"`
}

// ParseControls reads the dashboard controls from query parameters on top of
// def. Unknown values are left for the renderer to clamp.
func ParseControls(q url.Values, def dashboard.Controls) (dashboard.Controls, error) {
	c := def
	intParam := func(name string, dst *int) error {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return nil
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", name, v)
		}
		*dst = i
		return nil
	}
	boolParam := func(name string, dst *bool) error {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			if v == "on" {
				*dst = true
				return nil
			}
			return fmt.Errorf("invalid %s: %q", name, v)
		}
		*dst = b
		return nil
	}
	if err := intParam("min_injuries", &c.MinInjuries); err != nil {
		return c, err
	}
	if err := intParam("hour", &c.Hour); err != nil {
		return c, err
	}
	if v := q.Get("factor"); v != "" {
		c.FactorColumn = v
	}
	if v := q.Get("time_factor"); v != "" {
		c.TimeFactorColumn = v
	}
	if err := boolParam("sample", &c.ShowSample); err != nil {
		return c, err
	}
	if err := boolParam("debug", &c.ShowDebug); err != nil {
		return c, err
	}
	return c, nil
}

// EncodeControls is the inverse of ParseControls.
func EncodeControls(c dashboard.Controls) url.Values {
	q := url.Values{}
	q.Set("min_injuries", strconv.Itoa(c.MinInjuries))
	q.Set("hour", strconv.Itoa(c.Hour))
	if c.FactorColumn != "" {
		q.Set("factor", c.FactorColumn)
	}
	if c.TimeFactorColumn != "" {
		q.Set("time_factor", c.TimeFactorColumn)
	}
	if c.ShowSample {
		q.Set("sample", "true")
	}
	if c.ShowDebug {
		q.Set("debug", "true")
	}
	return q
}

// render loads the table and builds the page for the request's controls.
func (s *Server) render(c echo.Context) (*dashboard.Page, *normalize.Table, error) {
	ctl, err := ParseControls(c.QueryParams(), s.opt.Controls)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := s.session.Table(c.Request().Context(), s.opt.MaxRows)
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return s.opt.Renderer.Render(t, ctl), t, nil
}

func (s *Server) observe(format string, start time.Time) {
	if s.opt.Metrics != nil {
		s.opt.Metrics.RecordRender(format, time.Since(start).Seconds())
	}
}

func (s *Server) handlePage(c echo.Context) error {
	start := time.Now()
	p, _, err := s.render(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return c.Render(he.Code, "error.html", map[string]any{
				"Title":   dashboard.Title,
				"Code":    he.Code,
				"Message": he.Message,
			})
		}
		return err
	}
	hours := make([]int, 24)
	for h := range hours {
		hours[h] = h
	}
	data := PageData{
		Page:      p,
		SessionID: s.session.ID(),
		Query:     template.URL(EncodeControls(p.Controls).Encode()),
		Hours:     hours,
	}
	defer s.observe("html", start)
	return c.Render(http.StatusOK, "index.html", data)
}

func (s *Server) handleDashboard(c echo.Context) error {
	start := time.Now()
	p, _, err := s.render(c)
	if err != nil {
		return err
	}
	defer s.observe("json", start)
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleSchema(c echo.Context) error {
	t, err := s.session.Table(c.Request().Context(), s.opt.MaxRows)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
	return c.JSON(http.StatusOK, SchemaResponse{
		SessionID: s.session.ID(),
		Schema:    t.Schema,
		Profile:   analysis.Profile(t, analysis.DefaultOptions()),
	})
}

func (s *Server) handleChart(c echo.Context) error {
	name := c.Param("name")
	draw, contentType, ok := chartFor(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown chart: "+name)
	}
	start := time.Now()
	p, _, err := s.render(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := draw(&buf, p); err != nil {
		if errors.Is(err, charts.ErrNoData) {
			return echo.NewHTTPError(http.StatusNotFound, "no data for chart "+name)
		}
		s.log.Error("chart render failed", "chart", name, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "chart render failed").SetInternal(err)
	}
	format := "svg"
	if contentType == "image/png" {
		format = "png"
	}
	s.observe(format, start)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}

type chartFunc func(*bytes.Buffer, *dashboard.Page) error

func chartFor(name string) (chartFunc, string, bool) {
	const svg = "image/svg+xml"
	switch name {
	case "map.svg":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.Map(b, p.Map) }, svg, true
	case "daily.svg":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.Daily(b, p.TimeSeries) }, svg, true
	case "hourly.svg":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.Hourly(b, p.TimeSeries) }, svg, true
	case "factors.svg":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.Factors(b, p.Factors) }, svg, true
	case "factor-hour.svg":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.FactorHour(b, p.FactorHour) }, svg, true
	case "heatmap.png":
		return func(b *bytes.Buffer, p *dashboard.Page) error { return charts.Heatmap(b, p.Heatmap, 0, 0) }, "image/png", true
	}
	return nil, "", false
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "ok",
		"session_id": s.session.ID(),
		"cached":     s.session.Len(),
	})
}
