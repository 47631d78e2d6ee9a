package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/metrics"
	"github.com/KaramelBytes/crashlens/internal/normalize"
	"github.com/KaramelBytes/crashlens/internal/session"
)

func fixture(cols []string, rows ...[]string) *normalize.Table {
	raw := &dataset.Table{Name: "crashes.csv", Columns: cols}
	for _, r := range rows {
		cells := make([]dataset.Cell, len(r))
		for i, v := range r {
			cells[i] = dataset.FromText(v)
		}
		raw.Rows = append(raw.Rows, cells)
	}
	return normalize.Normalize(raw, normalize.Options{})
}

var crashColumns = []string{
	"CRASH DATE", "CRASH TIME", "LATITUDE", "LONGITUDE", "NUMBER OF PERSONS INJURED",
	"CONTRIBUTING FACTOR VEHICLE 1", "CONTRIBUTING FACTOR VEHICLE 2",
}

func crashTable() *normalize.Table {
	return fixture(crashColumns,
		[]string{"2021-01-05", "14:30", "40.70", "-73.90", "2", "Driver Inattention", "Unspecified"},
		[]string{"2021-01-05", "14:50", "40.71", "-73.91", "1", "Driver Inattention", ""},
		[]string{"2021-01-06", "17:45", "40.72", "-73.92", "0", "Unsafe Speed", "Driver Inattention"},
		[]string{"2021-01-07", "09:00", "40.73", "-73.93", "4", "Following Too Closely", ""},
		[]string{"2021-01-07", "23:10", "", "", "3", "Unsafe Speed", ""},
	)
}

func newTestServer(t *testing.T, table *normalize.Table, loadErr error) (*Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	sess := session.New(func(ctx context.Context, maxRows int) (*normalize.Table, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return table, nil
	}, session.Options{Metrics: m})
	srv, err := New(sess, Options{Controls: dashboard.DefaultControls(), Metrics: m})
	require.NoError(t, err)
	return srv, m
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestDashboardMatchesRender(t *testing.T) {
	table := crashTable()
	srv, _ := newTestServer(t, table, nil)

	rec := get(t, srv, "/api/dashboard?min_injuries=2&hour=14&factor=contributing_factor_vehicle_2&debug=true")
	require.Equal(t, http.StatusOK, rec.Code)

	want := dashboard.Render(table, dashboard.Controls{
		MinInjuries:  2,
		Hour:         14,
		FactorColumn: normalize.ColFactor2,
		ShowDebug:    true,
	})
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), rec.Body.String())

	var got dashboard.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.TimeSeries.HourCount)
	assert.Len(t, got.Map.Points, 2)
	assert.NotNil(t, got.Debug)
	assert.Nil(t, got.Sample)
}

func TestParseControls(t *testing.T) {
	def := dashboard.DefaultControls()
	c, err := ParseControls(url.Values{"hour": {"8"}, "sample": {"on"}}, def)
	require.NoError(t, err)
	assert.Equal(t, 8, c.Hour)
	assert.Equal(t, def.MinInjuries, c.MinInjuries)
	assert.True(t, c.ShowSample)

	_, err = ParseControls(url.Values{"min_injuries": {"lots"}}, def)
	assert.Error(t, err)

	back, err := ParseControls(EncodeControls(c), def)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestBadControlIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, crashTable(), nil)
	rec := get(t, srv, "/api/dashboard?hour=noon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPageHTML(t *testing.T) {
	srv, _ := newTestServer(t, crashTable(), nil)
	rec := get(t, srv, "/?sample=true")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>"+dashboard.Title+"</h1>")
	assert.Contains(t, body, "/charts/map.svg?")
	assert.Contains(t, body, "Sample of Loaded Data")
	assert.Contains(t, body, "Loaded 4 valid rows")
	assert.NotContains(t, body, "Debug Information")
}

func TestCharts(t *testing.T) {
	srv, _ := newTestServer(t, crashTable(), nil)
	for _, name := range []string{"map.svg", "daily.svg", "hourly.svg", "factors.svg", "factor-hour.svg"} {
		rec := get(t, srv, "/charts/"+name)
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"), name)
		assert.Contains(t, rec.Body.String(), "<svg", name)
	}
	rec := get(t, srv, "/charts/heatmap.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/charts/pie.svg").Code)
}

func TestChartWithoutDataIsNotFound(t *testing.T) {
	table := fixture([]string{"CRASH DATE", "NUMBER OF PERSONS INJURED"},
		[]string{"2021-01-05", "1"},
	)
	srv, _ := newTestServer(t, table, nil)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/charts/map.svg").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/charts/heatmap.png").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/charts/daily.svg").Code)

	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Cannot show map. Missing columns")
}

func TestSchemaUsesConfiguredSeparators(t *testing.T) {
	raw := &dataset.Table{Name: "eu.csv", Columns: []string{"Speed"}, Rows: [][]dataset.Cell{
		{dataset.FromText("1.234,5")}, {dataset.FromText("2,5")},
	}}
	nf := normalize.NumberFormat{DecimalSeparator: ',', ThousandsSeparator: '.'}
	srv, _ := newTestServer(t, normalize.Normalize(raw, normalize.Options{Numbers: nf}), nil)

	rec := get(t, srv, "/api/schema")
	require.Equal(t, http.StatusOK, rec.Code)
	var schema SchemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	require.Len(t, schema.Profile.Cols, 1)
	assert.Equal(t, "numeric", schema.Profile.Cols[0].Kind)
	assert.InDelta(t, 1234.5, schema.Profile.Cols[0].Max, 1e-9)
}

func TestLoadErrorIsServerError(t *testing.T) {
	srv, _ := newTestServer(t, nil, errors.New("open csv: no such file"))
	rec := get(t, srv, "/api/dashboard")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such file")

	page := get(t, srv, "/")
	assert.Equal(t, http.StatusInternalServerError, page.Code)
	assert.Contains(t, page.Body.String(), "no such file")

	assert.Equal(t, http.StatusInternalServerError, get(t, srv, "/api/schema").Code)
}

func TestSchemaHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, crashTable(), nil)

	rec := get(t, srv, "/api/schema")
	require.Equal(t, http.StatusOK, rec.Code)
	var schema SchemaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schema))
	assert.Equal(t, "crash_date", schema.Schema.DateSource)
	assert.Equal(t, "latitude", schema.Schema.LatitudeSource)
	assert.Equal(t, 4, schema.Profile.Rows)
	assert.Equal(t, 1, schema.Profile.Dropped)

	health := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"status":"ok"`)
	assert.Contains(t, health.Body.String(), `"cached":1`)
	assert.NotEmpty(t, health.Header().Get("X-Request-Id"))

	m := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), "crashlens_http_requests_total")
	assert.Contains(t, m.Body.String(), "crashlens_dataset_loads_total")
}
