package analysis

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/crashlens/internal/dataset"
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

var crashColumns = []string{
	"CRASH DATE", "CRASH TIME", "BOROUGH", "LATITUDE", "LONGITUDE",
	"NUMBER OF PERSONS INJURED", "CONTRIBUTING FACTOR VEHICLE 1", "CONTRIBUTING FACTOR VEHICLE 2",
}

var crashRows = [][]string{
	{"2021-01-05", "14:30", "BROOKLYN", "40.70", "-73.90", "2", "Driver Inattention", "Unspecified"},
	{"2021-01-05", "14:45", "BROOKLYN", "40.71", "-73.91", "0", "Driver Inattention", ""},
	{"2021-01-05", "08:10", "QUEENS", "40.72", "-73.80", "1", "Unspecified", "Unspecified"},
	{"2021-01-06", "14:05", "QUEENS", "40.73", "-73.81", "3", "Following Too Closely", "Driver Inattention"},
	{"2021-01-06", "23:59", "BRONX", "40.80", "-73.85", "0", "", "Unsafe Speed"},
	{"2021-01-07", "00:15", "BRONX", "abc", "-73.86", "1", "Unsafe Speed", ""},
	{"2021-01-07", "", "BRONX", "", "-73.87", "5", "Unsafe Speed", ""},
	{"bad-date", "10:00", "MANHATTAN", "40.75", "-73.98", "", "unknown", " "},
}

func crashTable(t *testing.T) *normalize.Table {
	t.Helper()
	raw := &dataset.Table{Name: "crashes.csv", Columns: crashColumns}
	for _, r := range crashRows {
		row := make([]dataset.Cell, len(r))
		for i, v := range r {
			row[i] = dataset.FromText(v)
		}
		raw.Rows = append(raw.Rows, row)
	}
	nt := normalize.Normalize(raw, normalize.Options{})
	if len(nt.Records) != 7 || nt.Dropped != 1 {
		t.Fatalf("fixture: records=%d dropped=%d", len(nt.Records), nt.Dropped)
	}
	return nt
}

func TestProfileAndMarkdown(t *testing.T) {
	nt := crashTable(t)
	rep := Profile(nt, DefaultOptions())
	if rep.Rows != 7 || rep.Dropped != 1 {
		t.Fatalf("rows=%d dropped=%d", rep.Rows, rep.Dropped)
	}
	// source columns plus the derived datetime column
	if len(rep.Cols) != len(crashColumns)+1 {
		t.Fatalf("cols = %d", len(rep.Cols))
	}
	kinds := map[string]string{}
	for _, c := range rep.Cols {
		kinds[c.Name] = c.Kind
	}
	want := map[string]string{
		"crash_date":          "datetime",
		"borough":             "categorical",
		normalize.ColLatitude: "numeric",
		normalize.ColInjured:  "numeric",
		normalize.ColDatetime: "datetime",
		normalize.ColFactor1:  "categorical",
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("kind[%s] = %q, want %q", name, kinds[name], kind)
		}
	}

	lat := columnByName(t, rep, normalize.ColLatitude)
	if lat.NonNull != 6 || lat.Missing != 1 {
		t.Fatalf("latitude non-null=%d missing=%d", lat.NonNull, lat.Missing)
	}
	if !almostEqual(lat.Min, 40.70, 1e-9) || !almostEqual(lat.Max, 40.80, 1e-9) {
		t.Fatalf("latitude range %v..%v", lat.Min, lat.Max)
	}
	inj := columnByName(t, rep, normalize.ColInjured)
	if inj.NonNull != 7 || inj.Max != 3 {
		t.Fatalf("injured summary %+v", inj)
	}
	dt := columnByName(t, rep, normalize.ColDatetime)
	if dt.NonNull != 6 || dt.Missing != 1 {
		t.Fatalf("datetime non-null=%d missing=%d", dt.NonNull, dt.Missing)
	}
	if rep.DateRange == nil {
		t.Fatalf("expected date range")
	}
	if !rep.DateRange.Min.Equal(time.Date(2021, 1, 5, 8, 10, 0, 0, time.UTC)) ||
		!rep.DateRange.Max.Equal(time.Date(2021, 1, 7, 0, 15, 0, 0, time.UTC)) {
		t.Fatalf("date range %+v", rep.DateRange)
	}
	if got := rep.FactorSamples[normalize.ColFactor1]; len(got) != 5 || got[0] != "Driver Inattention" || got[1] != "Unspecified" {
		t.Fatalf("factor samples = %#v", got)
	}

	md := rep.Markdown()
	for _, frag := range []string{
		"[DATASET SUMMARY]", "File: crashes.csv", "Rows: 7",
		"Date range: 2021-01-05 08:10:00 to 2021-01-07 00:15:00",
		"- latitude: numeric (non-null 6, missing 14.3%)",
		"[FACTOR SAMPLES]", "[NOTES]", "dropped 1 rows without latitude/longitude",
	} {
		if !strings.Contains(md, frag) {
			t.Fatalf("markdown missing %q:\n%s", frag, md)
		}
	}
}

func TestProfileUsesTableNumberFormat(t *testing.T) {
	raw := &dataset.Table{Name: "speeds.csv", Columns: []string{"Speed"}}
	for _, v := range []string{"1,5", "2,25", "3,75"} {
		raw.Rows = append(raw.Rows, []dataset.Cell{dataset.FromText(v)})
	}
	nt := normalize.Normalize(raw, normalize.Options{Numbers: normalize.NumberFormat{DecimalSeparator: ','}})

	speed := columnByName(t, Profile(nt, DefaultOptions()), "speed")
	if speed.Kind != "numeric" {
		t.Fatalf("speed kind = %q, want numeric", speed.Kind)
	}
	if !almostEqual(speed.Min, 1.5, 1e-9) || !almostEqual(speed.Max, 3.75, 1e-9) || !almostEqual(speed.Mean, 2.5, 1e-9) {
		t.Fatalf("speed stats min=%v max=%v mean=%v", speed.Min, speed.Max, speed.Mean)
	}

	opt := DefaultOptions()
	opt.Numbers = normalize.NumberFormat{DecimalSeparator: '.'}
	if got := columnByName(t, Profile(nt, opt), "speed").Kind; got == "numeric" {
		t.Fatalf("explicit dot separator still parsed comma decimals")
	}
}

func TestFactorLabels(t *testing.T) {
	cases := []struct {
		in   dataset.Cell
		want string
	}{
		{dataset.Null, LabelUnknown},
		{dataset.Str(""), LabelUnspecified},
		{dataset.Str("  "), LabelUnspecified},
		{dataset.Str("Unsafe Speed"), "Unsafe Speed"},
	}
	for _, tc := range cases {
		if got := FactorLabel(tc.in); got != tc.want {
			t.Errorf("FactorLabel(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
	for _, s := range []string{"unknown", "UNSPECIFIED", "Unknown"} {
		if !IsPlaceholder(s) {
			t.Errorf("IsPlaceholder(%q) = false", s)
		}
	}
}

func TestRankFactorsExcludesPlaceholders(t *testing.T) {
	nt := crashTable(t)
	got := RankFactors(nt, normalize.ColFactor1, 15)
	want := []CategoryCount{
		{Value: "Driver Inattention", Count: 2},
		{Value: "Following Too Closely", Count: 1},
		{Value: "Unsafe Speed", Count: 1},
	}
	if !equalCounts(got, want) {
		t.Fatalf("ranking = %#v, want %#v", got, want)
	}
	// Vehicle 2 is dominated by placeholders.
	top := TopFactors(nt, normalize.ColFactor2, 5)
	if top[0].Value != LabelUnspecified || top[0].Count != 3 || top[1].Value != LabelUnknown {
		t.Fatalf("top vehicle 2 = %#v", top)
	}
}

func TestCSVEmptyFactorIsUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crashes.csv")
	data := "CONTRIBUTING FACTOR VEHICLE 1\nUnsafe Speed\n\"\"\nUnsafe Speed\n\" \"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	raw, err := dataset.Load(context.Background(), path, dataset.Options{})
	if err != nil {
		t.Fatal(err)
	}
	nt := normalize.Normalize(raw, normalize.Options{})

	top := TopFactors(nt, normalize.ColFactor1, 5)
	want := []CategoryCount{
		{Value: "Unsafe Speed", Count: 2},
		{Value: LabelUnknown, Count: 1},
		{Value: LabelUnspecified, Count: 1},
	}
	if !equalCounts(top, want) {
		t.Fatalf("top = %#v, want %#v", top, want)
	}
	if got := RankFactors(nt, normalize.ColFactor1, 15); !equalCounts(got, want[:1]) {
		t.Fatalf("ranking = %#v", got)
	}
}

func TestRankFactorsAllPlaceholders(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"contributing factor vehicle 1"},
		Rows:    [][]dataset.Cell{{dataset.Str("")}, {dataset.Null}, {dataset.Str("unspecified")}},
	}
	nt := normalize.Normalize(raw, normalize.Options{})
	if got := RankFactors(nt, normalize.ColFactor1, 15); len(got) != 0 {
		t.Fatalf("expected empty ranking, got %#v", got)
	}
}

func TestTemporalCounts(t *testing.T) {
	nt := crashTable(t)
	days := DailyCounts(nt)
	if len(days) != 3 {
		t.Fatalf("days = %#v", days)
	}
	wantCounts := []int{3, 2, 1}
	for i, d := range days {
		if d.Count != wantCounts[i] {
			t.Fatalf("day %d = %+v", i, d)
		}
		if i > 0 && !days[i-1].Day.Before(d.Day) {
			t.Fatalf("days out of order: %#v", days)
		}
	}
	hours := HourlyCounts(nt)
	if hours[14] != 3 || hours[8] != 1 || hours[0] != 1 || hours[23] != 1 || hours[10] != 0 {
		t.Fatalf("hourly = %v", hours)
	}
	total := 0
	for _, n := range hours {
		total += n
	}
	if total != 6 {
		t.Fatalf("hourly total = %d", total)
	}
}

func TestInjuryPoints(t *testing.T) {
	nt := crashTable(t)
	if got := MaxInjuries(nt); got != 3 {
		t.Fatalf("max injuries = %d", got)
	}
	// the 5-injury row was dropped and the "abc" row has no coordinates
	if got := InjuryPoints(nt, 1); len(got) != 3 {
		t.Fatalf("points >= 1: %#v", got)
	}
	if got := InjuryPoints(nt, 0); len(got) != 6 {
		t.Fatalf("points >= 0: %d", len(got))
	}
	if got := InjuryPoints(nt, 4); len(got) != 0 {
		t.Fatalf("points >= 4: %#v", got)
	}
}

func TestFactorByHour(t *testing.T) {
	nt := crashTable(t)
	series := FactorByHour(nt, normalize.ColFactor1, 3)
	if len(series) != 3 {
		t.Fatalf("series = %#v", series)
	}
	labels := []string{series[0].Label, series[1].Label, series[2].Label}
	want := []string{"Driver Inattention", "Following Too Closely", LabelUnknown}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
	if series[0].Counts[14] != 2 {
		t.Fatalf("driver inattention at 14h = %d", series[0].Counts[14])
	}
	if series[1].Counts[14] != 1 || sum(series[1].Counts) != 1 {
		t.Fatalf("following too closely = %v", series[1].Counts)
	}
	if series[2].Counts[23] != 1 || sum(series[2].Counts) != 1 {
		t.Fatalf("unknown = %v", series[2].Counts)
	}
}

func TestDensity(t *testing.T) {
	if Density(nil, 16, 2) != nil {
		t.Fatalf("expected nil grid for no points")
	}
	pts := []Point{{Lat: 40.7, Lon: -73.9}, {Lat: 40.7, Lon: -73.9}, {Lat: 40.8, Lon: -73.8}}
	g := Density(pts, 32, 2)
	if g.Width != 32 || g.Height != 32 || len(g.Values) != 32*32 || g.Points != 3 {
		t.Fatalf("grid shape %+v", g)
	}
	// two stacked points at the south-west corner dominate
	if !almostEqual(g.At(0, 31), g.Max, 1e-9) {
		t.Fatalf("max not at south-west corner: at=%v max=%v", g.At(0, 31), g.Max)
	}
	if !almostEqual(g.At(31, 0), 1, 1e-9) {
		t.Fatalf("north-east corner = %v", g.At(31, 0))
	}
	single := Density([]Point{{Lat: 1, Lon: 2}}, 8, 1)
	if single.Bounds.MaxLat <= single.Bounds.MinLat || single.Max <= 0 {
		t.Fatalf("degenerate bounds not padded: %+v", single.Bounds)
	}
	b, _ := PointBounds(pts)
	if lat, lon := b.Center(); !almostEqual(lat, 40.75, 1e-9) || !almostEqual(lon, -73.85, 1e-9) {
		t.Fatalf("center = %v,%v", lat, lon)
	}
}

func columnByName(t *testing.T, rep *Report, name string) ColumnSummary {
	t.Helper()
	for _, c := range rep.Cols {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("column %q not found", name)
	return ColumnSummary{}
}

func equalCounts(a, b []CategoryCount) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sum(c [24]int) int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
