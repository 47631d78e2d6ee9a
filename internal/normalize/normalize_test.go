package normalize

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/KaramelBytes/crashlens/internal/dataset"
)

func row(vals ...string) []dataset.Cell {
	out := make([]dataset.Cell, len(vals))
	for i, v := range vals {
		out[i] = dataset.FromText(v)
	}
	return out
}

func TestNormalizeCrashScenario(t *testing.T) {
	raw := &dataset.Table{
		Name:    "crashes.csv",
		Columns: []string{"CRASH DATE", "CRASH TIME", "LATITUDE", "LONGITUDE", "NUMBER OF PERSONS INJURED", "CONTRIBUTING FACTOR VEHICLE 1"},
		Rows:    [][]dataset.Cell{row("2021-01-05", "14:30", "40.7", "-73.9", "2", "Driver Inattention")},
	}
	nt := Normalize(raw, Options{})
	if len(nt.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(nt.Records))
	}
	r := nt.Records[0]
	want := time.Date(2021, 1, 5, 14, 30, 0, 0, time.UTC)
	if r.Datetime == nil || !r.Datetime.Equal(want) {
		t.Fatalf("datetime: got %v want %v", r.Datetime, want)
	}
	lat, lon, ok := r.Coords()
	if !ok || lat != 40.7 || lon != -73.9 {
		t.Fatalf("coords: got %v,%v ok=%v", lat, lon, ok)
	}
	if r.InjuredPersons != 2 {
		t.Fatalf("injured: got %v", r.InjuredPersons)
	}
	if got := r.Factor(ColFactor1); got != dataset.Str("Driver Inattention") {
		t.Fatalf("factor 1: got %+v", got)
	}

	wantSchema := Schema{
		OriginalColumns: raw.Columns,
		Columns:         []string{"crash_date", "crash_time", ColLatitude, ColLongitude, ColInjured, ColFactor1},
		DateSource:      "crash_date",
		TimeSource:      "crash_time",
		HasDatetime:     true,
		LatitudeSource:  "latitude",
		LongitudeSource: "longitude",
		InjuredSource:   "number_of_persons_injured",
		FactorSources:   [2]string{"contributing_factor_vehicle_1", ""},
	}
	if diff := cmp.Diff(wantSchema, nt.Schema); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
	if nt.Schema.Has(ColFactor2) {
		t.Fatalf("vehicle 2 factor should be absent")
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	names := []string{
		"  CRASH DATE ", "Crash\tTime", "LATITUDE (deg)", "number-of-persons-injured",
		"Contributing Factor Vehicle 1", "Unnamed: 0", "Ünfall Ort", "a__b", "", "%%%",
	}
	once := CanonicalizeAll(names)
	twice := CanonicalizeAll(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("canonicalize not idempotent (-once +twice):\n%s", diff)
	}
	if once[0] != "crash_date" || once[1] != "crash_time" || once[2] != "latitude_deg" {
		t.Fatalf("unexpected canonical names: %v", once[:3])
	}
	if once[5] != "unnamed_0" {
		t.Fatalf("unnamed: got %q", once[5])
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	cols := []string{"crash_date", "report_date", "crash_time", "latitude", "lat2", "longitude", "persons_injured", "injured_persons"}
	d := Detect(cols)
	checks := map[Field]int{
		FieldDate:      0,
		FieldTime:      2,
		FieldLatitude:  3,
		FieldLongitude: 5,
		FieldInjured:   6,
	}
	for f, want := range checks {
		if got := d.Source(f); got != want {
			t.Errorf("%s: got %d want %d", f, got, want)
		}
	}
}

func TestDetectInjuryFallback(t *testing.T) {
	d := Detect([]string{"cyclists_injured", "pedestrians_injured", "number_of_persons_injured"})
	if got := d.Source(FieldInjured); got != 2 {
		t.Fatalf("preferred injured+person column: got %d", got)
	}
	d = Detect([]string{"cyclists_injured", "pedestrians_injured"})
	if got := d.Source(FieldInjured); got != 0 {
		t.Fatalf("fallback should take the first injured column, got %d", got)
	}
}

// The factor mapping keeps the later source when two map to the same vehicle.
func TestFactorMappingLastMatchWins(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"Contributing Factor Vehicle 1", "Vehicle 1 Contributing Factor", "contributing_factor_vehicle_1_code"},
		Rows:    [][]dataset.Cell{row("a", "b", "c")},
	}
	nt := Normalize(raw, Options{})
	if got := nt.Schema.FactorSources[0]; got != "contributing_factor_vehicle_1_code" {
		t.Fatalf("expected last source to win, got %q", got)
	}
	if got := nt.Records[0].Factors[0].Text; got != "c" {
		t.Fatalf("factor value: got %q", got)
	}
}

func TestFactorIndicesAboveTwoDropped(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{
			"CONTRIBUTING FACTOR VEHICLE 1", "CONTRIBUTING FACTOR VEHICLE 2", "CONTRIBUTING FACTOR VEHICLE 3",
			"CONTRIBUTING FACTOR VEHICLE 4", "CONTRIBUTING FACTOR VEHICLE 5",
		},
		Rows: [][]dataset.Cell{row("a", "b", "c", "d", "e")},
	}
	nt := Normalize(raw, Options{})
	if diff := cmp.Diff([]string{ColFactor1, ColFactor2}, nt.Schema.Factors()); diff != "" {
		t.Fatalf("factor columns (-want +got):\n%s", diff)
	}
	for _, src := range nt.Schema.FactorSources {
		if strings.Contains(src, "vehicle_3") || strings.Contains(src, "vehicle_4") || strings.Contains(src, "vehicle_5") {
			t.Fatalf("vehicle 3-5 column mapped: %q", src)
		}
	}
	if nt.Records[0].Factors != [2]dataset.Cell{dataset.Str("a"), dataset.Str("b")} {
		t.Fatalf("unexpected factors: %+v", nt.Records[0].Factors)
	}
}

func TestCoordinateDropAndCoercion(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"crash_date", "latitude", "longitude", "injured"},
		Rows: [][]dataset.Cell{
			row("2021-01-05", "40.7", "-73.9", "1"),
			row("2021-01-06", "", "-73.9", "1"),  // null latitude: dropped
			row("2021-01-07", "abc", "-73.9", ""), // unparsable: kept without coordinates
			row("2021-01-08", "NaN", "-73.9", "x"), // NA token: dropped
			row("2021-01-09", "inf", "-73.9", "3"),
		},
	}
	nt := Normalize(raw, Options{})
	if nt.RawRows != 5 || nt.Dropped != 2 || len(nt.Records) != 3 {
		t.Fatalf("raw=%d dropped=%d records=%d", nt.RawRows, nt.Dropped, len(nt.Records))
	}
	for i, r := range nt.Records {
		if r.Latitude != nil && (math.IsNaN(*r.Latitude) || math.IsInf(*r.Latitude, 0)) {
			t.Fatalf("record %d has non-finite latitude", i)
		}
	}
	if _, _, ok := nt.Records[1].Coords(); ok {
		t.Fatalf("unparsable latitude should yield no coordinates")
	}
	if nt.Records[1].Datetime == nil {
		t.Fatalf("row without coordinates should keep its datetime")
	}
	if nt.Records[1].InjuredPersons != 0 {
		t.Fatalf("null injuries should coerce to 0, got %v", nt.Records[1].InjuredPersons)
	}
}

func TestInjuryNeverNull(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"persons injured"},
		Rows:    [][]dataset.Cell{row(""), row("NA"), row("two"), row("4")},
	}
	nt := Normalize(raw, Options{})
	got := make([]float64, 0, len(nt.Records))
	for _, r := range nt.Records {
		got = append(got, r.InjuredPersons)
	}
	if diff := cmp.Diff([]float64{0, 0, 0, 4}, got); diff != "" {
		t.Fatalf("injuries (-want +got):\n%s", diff)
	}
}

func TestDatetimeVariants(t *testing.T) {
	cases := []struct {
		date, clock string
		want        time.Time
		ok          bool
	}{
		{"2021-01-05", "14:30", time.Date(2021, 1, 5, 14, 30, 0, 0, time.UTC), true},
		{"01/05/2021", "9:05", time.Date(2021, 1, 5, 9, 5, 0, 0, time.UTC), true},
		{"2021-01-05T00:00:00.000", "23:59", time.Date(2021, 1, 5, 23, 59, 0, 0, time.UTC), true},
		{"1/5/2021", "2:15 PM", time.Date(2021, 1, 5, 14, 15, 0, 0, time.UTC), true},
		{"yesterday", "14:30", time.Time{}, false},
		{"2021-01-05", "", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseDateTime(tc.date, tc.clock)
		if ok != tc.ok || (ok && !got.Equal(tc.want)) {
			t.Errorf("ParseDateTime(%q, %q) = %v, %v", tc.date, tc.clock, got, ok)
		}
	}
}

func TestDateOnlyAndSharedColumn(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"Crash DateTime", "lat", "lon"},
		Rows:    [][]dataset.Cell{row("2021-03-04 08:15:00", "1", "2")},
	}
	nt := Normalize(raw, Options{})
	if nt.Schema.TimeSource != "" || nt.Schema.DateSource != "crash_datetime" {
		t.Fatalf("unexpected sources: %+v", nt.Schema)
	}
	r := nt.Records[0]
	if h, ok := r.Hour(); !ok || h != 8 {
		t.Fatalf("hour: got %d ok=%v", h, ok)
	}
}

func TestNoDatetimeNoCoords(t *testing.T) {
	raw := &dataset.Table{
		Columns: []string{"borough", "Contributing Factor Vehicle 2"},
		Rows:    [][]dataset.Cell{row("BRONX", "")},
	}
	nt := Normalize(raw, Options{})
	if got := nt.Schema.Missing(ColDatetime, ColLatitude, ColLongitude); len(got) != 3 {
		t.Fatalf("missing: %v", got)
	}
	if len(nt.Records) != 1 || nt.Records[0].Datetime != nil {
		t.Fatalf("records: %+v", nt.Records)
	}
}

func TestParseNumberSeparators(t *testing.T) {
	cases := []struct {
		in   string
		nf   NumberFormat
		want float64
		ok   bool
	}{
		{"40.7", NumberFormat{}, 40.7, true},
		{" -73.9 ", NumberFormat{}, -73.9, true},
		{"1,234.5", NumberFormat{ThousandsSeparator: ','}, 1234.5, true},
		{"40,7", NumberFormat{DecimalSeparator: ','}, 40.7, true},
		{"1.234,5", NumberFormat{DecimalSeparator: ',', ThousandsSeparator: '.'}, 1234.5, true},
		{"40.7", NumberFormat{DecimalSeparator: ','}, 0, false},
		{"NaN", NumberFormat{}, 0, false},
		{"abc", NumberFormat{}, 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.in, tc.nf)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
