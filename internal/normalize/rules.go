package normalize

import (
	"fmt"
	"strings"
)

// Field is a derived field the normalizer can detect a source column for.
type Field string

const (
	FieldDate      Field = "date"
	FieldTime      Field = "time"
	FieldLatitude  Field = "latitude"
	FieldLongitude Field = "longitude"
	FieldInjured   Field = "injured_persons"
)

// Normalized column names.
const (
	ColDatetime  = "datetime"
	ColLatitude  = "latitude"
	ColLongitude = "longitude"
	ColInjured   = "injured_persons"
	ColFactor1   = "contributing_factor_vehicle_1"
	ColFactor2   = "contributing_factor_vehicle_2"
)

// FactorColumns lists the factor targets in vehicle order.
var FactorColumns = [2]string{ColFactor1, ColFactor2}

// Rule maps canonical column names matching Match to Target.
type Rule struct {
	Target Field
	Desc   string
	Match  func(name string) bool
}

func containsAll(subs ...string) func(string) bool {
	return func(name string) bool {
		for _, s := range subs {
			if !strings.Contains(name, s) {
				return false
			}
		}
		return true
	}
}

// Rules returns the detection rules in priority order:
//
//  1. date            name contains "date"
//  2. time            name contains "time"
//  3. latitude        name contains "lat"
//  4. longitude       name contains "lon"
//  5. injured_persons name contains "injured" and "person"
//  6. injured_persons name contains "injured"
//
// Each rule takes the first matching column in column order. A target
// already claimed by an earlier rule is skipped, so rule 6 only applies when
// rule 5 found nothing.
func Rules() []Rule {
	return []Rule{
		{Target: FieldDate, Desc: `contains "date"`, Match: containsAll("date")},
		{Target: FieldTime, Desc: `contains "time"`, Match: containsAll("time")},
		{Target: FieldLatitude, Desc: `contains "lat"`, Match: containsAll("lat")},
		{Target: FieldLongitude, Desc: `contains "lon"`, Match: containsAll("lon")},
		{Target: FieldInjured, Desc: `contains "injured" and "person"`, Match: containsAll("injured", "person")},
		{Target: FieldInjured, Desc: `contains "injured"`, Match: containsAll("injured")},
	}
}

// Detection holds the column index chosen for each field; -1 means absent.
type Detection struct {
	Sources map[Field]int
	// Factors holds the source index for vehicle 1 and 2 factor columns.
	Factors [2]int
}

// Source returns the column index for f, or -1.
func (d Detection) Source(f Field) int {
	if i, ok := d.Sources[f]; ok {
		return i
	}
	return -1
}

// Detect applies Rules and the factor mapping to canonical column names.
func Detect(columns []string) Detection {
	d := Detection{Sources: map[Field]int{}, Factors: [2]int{-1, -1}}
	for _, rule := range Rules() {
		if _, claimed := d.Sources[rule.Target]; claimed {
			continue
		}
		for i, name := range columns {
			if rule.Match(name) {
				d.Sources[rule.Target] = i
				break
			}
		}
	}
	d.Factors = detectFactors(columns)
	return d
}

// detectFactors finds vehicle 1 and 2 contributing-factor columns. Unlike
// Rules, a later column mapping to the same vehicle replaces the earlier one.
// Vehicles 3 to 5 are recognised and ignored.
func detectFactors(columns []string) [2]int {
	out := [2]int{-1, -1}
	for idx, name := range columns {
		if !strings.Contains(name, "contributing_factor") {
			continue
		}
		for v := 1; v <= 5; v++ {
			if !strings.Contains(name, fmt.Sprintf("vehicle_%d", v)) {
				continue
			}
			if v <= 2 {
				out[v-1] = idx
			}
			break
		}
	}
	return out
}
