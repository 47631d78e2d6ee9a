package dashboard

import (
	"github.com/KaramelBytes/crashlens/internal/normalize"
)

// Controls is the user-adjustable state of the page.
type Controls struct {
	MinInjuries      int    `json:"min_injuries"`
	Hour             int    `json:"hour"`
	FactorColumn     string `json:"factor,omitempty"`
	TimeFactorColumn string `json:"time_factor,omitempty"`
	ShowSample       bool   `json:"sample"`
	ShowDebug        bool   `json:"debug"`
}

// DefaultControls returns the initial control state.
func DefaultControls() Controls {
	return Controls{MinInjuries: 1, Hour: 17}
}

// clamp fits the controls to the table: the injury threshold to
// [0, maxInjuries], the hour to [0, 23], and unknown factor columns to the
// first available one.
func (c Controls) clamp(s normalize.Schema, maxInjuries int) Controls {
	c.MinInjuries = clampInt(c.MinInjuries, 0, maxInjuries)
	c.Hour = clampInt(c.Hour, 0, 23)
	factors := s.Factors()
	c.FactorColumn = pickFactor(c.FactorColumn, factors)
	c.TimeFactorColumn = pickFactor(c.TimeFactorColumn, factors)
	return c
}

func pickFactor(want string, available []string) string {
	for _, f := range available {
		if f == want {
			return f
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
