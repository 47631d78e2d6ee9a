package server

import (
	"html/template"
	"strings"

	"github.com/KaramelBytes/crashlens/internal/dashboard"
	"github.com/KaramelBytes/crashlens/internal/utils"
)

var templateFuncs = template.FuncMap{
	"ok":       func(p dashboard.Panel) bool { return p.OK() },
	"truncate": utils.Truncate,
	"join":     strings.Join,
	"add":      func(a, b int) int { return a + b },
	"pct":      percent,
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
