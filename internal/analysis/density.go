package analysis

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// PointBounds returns the bounding box of pts; ok is false when pts is empty.
func PointBounds(pts []Point) (Bounds, bool) {
	if len(pts) == 0 {
		return Bounds{}, false
	}
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.Lon, p.Lat)
	}
	mp := geom.NewMultiPointFlat(geom.XY, flat)
	gb := mp.Bounds()
	return Bounds{MinLon: gb.Min(0), MaxLon: gb.Max(0), MinLat: gb.Min(1), MaxLat: gb.Max(1)}, true
}

// minSpan keeps a single location from collapsing the grid to zero width.
const minSpan = 1e-3

// Grid is a row-major density surface; row 0 is the northern edge.
type Grid struct {
	Bounds Bounds    `json:"bounds"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"-"`
	Max    float64   `json:"max"`
	Points int       `json:"points"`
}

// At returns the density of cell (x, y).
func (g *Grid) At(x, y int) float64 { return g.Values[y*g.Width+x] }

// Density estimates a Gaussian kernel density over pts on a size×size grid.
// radius is the kernel standard deviation in cells. It returns nil for an
// empty input.
func Density(pts []Point, size int, radius float64) *Grid {
	b, ok := PointBounds(pts)
	if !ok {
		return nil
	}
	if size < 2 {
		size = 2
	}
	if radius <= 0 {
		radius = 1
	}
	if b.MaxLat-b.MinLat < minSpan {
		b.MinLat -= minSpan / 2
		b.MaxLat += minSpan / 2
	}
	if b.MaxLon-b.MinLon < minSpan {
		b.MinLon -= minSpan / 2
		b.MaxLon += minSpan / 2
	}
	g := &Grid{Bounds: b, Width: size, Height: size, Values: make([]float64, size*size), Points: len(pts)}
	reach := int(math.Ceil(3 * radius))
	denom := 2 * radius * radius
	kernel := make([]float64, reach+1)
	for d := range kernel {
		kernel[d] = math.Exp(-float64(d*d) / denom)
	}
	sx := float64(size-1) / (b.MaxLon - b.MinLon)
	sy := float64(size-1) / (b.MaxLat - b.MinLat)
	for _, p := range pts {
		cx := int(math.Round((p.Lon - b.MinLon) * sx))
		cy := int(math.Round((b.MaxLat - p.Lat) * sy))
		for dy := -reach; dy <= reach; dy++ {
			y := cy + dy
			if y < 0 || y >= size {
				continue
			}
			ky := kernel[abs(dy)]
			for dx := -reach; dx <= reach; dx++ {
				x := cx + dx
				if x < 0 || x >= size {
					continue
				}
				g.Values[y*size+x] += ky * kernel[abs(dx)]
			}
		}
	}
	for _, v := range g.Values {
		if v > g.Max {
			g.Max = v
		}
	}
	return g
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
