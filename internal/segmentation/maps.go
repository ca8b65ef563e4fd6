package segmentation

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Point is a pixel coordinate; (0,0) is the top-left pixel.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bounds is a bounding box with inclusive (X1,Y1) and exclusive (X2,Y2).
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns X2-X1.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns Y2-Y1.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// EdgeMap marks the boundary pixels found by the EdgeDetector.
// Its dimensions always equal those of the image it was computed from.
type EdgeMap struct {
	width  int
	height int
	edges  []bool
}

// NewEdgeMap builds an EdgeMap from row-major flags. The slice is copied.
func NewEdgeMap(width, height int, edges []bool) (*EdgeMap, error) {
	if width < 0 || height < 0 || len(edges) != width*height {
		return nil, fmt.Errorf("edge flags (%d) do not match %dx%d", len(edges), width, height)
	}
	e := make([]bool, len(edges))
	copy(e, edges)
	return &EdgeMap{width: width, height: height, edges: e}, nil
}

// Width returns the number of columns.
func (m *EdgeMap) Width() int { return m.width }

// Height returns the number of rows.
func (m *EdgeMap) Height() int { return m.height }

// At reports whether (x, y) is an edge pixel.
func (m *EdgeMap) At(x, y int) bool { return m.edges[y*m.width+x] }

// Count returns the number of edge pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, e := range m.edges {
		if e {
			n++
		}
	}
	return n
}

// Image renders edges white on black.
func (m *EdgeMap) Image() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.width, m.height))
	for i, e := range m.edges {
		if e {
			out.Pix[(i/m.width)*out.Stride+i%m.width] = 255
		}
	}
	return out
}

// LabelMap assigns every pixel a region label; 0 is background (edge or
// ridge pixels). Labels run from 1 to Count() in order of first appearance in
// a raster scan, so equal segmentations always produce equal maps.
type LabelMap struct {
	width  int
	height int
	labels []int32
	count  int
}

// Width returns the number of columns.
func (m *LabelMap) Width() int { return m.width }

// Height returns the number of rows.
func (m *LabelMap) Height() int { return m.height }

// At returns the label at (x, y).
func (m *LabelMap) At(x, y int) int { return int(m.labels[y*m.width+x]) }

// Count returns the number of regions.
func (m *LabelMap) Count() int { return m.count }

// Labels returns a copy of the row-major labels.
func (m *LabelMap) Labels() []int32 {
	out := make([]int32, len(m.labels))
	copy(out, m.labels)
	return out
}

// Areas returns the pixel count of each region indexed by label; index 0
// holds the background count.
func (m *LabelMap) Areas() []int {
	areas := make([]int, m.count+1)
	for _, l := range m.labels {
		areas[l]++
	}
	return areas
}

// Image renders each region in its own colour on black. Hues advance by
// the golden angle so neighbouring labels stay distinguishable.
func (m *LabelMap) Image() *image.RGBA {
	palette := make([]color.RGBA, m.count+1)
	for l := 1; l <= m.count; l++ {
		h := math.Mod(float64(l)*137.508, 360)
		r, g, b := colorful.Hsv(h, 0.65, 0.95).RGB255()
		palette[l] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	palette[0] = color.RGBA{A: 255}

	out := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	for i, l := range m.labels {
		out.SetRGBA(i%m.width, i/m.width, palette[l])
	}
	return out
}
