package segmentation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

const (
	bright = 200.0
	dark   = 20.0
)

// discImage draws filled discs of radius r at the given centres, bright on a
// dark background.
func discImage(t *testing.T, w, h, r int, centres ...Point) *imaging.Image {
	t.Helper()
	return imaging.FromFunc(w, h, func(x, y int) float64 {
		for _, c := range centres {
			dx, dy := x-c.X, y-c.Y
			if dx*dx+dy*dy <= r*r {
				return bright
			}
		}
		return dark
	})
}

// twoBlobs is two radius-3 discs separated by one dark pixel column.
func twoBlobs(t *testing.T) *imaging.Image {
	t.Helper()
	return discImage(t, 20, 20, 3, Point{6, 10}, Point{14, 10})
}

// sharpEdges are edge options without smoothing for crisp synthetic steps.
func sharpEdges() EdgeOptions {
	return EdgeOptions{LowThreshold: 50, HighThreshold: 100, SmoothingRadius: 0, Polarity: PolarityBright}
}

func detect(t *testing.T, img *imaging.Image, opts EdgeOptions) *EdgeMap {
	t.Helper()
	d, err := NewEdgeDetector(opts)
	require.NoError(t, err)
	edges, err := d.Detect(img)
	require.NoError(t, err)
	return edges
}

func segment(t *testing.T, img *imaging.Image, edges *EdgeMap, opts GrowOptions) *LabelMap {
	t.Helper()
	e, err := NewEngine(opts)
	require.NoError(t, err)
	labels, err := e.Segment(img, edges)
	require.NoError(t, err)
	return labels
}

func filter(t *testing.T, labels *LabelMap, img *imaging.Image, opts FilterOptions) []Droplet {
	t.Helper()
	f, err := NewFilter(opts)
	require.NoError(t, err)
	droplets, err := f.Apply(labels, img)
	require.NoError(t, err)
	return droplets
}

// labelGrid builds a LabelMap directly from rows of labels.
func labelGrid(t *testing.T, rows ...[]int32) *LabelMap {
	t.Helper()
	h := len(rows)
	w := len(rows[0])
	labels := make([]int32, 0, w*h)
	var count int32
	for _, row := range rows {
		require.Len(t, row, w)
		for _, l := range row {
			labels = append(labels, l)
			count = max(count, l)
		}
	}
	return &LabelMap{width: w, height: h, labels: labels, count: int(count)}
}
