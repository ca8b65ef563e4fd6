package segmentation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

func TestTracePerimeter(t *testing.T) {
	tests := []struct {
		name   string
		labels *LabelMap
		start  Point
		want   float64
	}{
		{
			name:   "single pixel",
			labels: labelGrid(t, []int32{0, 0, 0}, []int32{0, 1, 0}, []int32{0, 0, 0}),
			start:  Point{1, 1},
			want:   0,
		},
		{
			name:   "2x2 square",
			labels: labelGrid(t, []int32{1, 1}, []int32{1, 1}),
			start:  Point{0, 0},
			want:   4,
		},
		{
			name:   "L shape",
			labels: labelGrid(t, []int32{1, 0}, []int32{1, 1}),
			start:  Point{0, 0},
			want:   2 + math.Sqrt2,
		},
		{
			name:   "plus",
			labels: labelGrid(t, []int32{0, 1, 0}, []int32{1, 1, 1}, []int32{0, 1, 0}),
			start:  Point{1, 0},
			want:   4 * math.Sqrt2,
		},
		{
			name:   "horizontal line",
			labels: labelGrid(t, []int32{1, 1, 1}),
			start:  Point{0, 0},
			want:   4,
		},
		{
			name:   "ignores other labels",
			labels: labelGrid(t, []int32{2, 1, 1}, []int32{2, 1, 1}),
			start:  Point{1, 0},
			want:   4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tracePerimeter(tt.labels.labels, tt.labels.width, tt.labels.height, tt.labels.labels[tt.start.Y*tt.labels.width+tt.start.X], tt.start)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCircularity(t *testing.T) {
	assert.Equal(t, 1.0, circularity(1, 0))
	assert.Equal(t, 1.0, circularity(100, 10), "clamped")
	assert.InDelta(t, math.Pi/4, circularity(4, 4*math.Sqrt(4)), 1e-9)
	assert.InDelta(t, 0.977, circularity(29, 8+8*math.Sqrt2), 1e-3)
}

func TestFilter_UniformImageAcceptsOneDroplet(t *testing.T) {
	img := imaging.NewUniform(10, 10, 100)
	labels := segment(t, img, detect(t, img, DefaultEdgeOptions()), DefaultGrowOptions())
	droplets := filter(t, labels, img, FilterOptions{MinArea: 1, MaxArea: 200, MinCircularity: 0})

	require.Len(t, droplets, 1)
	d := droplets[0]
	assert.Equal(t, 100, d.Area)
	assert.Len(t, d.Pixels, 100)
	assert.Equal(t, 100.0, d.MeanIntensity)
	assert.Equal(t, 10000.0, d.TotalIntensity)
	assert.Equal(t, Bounds{0, 0, 10, 10}, d.Bounds)
	assert.InDelta(t, 4.5, d.Centroid.X, 1e-9)
	assert.InDelta(t, 4.5, d.Centroid.Y, 1e-9)
	assert.InDelta(t, 36, d.Perimeter, 1e-9)
	assert.True(t, d.TouchesBorder)
}

func TestFilter_TwoBlobScenario(t *testing.T) {
	img := twoBlobs(t)
	labels := segment(t, img, detect(t, img, sharpEdges()), DefaultGrowOptions())

	opts := FilterOptions{MinArea: 10, MaxArea: 200, MinCircularity: 0.8, IntensityFloor: 100}
	droplets := filter(t, labels, img, opts)

	require.Len(t, droplets, 2)
	for i, d := range droplets {
		assert.InDelta(t, math.Pi*9, float64(d.Area), 2.0, "droplet %d area", i)
		assert.GreaterOrEqual(t, d.Circularity, 0.8)
		assert.InDelta(t, 8+8*math.Sqrt2, d.Perimeter, 1e-9)
		assert.Equal(t, bright, d.MeanIntensity)
		assert.False(t, d.TouchesBorder)
	}
	assert.InDelta(t, 6, droplets[0].Centroid.X, 1e-9)
	assert.InDelta(t, 14, droplets[1].Centroid.X, 1e-9)
	assert.InDelta(t, 10, droplets[0].Centroid.Y, 1e-9)
	assert.Equal(t, Bounds{3, 7, 10, 14}, droplets[0].Bounds)
	assert.Less(t, droplets[0].ID, droplets[1].ID)
}

func TestFilter_MaxAspectRatio(t *testing.T) {
	labels := labelGrid(t,
		[]int32{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		[]int32{0, 1, 1, 1, 1, 1, 0, 2, 2, 2, 0},
		[]int32{0, 0, 0, 0, 0, 0, 0, 2, 2, 2, 0},
		[]int32{0, 0, 0, 0, 0, 0, 0, 2, 2, 2, 0},
		[]int32{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	)
	img := imaging.NewUniform(11, 5, bright)
	opts := FilterOptions{MinArea: 1, MaxArea: 100, MinCircularity: 0.8}

	// A one-pixel-wide fragment scores as round on its centre-line perimeter.
	droplets := filter(t, labels, img, opts)
	require.Len(t, droplets, 2)
	assert.InDelta(t, 4*math.Pi*5/64, droplets[0].Circularity, 1e-9)

	opts.MaxAspectRatio = 2
	droplets = filter(t, labels, img, opts)
	require.Len(t, droplets, 1)
	assert.Equal(t, 9, droplets[0].Area)

	blobs := twoBlobs(t)
	blobLabels := segment(t, blobs, detect(t, blobs, sharpEdges()), DefaultGrowOptions())
	kept := filter(t, blobLabels, blobs, FilterOptions{MinArea: 10, MaxArea: 200, MinCircularity: 0.8, IntensityFloor: 100, MaxAspectRatio: 1.5})
	assert.Len(t, kept, 2)
}

func TestFilter_AllDarkImageAcceptsNothing(t *testing.T) {
	img := imaging.NewUniform(20, 20, 10)
	labels := segment(t, img, detect(t, img, DefaultEdgeOptions()), DefaultGrowOptions())
	require.Equal(t, 1, labels.Count())

	droplets := filter(t, labels, img, FilterOptions{MinArea: 1, MaxArea: 1000, MinCircularity: 0, IntensityFloor: 50})
	assert.Empty(t, droplets)
	assert.NotNil(t, droplets)
}

func TestFilter_AcceptanceBounds(t *testing.T) {
	img := discImage(t, 60, 40, 5, Point{10, 10}, Point{30, 12})
	// An elongated bright bar.
	bar := imaging.FromFunc(60, 40, func(x, y int) float64 {
		if y >= 30 && y <= 31 && x >= 5 && x <= 50 {
			return bright
		}
		return img.At(x, y)
	})
	labels := segment(t, bar, detect(t, bar, sharpEdges()), DefaultGrowOptions())

	tests := []FilterOptions{
		{MinArea: 1, MaxArea: 100000, MinCircularity: 0},
		{MinArea: 50, MaxArea: 100, MinCircularity: 0},
		{MinArea: 1, MaxArea: 100000, MinCircularity: 0.8},
		{MinArea: 1, MaxArea: 100000, MinCircularity: 0.3, IntensityFloor: 150},
		{MinArea: 1, MaxArea: 100000, MinCircularity: 0, ExcludeBorder: true},
	}
	for _, opts := range tests {
		droplets := filter(t, labels, bar, opts)
		for _, d := range droplets {
			assert.GreaterOrEqual(t, d.Area, opts.MinArea)
			assert.LessOrEqual(t, d.Area, opts.MaxArea)
			assert.GreaterOrEqual(t, d.Circularity, opts.MinCircularity)
			assert.GreaterOrEqual(t, d.MeanIntensity, opts.IntensityFloor)
			if opts.ExcludeBorder {
				assert.False(t, d.TouchesBorder)
			}
		}
	}

	// The bar passes on size and intensity but not on shape.
	droplets := filter(t, labels, bar, FilterOptions{MinArea: 1, MaxArea: 100000, MinCircularity: 0.5, IntensityFloor: 150})
	require.Len(t, droplets, 2)
	for _, d := range droplets {
		assert.Equal(t, 81, d.Area)
	}
}

func TestFilter_Deterministic(t *testing.T) {
	img := discImage(t, 40, 30, 4, Point{8, 8}, Point{22, 9}, Point{30, 20})
	labels := segment(t, img, detect(t, img, DefaultEdgeOptions()), DefaultGrowOptions())
	opts := DefaultFilterOptions()

	a := filter(t, labels, img, opts)
	b := filter(t, labels, img, opts)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("filter output differs (-first +second):\n%s", diff)
	}
}

func TestFilter_DimensionMismatch(t *testing.T) {
	labels := labelGrid(t, []int32{1, 1}, []int32{1, 1})
	f, err := NewFilter(DefaultFilterOptions())
	require.NoError(t, err)

	_, err = f.Apply(labels, imaging.NewUniform(3, 2, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSegmentation))

	_, err = f.Apply(nil, imaging.NewUniform(2, 2, 1))
	assert.True(t, errors.Is(err, ErrSegmentation))
}
