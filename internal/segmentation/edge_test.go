package segmentation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

func TestDetect_DimensionsMatchInput(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"single pixel", 1, 1},
		{"row", 7, 1},
		{"column", 1, 9},
		{"rectangle", 13, 5},
		{"square", 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := imaging.FromFunc(tt.w, tt.h, func(x, y int) float64 { return float64((x * 37) ^ (y * 11) % 256) })
			for _, p := range []Polarity{PolarityBright, PolarityDark, PolarityAny} {
				opts := DefaultEdgeOptions()
				opts.Polarity = p
				edges := detect(t, img, opts)
				assert.Equal(t, tt.w, edges.Width())
				assert.Equal(t, tt.h, edges.Height())
			}
		})
	}
}

func TestDetect_UniformImageHasNoEdges(t *testing.T) {
	img := imaging.NewUniform(10, 10, 128)
	for _, p := range []Polarity{PolarityBright, PolarityDark, PolarityAny} {
		opts := DefaultEdgeOptions()
		opts.Polarity = p
		assert.Zero(t, detect(t, img, opts).Count(), "polarity %s", p)
	}
}

func TestDetect_BrightPolarityKeepsDropletPixels(t *testing.T) {
	img := twoBlobs(t)
	edges := detect(t, img, sharpEdges())

	assert.Equal(t, 60, edges.Count())
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			if edges.At(x, y) {
				assert.Equal(t, dark, img.At(x, y), "edge at (%d,%d) lies on a droplet", x, y)
			}
		}
	}
}

func TestDetect_DarkPolarityMirrorsBright(t *testing.T) {
	img := twoBlobs(t)
	inverted := imaging.FromFunc(img.Width(), img.Height(), func(x, y int) float64 {
		return bright + dark - img.At(x, y)
	})

	brightOpts := sharpEdges()
	darkOpts := sharpEdges()
	darkOpts.Polarity = PolarityDark

	a := detect(t, img, brightOpts)
	b := detect(t, inverted, darkOpts)
	assert.Equal(t, a.Count(), b.Count())
	for y := 0; y < img.Height(); y++ {
		for x := 0; x < img.Width(); x++ {
			assert.Equal(t, a.At(x, y), b.At(x, y))
		}
	}
}

func TestDetect_AnyPolarityFindsStep(t *testing.T) {
	img := imaging.FromFunc(20, 10, func(x, y int) float64 {
		if x < 10 {
			return dark
		}
		return bright
	})
	opts := sharpEdges()
	opts.Polarity = PolarityAny
	edges := detect(t, img, opts)

	assert.Positive(t, edges.Count())
	for y := 0; y < 10; y++ {
		assert.False(t, edges.At(0, y))
		assert.False(t, edges.At(19, y))
	}
}

func TestDetect_HysteresisDropsWeakIsolatedSteps(t *testing.T) {
	// A faint step (magnitude ~4*30 = 120) sits between low and high.
	img := imaging.FromFunc(20, 10, func(x, y int) float64 {
		if x < 10 {
			return 100
		}
		return 130
	})
	opts := EdgeOptions{LowThreshold: 50, HighThreshold: 200, Polarity: PolarityAny}
	assert.Zero(t, detect(t, img, opts).Count())

	opts.HighThreshold = 100
	assert.Positive(t, detect(t, img, opts).Count())
}

func TestDetect_SmoothingRemovesIsolatedSpike(t *testing.T) {
	img := imaging.FromFunc(15, 15, func(x, y int) float64 {
		if x == 7 && y == 7 {
			return 60
		}
		return 40
	})
	opts := EdgeOptions{LowThreshold: 20, HighThreshold: 30, SmoothingRadius: 2, Polarity: PolarityAny}
	assert.Zero(t, detect(t, img, opts).Count())

	opts.SmoothingRadius = 0
	assert.Positive(t, detect(t, img, opts).Count())
}

func TestDetect_InvalidImage(t *testing.T) {
	nan := imaging.FromFunc(4, 4, func(x, y int) float64 {
		if x == 2 && y == 1 {
			return math.NaN()
		}
		return 1
	})
	inf := imaging.FromFunc(4, 4, func(x, y int) float64 {
		if x == 0 && y == 3 {
			return math.Inf(1)
		}
		return 1
	})
	tests := []struct {
		name string
		img  *imaging.Image
	}{
		{"nil", nil},
		{"zero width", imaging.NewUniform(0, 5, 1)},
		{"zero height", imaging.NewUniform(5, 0, 1)},
		{"nan sample", nan},
		{"inf sample", inf},
	}

	d, err := NewEdgeDetector(DefaultEdgeOptions())
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges, err := d.Detect(tt.img)
			assert.Nil(t, edges)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidImage))
			var target *InvalidImageError
			assert.True(t, errors.As(err, &target))
		})
	}
}

func TestDetect_DoesNotModifyInput(t *testing.T) {
	img := twoBlobs(t)
	before := img.Samples()
	opts := sharpEdges()
	opts.SmoothingRadius = 2
	detect(t, img, opts)
	assert.Equal(t, before, img.Samples())
}

func TestEdgeMap_Image(t *testing.T) {
	edges, err := NewEdgeMap(3, 2, []bool{true, false, false, false, false, true})
	require.NoError(t, err)
	g := edges.Image()
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(2, 1).Y)
	assert.Equal(t, 2, edges.Count())

	_, err = NewEdgeMap(3, 3, []bool{true})
	assert.Error(t, err)
}
