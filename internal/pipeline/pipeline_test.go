package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/segmentation"
	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

// blobs draws radius-3 bright discs on a dark 20x20 background.
func blobs(t *testing.T, centres ...[2]int) *imaging.Image {
	t.Helper()
	return imaging.FromFunc(20, 20, func(x, y int) float64 {
		for _, c := range centres {
			dx, dy := x-c[0], y-c[1]
			if dx*dx+dy*dy <= 9 {
				return 200
			}
		}
		return 20
	})
}

func testOptions() Options {
	return Options{
		Edge:   segmentation.EdgeOptions{LowThreshold: 50, HighThreshold: 100, Polarity: segmentation.PolarityBright},
		Grow:   segmentation.GrowOptions{MinSeedGap: 2, Connectivity: segmentation.Connectivity4},
		Filter: segmentation.FilterOptions{MinArea: 10, MaxArea: 200, MinCircularity: 0.8, IntensityFloor: 100},
	}
}

func newAnalyzer(t *testing.T, opts Options) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(opts)
	require.NoError(t, err)
	return a
}

func TestNewAnalyzer_RejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"edge", func(o *Options) { o.Edge.LowThreshold = 500 }},
		{"grow", func(o *Options) { o.Grow.Connectivity = 6 }},
		{"filter", func(o *Options) { o.Filter.MinArea = 1000 }},
		{"measure", func(o *Options) { o.Measure.PixelSize = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			a, err := NewAnalyzer(opts)
			assert.Nil(t, a)
			assert.True(t, errors.Is(err, segmentation.ErrConfiguration))
		})
	}

	a := newAnalyzer(t, DefaultOptions())
	assert.Equal(t, segmentation.PolarityBright, a.Options().Edge.Polarity)
}

func TestAnalyze_TwoBlobs(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	res, err := a.Analyze("two.png", "day1", blobs(t, [2]int{6, 10}, [2]int{14, 10}))
	require.NoError(t, err)

	require.Len(t, res.Droplets, 2)
	require.Len(t, res.Metrics, 2)
	assert.Equal(t, 20, res.Edges.Width())
	assert.Equal(t, 3, res.Labels.Count())

	s := res.Summary
	assert.Equal(t, "two.png", s.ID)
	assert.Equal(t, "day1", s.Group)
	assert.Equal(t, 2, s.DropletCount)
	assert.Equal(t, 58, s.TotalArea)
	assert.InDelta(t, 58.0/400.0, s.AreaFraction, 1e-12)
	assert.Nil(t, s.StainPercent)

	mask := res.Mask()
	assert.True(t, mask(6, 10))
	assert.True(t, mask(14, 10))
	assert.False(t, mask(0, 0))
	assert.False(t, mask(10, 10))
}

func TestAnalyze_StainPercent(t *testing.T) {
	yellow := color.NRGBA{R: 230, G: 200, B: 40, A: 255}
	blue := color.NRGBA{R: 20, G: 40, B: 200, A: 255}
	src := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			dx, dy := x-10, y-10
			if dx*dx+dy*dy <= 9 {
				src.SetNRGBA(x, y, yellow)
			} else {
				src.SetNRGBA(x, y, blue)
			}
		}
	}
	stain := imaging.DefaultStainOptions()
	stain.DilateRadius = 0
	img, err := imaging.FromImage(src, imaging.ConvertOptions{Channel: imaging.ChannelStain, Stain: stain})
	require.NoError(t, err)

	res, err := newAnalyzer(t, testOptions()).Analyze("stained.png", "", img)
	require.NoError(t, err)
	require.NotNil(t, res.Summary.StainPercent)
	assert.InDelta(t, 100*29.0/400.0, *res.Summary.StainPercent, 1e-9)
}

func TestAnalyze_AllDarkImage(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	res, err := a.Analyze("dark.png", "", imaging.NewUniform(20, 20, 10))
	require.NoError(t, err)

	assert.Empty(t, res.Droplets)
	assert.Zero(t, res.Summary.DropletCount)
	assert.Zero(t, res.Summary.AreaFraction)
}

func TestAnalyze_UniformImage(t *testing.T) {
	opts := testOptions()
	opts.Filter = segmentation.FilterOptions{MinArea: 1, MaxArea: 200, MinCircularity: 0}
	a := newAnalyzer(t, opts)
	res, err := a.Analyze("flat.png", "", imaging.NewUniform(10, 10, 100))
	require.NoError(t, err)

	assert.Zero(t, res.Edges.Count())
	require.Len(t, res.Droplets, 1)
	assert.Equal(t, 100, res.Droplets[0].Area)
	assert.Equal(t, 1.0, res.Summary.AreaFraction)
}

func TestAnalyze_ErrorsKeepTheirType(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	_, err := a.Analyze("nan.png", "", imaging.FromFunc(3, 3, func(x, y int) float64 { return math.NaN() }))
	require.Error(t, err)
	var invalid *segmentation.InvalidImageError
	assert.True(t, errors.As(err, &invalid))

	opts := testOptions()
	opts.Grow.MaxIterations = 5
	a = newAnalyzer(t, opts)
	_, err = a.Analyze("big.png", "", imaging.NewUniform(30, 30, 1))
	assert.True(t, errors.Is(err, segmentation.ErrIterationLimit))
}

func batchSources(t *testing.T) []Source {
	t.Helper()
	return []Source{
		MemorySource{Name: "d1-a", Label: "day1", Image: blobs(t, [2]int{6, 10})},
		MemorySource{Name: "d1-b", Label: "day1", Image: blobs(t, [2]int{6, 6}, [2]int{14, 14})},
		MemorySource{Name: "d1-c", Label: "day1", Image: blobs(t)},
		MemorySource{Name: "d3-a", Label: "day3", Image: blobs(t, [2]int{6, 10}, [2]int{14, 10})},
		MemorySource{Name: "d3-b", Label: "day3", Image: blobs(t, [2]int{5, 5}, [2]int{14, 5}, [2]int{10, 14})},
		MemorySource{Name: "d3-c", Label: "day3", Image: blobs(t, [2]int{6, 6}, [2]int{14, 14})},
	}
}

func TestRunBatch_IndependentOfWorkerCount(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	sources := batchSources(t)

	serial, err := a.RunBatch(context.Background(), sources, BatchOptions{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, 6, serial.Succeeded)
	assert.Zero(t, serial.Failed)

	for _, workers := range []int{2, 4, 16, 0} {
		parallel, err := a.RunBatch(context.Background(), sources, BatchOptions{Workers: workers})
		require.NoError(t, err)
		if diff := cmp.Diff(serial, parallel, cmpopts.IgnoreFields(stats.BatchSummary{}, "RunID")); diff != "" {
			t.Errorf("workers=%d changed the summary (-serial +parallel):\n%s", workers, diff)
		}
	}

	require.Len(t, serial.Groups, 2)
	require.Len(t, serial.Comparisons, 1)
	assert.Equal(t, "day1", serial.Comparisons[0].GroupA)
	assert.Less(t, serial.Comparisons[0].MeanDifference, 0.0)
}

func TestRunBatch_IsolatesFailures(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	sources := append(batchSources(t),
		MemorySource{Name: "missing", Label: "day1", Err: errors.New("no such file")},
		MemorySource{Name: "empty", Label: "day3", Image: imaging.NewUniform(0, 0, 0)},
		panicSource{},
	)

	var buf bytes.Buffer
	summary, err := a.RunBatch(context.Background(), sources, BatchOptions{
		Workers: 3,
		RunID:   "run-42",
		Logger:  log.New(&buf, "", 0),
	})
	require.NoError(t, err)

	assert.Equal(t, "run-42", summary.RunID)
	assert.Equal(t, 6, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)

	reasons := map[string]string{}
	for _, f := range summary.Failures {
		reasons[f.ID] = f.Reason
	}
	assert.Contains(t, reasons["missing"], "no such file")
	assert.Contains(t, reasons["empty"], "invalid image")
	assert.Contains(t, reasons["panics"], "panicked")
	assert.Contains(t, buf.String(), "image missing: analysis failed")
	assert.Contains(t, buf.String(), "batch run-42: 6 succeeded, 3 failed")
}

type panicSource struct{}

func (panicSource) ID() string                    { return "panics" }
func (panicSource) Group() string                 { return "" }
func (panicSource) Open() (*imaging.Image, error) { panic("decoder exploded") }

func TestRunBatch_CancelledContext(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := batchSources(t)
	summary, err := a.RunBatch(ctx, sources, BatchOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, len(sources), summary.Succeeded+summary.Failed)
	for _, f := range summary.Failures {
		assert.Equal(t, "canceled", f.Reason)
	}
}

func TestRunBatch_StopHook(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	sources := batchSources(t)

	var polls atomic.Int32
	var progress []Progress
	summary, err := a.RunBatch(context.Background(), sources, BatchOptions{
		Workers:  1,
		Stop:     func() bool { return polls.Add(1) > 2 },
		Progress: func(p Progress) { progress = append(progress, p) },
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 4, summary.Failed)
	for _, f := range summary.Failures {
		assert.Equal(t, ErrCanceled.Error(), f.Reason)
	}

	require.Len(t, progress, len(sources))
	for i, p := range progress {
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, len(sources), p.Total)
	}
}

func TestRunBatch_Empty(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	summary, err := a.RunBatch(context.Background(), nil, BatchOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.NotEmpty(t, summary.RunID)
}

func ExampleAnalyzer_Analyze() {
	a, err := NewAnalyzer(Options{
		Edge:   segmentation.EdgeOptions{LowThreshold: 50, HighThreshold: 100},
		Grow:   segmentation.GrowOptions{MinSeedGap: 2, Connectivity: segmentation.Connectivity4},
		Filter: segmentation.FilterOptions{MinArea: 10, MaxArea: 200, MinCircularity: 0.8, IntensityFloor: 100},
	})
	if err != nil {
		panic(err)
	}
	img := imaging.FromFunc(20, 20, func(x, y int) float64 {
		if (x-6)*(x-6)+(y-10)*(y-10) <= 9 || (x-14)*(x-14)+(y-10)*(y-10) <= 9 {
			return 200
		}
		return 20
	})
	res, err := a.Analyze("example", "", img)
	if err != nil {
		panic(err)
	}
	fmt.Printf("droplets=%d area=%d fraction=%.4f\n", res.Summary.DropletCount, res.Summary.TotalArea, res.Summary.AreaFraction)
	// Output: droplets=2 area=58 fraction=0.1450
}

func TestRunBatch_OnResult(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	sources := append(batchSources(t), MemorySource{Name: "broken", Err: errors.New("unreadable")})

	var mu sync.Mutex
	droplets := map[string]int{}
	summary, err := a.RunBatch(context.Background(), sources, BatchOptions{
		Workers: 4,
		OnResult: func(src Source, res *Result) {
			mu.Lock()
			defer mu.Unlock()
			droplets[src.ID()] = len(res.Droplets)
		},
	})
	require.NoError(t, err)

	assert.Len(t, droplets, summary.Succeeded)
	assert.NotContains(t, droplets, "broken")
	for _, s := range summary.Images {
		assert.Equal(t, s.DropletCount, droplets[s.ID], s.ID)
	}
}

type releasingSource struct {
	MemorySource
	released *int32
}

func (s releasingSource) Release() { atomic.AddInt32(s.released, 1) }

func TestRunBatch_ReleasesSources(t *testing.T) {
	a := newAnalyzer(t, testOptions())
	var released int32
	var sources []Source
	for i := 0; i < 6; i++ {
		sources = append(sources, releasingSource{
			MemorySource: MemorySource{Name: fmt.Sprintf("img-%d", i), Image: blobs(t, [2]int{10, 10})},
			released:     &released,
		})
	}
	sources = append(sources, releasingSource{
		MemorySource: MemorySource{Name: "broken", Err: errors.New("unreadable")},
		released:     &released,
	})

	var hooked int32
	summary, err := a.RunBatch(context.Background(), sources, BatchOptions{
		Workers: 3,
		OnResult: func(src Source, res *Result) {
			atomic.AddInt32(&hooked, 1)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Succeeded)
	assert.Equal(t, int32(6), atomic.LoadInt32(&hooked))
	assert.Equal(t, int32(7), atomic.LoadInt32(&released))
}

func TestRunBatch_EvictsCachedFiles(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		img := image.NewGray(image.Rect(0, 0, 20, 20))
		for y := 0; y < 20; y++ {
			for x := 0; x < 20; x++ {
				v := uint8(20)
				if (x-10)*(x-10)+(y-10)*(y-10) <= 9 {
					v = 200
				}
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("img%02d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}

	cache := imaging.NewImageCache()
	files, err := imaging.ScanDirectory(dir, imaging.ScanOptions{Extensions: []string{".png"}, Cache: cache})
	require.NoError(t, err)
	require.Len(t, files, 20)
	sources := make([]Source, len(files))
	for i, f := range files {
		sources[i] = f
	}

	var decoded int32
	summary, err := newAnalyzer(t, testOptions()).RunBatch(context.Background(), sources, BatchOptions{
		Workers: 4,
		OnResult: func(src Source, res *Result) {
			if _, err := src.(imaging.FileSource).Decoded(); err == nil {
				atomic.AddInt32(&decoded, 1)
			}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Succeeded)
	assert.Equal(t, int32(20), atomic.LoadInt32(&decoded))
	assert.Zero(t, cache.Len())
}
