package pipeline

import (
	"fmt"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/segmentation"
	"github.com/ironsheep/lipid-tools-mcp/internal/stats"
)

// Options configure every stage of one analysis.
type Options struct {
	Edge    segmentation.EdgeOptions    `json:"edge"`
	Grow    segmentation.GrowOptions    `json:"segmentation"`
	Filter  segmentation.FilterOptions  `json:"filter"`
	Measure segmentation.MeasureOptions `json:"measurement"`
}

// DefaultOptions returns the default options of each stage.
func DefaultOptions() Options {
	return Options{
		Edge:   segmentation.DefaultEdgeOptions(),
		Grow:   segmentation.DefaultGrowOptions(),
		Filter: segmentation.DefaultFilterOptions(),
	}
}

// Analyzer runs the full per-image chain with validated options.
// It is immutable and safe for concurrent use.
type Analyzer struct {
	opts     Options
	detector *segmentation.EdgeDetector
	engine   *segmentation.Engine
	filter   *segmentation.Filter
}

// NewAnalyzer validates opts and builds each stage once.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	detector, err := segmentation.NewEdgeDetector(opts.Edge)
	if err != nil {
		return nil, err
	}
	engine, err := segmentation.NewEngine(opts.Grow)
	if err != nil {
		return nil, err
	}
	filter, err := segmentation.NewFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	if err := opts.Measure.Validate(); err != nil {
		return nil, err
	}
	opts.Edge = detector.Options()
	return &Analyzer{opts: opts, detector: detector, engine: engine, filter: filter}, nil
}

// Options returns the analyzer's validated configuration.
func (a *Analyzer) Options() Options { return a.opts }

// Result holds every structure derived from one image.
type Result struct {
	Edges    *segmentation.EdgeMap
	Labels   *segmentation.LabelMap
	Droplets []segmentation.Droplet
	Metrics  []segmentation.Metrics
	Summary  stats.ImageSummary
}

// Analyze runs edge detection, segmentation, filtering, measurement and
// per-image aggregation on img.
//
// Errors from the stages keep their type, so errors.As and errors.Is work on
// the returned error.
func (a *Analyzer) Analyze(id, group string, img *imaging.Image) (*Result, error) {
	edges, err := a.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("edge detection: %w", err)
	}
	labels, err := a.engine.Segment(img, edges)
	if err != nil {
		return nil, fmt.Errorf("segmentation: %w", err)
	}
	droplets, err := a.filter.Apply(labels, img)
	if err != nil {
		return nil, fmt.Errorf("droplet filter: %w", err)
	}
	metrics := segmentation.MeasureAll(droplets, img, a.opts.Measure)

	summary := stats.SummarizeImage(id, group, metrics, img.Width(), img.Height())
	if f, ok := img.StainFraction(); ok {
		percent := 100 * f
		summary.StainPercent = &percent
	}
	return &Result{
		Edges:    edges,
		Labels:   labels,
		Droplets: droplets,
		Metrics:  metrics,
		Summary:  summary,
	}, nil
}

// Mask reports whether (x, y) belongs to an accepted droplet.
func (r *Result) Mask() func(x, y int) bool {
	accepted := make(map[int]bool, len(r.Droplets))
	for _, d := range r.Droplets {
		accepted[d.ID] = true
	}
	return func(x, y int) bool {
		return accepted[r.Labels.At(x, y)]
	}
}
