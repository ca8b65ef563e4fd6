package segmentation

import "math"

// Polarity says on which side of an intensity step the boundary is drawn.
type Polarity string

const (
	// PolarityBright is for droplets brighter than their surroundings
	// (fluorescent neutral-lipid stains). Edge pixels are placed on the
	// darker side of each step so droplet pixels stay unlabelled by edges.
	PolarityBright Polarity = "bright"
	// PolarityDark is for droplets darker than their surroundings.
	PolarityDark Polarity = "dark"
	// PolarityAny keeps both sides and thins them with non-maximum
	// suppression, as in classic Canny detection.
	PolarityAny Polarity = "any"
)

// Connectivity is the neighbour rule used for region growth.
type Connectivity int

const (
	Connectivity4 Connectivity = 4
	Connectivity8 Connectivity = 8
)

const maxSmoothingRadius = 32

// EdgeOptions configure the EdgeDetector.
//
// Thresholds are Sobel gradient magnitudes on the image's own scale; for a
// 0-255 image a clean step of height d produces a magnitude of about 4d.
type EdgeOptions struct {
	LowThreshold    float64  `json:"low_threshold"`
	HighThreshold   float64  `json:"high_threshold"`
	SmoothingRadius int      `json:"smoothing_radius"`
	Polarity        Polarity `json:"polarity,omitempty"`
}

// DefaultEdgeOptions returns generic starting thresholds for 8-bit images.
func DefaultEdgeOptions() EdgeOptions {
	return EdgeOptions{
		LowThreshold:    50,
		HighThreshold:   150,
		SmoothingRadius: 1,
		Polarity:        PolarityBright,
	}
}

// Validate checks ranges and ordering. An empty Polarity is accepted and
// means PolarityBright.
func (o EdgeOptions) Validate() error {
	if !finite(o.LowThreshold) || o.LowThreshold < 0 {
		return configErr("edge", "low_threshold", "must be a finite value >= 0, got %g", o.LowThreshold)
	}
	if !finite(o.HighThreshold) || o.HighThreshold < 0 {
		return configErr("edge", "high_threshold", "must be a finite value >= 0, got %g", o.HighThreshold)
	}
	if o.LowThreshold > o.HighThreshold {
		return configErr("edge", "low_threshold", "%g exceeds high_threshold %g", o.LowThreshold, o.HighThreshold)
	}
	if o.SmoothingRadius < 0 || o.SmoothingRadius > maxSmoothingRadius {
		return configErr("edge", "smoothing_radius", "must be within [0, %d], got %d", maxSmoothingRadius, o.SmoothingRadius)
	}
	switch o.Polarity {
	case "", PolarityBright, PolarityDark, PolarityAny:
	default:
		return configErr("edge", "polarity", "unknown value %q", o.Polarity)
	}
	return nil
}

// GrowOptions configure the SegmentationEngine.
type GrowOptions struct {
	// MinSeedGap is the chessboard distance a pixel must keep from every
	// edge pixel to seed a region. Growth fronts from different seeds never
	// merge, so passages narrower than about twice this gap stay split.
	// 0 and 1 both reduce to plain connected-component labelling.
	MinSeedGap int `json:"min_seed_gap"`

	// Connectivity is 4 or 8.
	Connectivity Connectivity `json:"connectivity"`

	// MaxIterations bounds the pixel visits of one segmentation run.
	// Zero selects 32 visits per pixel.
	MaxIterations int `json:"max_iterations,omitempty"`
}

// DefaultGrowOptions returns 4-connected growth with a seed gap of 2.
func DefaultGrowOptions() GrowOptions {
	return GrowOptions{MinSeedGap: 2, Connectivity: Connectivity4}
}

// Validate checks the adjacency rule and bounds.
func (o GrowOptions) Validate() error {
	if o.Connectivity != Connectivity4 && o.Connectivity != Connectivity8 {
		return configErr("segmentation", "connectivity", "must be 4 or 8, got %d", o.Connectivity)
	}
	if o.MinSeedGap < 0 {
		return configErr("segmentation", "min_seed_gap", "must be >= 0, got %d", o.MinSeedGap)
	}
	if o.MaxIterations < 0 {
		return configErr("segmentation", "max_iterations", "must be >= 0, got %d", o.MaxIterations)
	}
	return nil
}

// FilterOptions configure the DropletFilter acceptance criteria.
//
// None of these have a universally right value: they depend on
// magnification, stain and cell type, and must be tuned per experiment.
type FilterOptions struct {
	MinArea        int     `json:"min_area"`
	MaxArea        int     `json:"max_area"`
	MinCircularity float64 `json:"min_circularity"`
	IntensityFloor float64 `json:"intensity_floor"`

	// ExcludeBorder rejects regions touching the image border, whose true
	// size and shape are unknown.
	ExcludeBorder bool `json:"exclude_border,omitempty"`

	// MaxAspectRatio rejects regions whose major/minor axis ratio exceeds
	// it. Circularity alone passes short one-pixel-wide fragments, whose
	// centre-line perimeter is small. Zero disables the check.
	MaxAspectRatio float64 `json:"max_aspect_ratio,omitempty"`
}

// DefaultFilterOptions returns permissive bounds suitable for a first look.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		MinArea:        5,
		MaxArea:        100000,
		MinCircularity: 0.5,
		IntensityFloor: 0,
	}
}

// Validate checks ranges and that the area window is not empty.
func (o FilterOptions) Validate() error {
	if o.MinArea < 1 {
		return configErr("filter", "min_area", "must be >= 1, got %d", o.MinArea)
	}
	if o.MinArea > o.MaxArea {
		return configErr("filter", "min_area", "%d exceeds max_area %d", o.MinArea, o.MaxArea)
	}
	if !finite(o.MinCircularity) || o.MinCircularity < 0 || o.MinCircularity > 1 {
		return configErr("filter", "min_circularity", "must be within [0, 1], got %g", o.MinCircularity)
	}
	if !finite(o.IntensityFloor) {
		return configErr("filter", "intensity_floor", "must be finite, got %g", o.IntensityFloor)
	}
	if !finite(o.MaxAspectRatio) || (o.MaxAspectRatio != 0 && o.MaxAspectRatio < 1) {
		return configErr("filter", "max_aspect_ratio", "must be 0 (off) or >= 1, got %g", o.MaxAspectRatio)
	}
	return nil
}

// MeasureOptions configure the MetricsComputer.
type MeasureOptions struct {
	// PixelSize is the side length of one pixel in physical units
	// (for example micrometres). Zero leaves physical fields empty.
	PixelSize float64 `json:"pixel_size,omitempty"`
}

// Validate checks that the pixel size is usable.
func (o MeasureOptions) Validate() error {
	if !finite(o.PixelSize) || o.PixelSize < 0 {
		return configErr("measure", "pixel_size", "must be a finite value >= 0, got %g", o.PixelSize)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
