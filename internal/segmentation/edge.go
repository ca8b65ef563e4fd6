package segmentation

import (
	"fmt"
	"math"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

// EdgeDetector turns an intensity image into a binary EdgeMap.
// It holds only validated options and is safe for concurrent use.
type EdgeDetector struct {
	opts EdgeOptions
}

// NewEdgeDetector validates opts once and returns a reusable detector.
func NewEdgeDetector(opts EdgeOptions) (*EdgeDetector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Polarity == "" {
		opts.Polarity = PolarityBright
	}
	return &EdgeDetector{opts: opts}, nil
}

// Options returns the detector's configuration.
func (d *EdgeDetector) Options() EdgeOptions { return d.opts }

// Detect computes the edge map of img.
//
// # Algorithm
//
//  1. Gaussian smoothing with half-width SmoothingRadius (sigma = radius/2);
//     radius 0 disables smoothing.
//  2. Sobel gradients and magnitude sqrt(Gx² + Gy²).
//  3. Candidate selection by polarity: for bright droplets only pixels darker
//     than the mean of their 8 neighbours qualify, which puts the boundary on
//     the background side of the step. PolarityAny uses non-maximum
//     suppression along the gradient direction instead.
//  4. Hysteresis: candidates with magnitude above HighThreshold are strong;
//     candidates above LowThreshold are kept when 8-connected to a strong
//     pixel through other kept candidates.
//
// Borders are handled by replicating edge samples.
//
// # Errors
//
//   - *InvalidImageError for a nil image, zero width or height, or any NaN or
//     infinite sample
func (d *EdgeDetector) Detect(img *imaging.Image) (*EdgeMap, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}
	w, h := img.Width(), img.Height()

	smoothed := gaussianSmooth(img.Samples(), w, h, d.opts.SmoothingRadius)
	magnitude, direction := sobel(smoothed, w, h)

	var candidate []bool
	switch d.opts.Polarity {
	case PolarityAny:
		candidate = suppressNonMaxima(magnitude, direction, w, h)
	case PolarityDark:
		candidate = sidedCandidates(smoothed, w, h, func(v, mean float64) bool { return v > mean })
	default:
		candidate = sidedCandidates(smoothed, w, h, func(v, mean float64) bool { return v < mean })
	}

	edges := hysteresis(magnitude, candidate, w, h, d.opts.LowThreshold, d.opts.HighThreshold)
	return &EdgeMap{width: w, height: h, edges: edges}, nil
}

func validateImage(img *imaging.Image) error {
	if img == nil {
		return &InvalidImageError{Reason: "nil image"}
	}
	if img.Width() == 0 || img.Height() == 0 {
		return &InvalidImageError{Reason: fmt.Sprintf("empty image %dx%d", img.Width(), img.Height())}
	}
	if x, y, found := img.FirstNonFinite(); found {
		return &InvalidImageError{Reason: fmt.Sprintf("non-finite sample at (%d,%d)", x, y)}
	}
	return nil
}

// gaussianSmooth applies a separable Gaussian blur with half-width radius.
func gaussianSmooth(src []float64, width, height, radius int) []float64 {
	if radius == 0 {
		return src
	}
	sigma := float64(radius) / 2
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	tmp := make([]float64, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += src[y*width+clamp(x+k, 0, width-1)] * kernel[k+radius]
			}
			tmp[y*width+x] = acc
		}
	}
	out := make([]float64, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc float64
			for k := -radius; k <= radius; k++ {
				acc += tmp[clamp(y+k, 0, height-1)*width+x] * kernel[k+radius]
			}
			out[y*width+x] = acc
		}
	}
	return out
}

var (
	sobelX = [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY = [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

func sobel(src []float64, width, height int) (magnitude, direction []float64) {
	magnitude = make([]float64, len(src))
	direction = make([]float64, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				py := clamp(y+ky, 0, height-1)
				for kx := -1; kx <= 1; kx++ {
					v := src[py*width+clamp(x+kx, 0, width-1)]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			magnitude[y*width+x] = math.Hypot(gx, gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}
	return magnitude, direction
}

// sidedCandidates keeps pixels for which keep(value, mean of 8 neighbours)
// holds.
func sidedCandidates(src []float64, width, height int, keep func(v, mean float64) bool) []bool {
	out := make([]bool, len(src))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum float64
			for dy := -1; dy <= 1; dy++ {
				py := clamp(y+dy, 0, height-1)
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					sum += src[py*width+clamp(x+dx, 0, width-1)]
				}
			}
			out[y*width+x] = keep(src[y*width+x], sum/8)
		}
	}
	return out
}

// suppressNonMaxima keeps pixels whose magnitude is a local maximum along
// the gradient direction, quantised to four orientations.
func suppressNonMaxima(mag, dir []float64, width, height int) []bool {
	out := make([]bool, len(mag))
	at := func(x, y int) float64 {
		return mag[clamp(y, 0, height-1)*width+clamp(x, 0, width-1)]
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			angle := dir[y*width+x]
			var n1, n2 float64
			switch {
			case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
				n1, n2 = at(x-1, y), at(x+1, y)
			case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
				n1, n2 = at(x+1, y-1), at(x-1, y+1)
			case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
				n1, n2 = at(x, y-1), at(x, y+1)
			default:
				n1, n2 = at(x-1, y-1), at(x+1, y+1)
			}
			m := mag[y*width+x]
			out[y*width+x] = m >= n1 && m >= n2
		}
	}
	return out
}

// hysteresis keeps candidates above high, then grows through 8-connected
// candidates above low.
func hysteresis(mag []float64, candidate []bool, width, height int, low, high float64) []bool {
	edges := make([]bool, len(mag))
	stack := make([]int, 0, 64)
	for i, m := range mag {
		if candidate[i] && m > high {
			edges[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				j := ny*width + nx
				if !edges[j] && candidate[j] && mag[j] > low {
					edges[j] = true
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

// clamp constrains an integer value to the range [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
