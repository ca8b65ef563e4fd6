package segmentation

import (
	"math"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

// Shape bundles the geometric descriptors of a droplet.
type Shape struct {
	Perimeter          float64  `json:"perimeter"`
	Circularity        float64  `json:"circularity"`
	EquivalentDiameter float64  `json:"equivalent_diameter"`
	Eccentricity       float64  `json:"eccentricity"`
	AspectRatio        float64  `json:"aspect_ratio"`
	Centroid           Centroid `json:"centroid"`
	Bounds             Bounds   `json:"bounds"`
}

// Metrics are the quantitative features of one droplet.
//
// TotalIntensity is the integrated signal and serves as the triglyceride
// mass proxy. VolumeProxy treats the droplet as a sphere with the
// droplet's equivalent diameter. Physical fields are zero unless a pixel
// size was supplied.
type Metrics struct {
	ID              int     `json:"id"`
	Area            int     `json:"area"`
	MeanIntensity   float64 `json:"mean_intensity"`
	TotalIntensity  float64 `json:"total_intensity"`
	IntensityStdDev float64 `json:"intensity_std_dev"`
	MaxIntensity    float64 `json:"max_intensity"`
	Shape           Shape   `json:"shape"`
	VolumeProxy     float64 `json:"volume_proxy"`

	PhysicalArea     float64 `json:"physical_area,omitempty"`
	PhysicalDiameter float64 `json:"physical_diameter,omitempty"`
	PhysicalVolume   float64 `json:"physical_volume,omitempty"`
}

// Measure projects a droplet onto its metrics. img supplies the per-pixel
// intensities for the spread fields and may be nil, in which case they are
// left zero.
func Measure(d Droplet, img *imaging.Image, opts MeasureOptions) Metrics {
	diameter := 2 * math.Sqrt(float64(d.Area)/math.Pi)
	m := Metrics{
		ID:             d.ID,
		Area:           d.Area,
		MeanIntensity:  d.MeanIntensity,
		TotalIntensity: d.TotalIntensity,
		Shape: Shape{
			Perimeter:          d.Perimeter,
			Circularity:        d.Circularity,
			EquivalentDiameter: diameter,
			Centroid:           d.Centroid,
			Bounds:             d.Bounds,
		},
		VolumeProxy: sphereVolume(diameter),
	}
	m.Shape.Eccentricity, m.Shape.AspectRatio = moments(d)

	if img != nil && len(d.Pixels) > 0 {
		var ss float64
		m.MaxIntensity = math.Inf(-1)
		for _, p := range d.Pixels {
			v := img.At(p.X, p.Y)
			ss += (v - d.MeanIntensity) * (v - d.MeanIntensity)
			m.MaxIntensity = math.Max(m.MaxIntensity, v)
		}
		m.IntensityStdDev = math.Sqrt(ss / float64(len(d.Pixels)))
	}

	if opts.PixelSize > 0 {
		s := opts.PixelSize
		m.PhysicalArea = float64(d.Area) * s * s
		m.PhysicalDiameter = diameter * s
		m.PhysicalVolume = m.VolumeProxy * s * s * s
	}
	return m
}

// MeasureAll maps Measure over droplets, preserving order.
func MeasureAll(droplets []Droplet, img *imaging.Image, opts MeasureOptions) []Metrics {
	out := make([]Metrics, len(droplets))
	for i, d := range droplets {
		out[i] = Measure(d, img, opts)
	}
	return out
}

func sphereVolume(diameter float64) float64 {
	r := diameter / 2
	return 4.0 / 3.0 * math.Pi * r * r * r
}

// moments returns eccentricity and major/minor axis ratio from the second
// central moments of the droplet's pixels.
func moments(d Droplet) (eccentricity, aspect float64) {
	if len(d.Pixels) == 0 {
		return 0, 1
	}
	var sxx, syy, sxy float64
	for _, p := range d.Pixels {
		dx := float64(p.X) - d.Centroid.X
		dy := float64(p.Y) - d.Centroid.Y
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	return axes(float64(len(d.Pixels)), sxx, syy, sxy)
}

// axes turns central second-moment sums over n pixels into eccentricity
// and aspect ratio. Each pixel contributes its own 1/12 variance as a unit
// square, so single pixels and lines stay finite.
func axes(n, sxx, syy, sxy float64) (eccentricity, aspect float64) {
	a := sxx/n + 1.0/12
	c := syy/n + 1.0/12
	b := sxy / n

	mid := (a + c) / 2
	spread := math.Sqrt((a-c)*(a-c)/4 + b*b)
	major, minor := mid+spread, mid-spread
	if minor <= 0 {
		minor = 1.0 / 12
	}
	eccentricity = math.Sqrt(math.Max(0, 1-minor/major))
	aspect = math.Sqrt(major / minor)
	return eccentricity, aspect
}
