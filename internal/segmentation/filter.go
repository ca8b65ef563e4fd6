package segmentation

import (
	"fmt"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

// Centroid is the mean pixel position of a region.
type Centroid struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Droplet is one accepted region. It is not modified after Apply returns.
type Droplet struct {
	ID             int      `json:"id"`
	Pixels         []Point  `json:"-"`
	Area           int      `json:"area"`
	Perimeter      float64  `json:"perimeter"`
	Circularity    float64  `json:"circularity"`
	MeanIntensity  float64  `json:"mean_intensity"`
	TotalIntensity float64  `json:"total_intensity"`
	Bounds         Bounds   `json:"bounds"`
	Centroid       Centroid `json:"centroid"`
	TouchesBorder  bool     `json:"touches_border,omitempty"`
}

// Filter applies the droplet acceptance criteria.
type Filter struct {
	opts FilterOptions
}

// NewFilter validates opts once and returns a reusable filter.
func NewFilter(opts FilterOptions) (*Filter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Filter{opts: opts}, nil
}

// Options returns the filter's configuration.
func (f *Filter) Options() FilterOptions { return f.opts }

type regionStats struct {
	area   int
	sum    float64
	sumX   float64
	sumY   float64
	sumXX  float64
	sumYY  float64
	sumXY  float64
	first  Point
	bounds Bounds
	border bool
}

// aspect returns the region's major/minor axis ratio.
func (r *regionStats) aspect() float64 {
	n := float64(r.area)
	mx, my := r.sumX/n, r.sumY/n
	_, a := axes(n, r.sumXX-n*mx*mx, r.sumYY-n*my*my, r.sumXY-n*mx*my)
	return a
}

// Apply returns the regions of labels that pass every acceptance bound,
// ordered by label. Regions are measured against img, which must have the
// label map's dimensions.
func (f *Filter) Apply(labels *LabelMap, img *imaging.Image) ([]Droplet, error) {
	if labels == nil || img == nil {
		return nil, &SegmentationError{Op: "filter", Reason: "nil label map or image"}
	}
	if labels.width != img.Width() || labels.height != img.Height() {
		return nil, &SegmentationError{
			Op: "filter",
			Reason: fmt.Sprintf("label map is %dx%d but image is %dx%d",
				labels.width, labels.height, img.Width(), img.Height()),
		}
	}

	w, h := labels.width, labels.height
	regions := make([]regionStats, labels.count+1)
	for i, l := range labels.labels {
		if l == 0 {
			continue
		}
		x, y := i%w, i/w
		r := &regions[l]
		if r.area == 0 {
			r.first = Point{X: x, Y: y}
			r.bounds = Bounds{X1: x, Y1: y, X2: x + 1, Y2: y + 1}
		}
		r.area++
		r.sum += img.Index(i)
		r.sumX += float64(x)
		r.sumY += float64(y)
		r.sumXX += float64(x * x)
		r.sumYY += float64(y * y)
		r.sumXY += float64(x * y)
		r.bounds.X1 = min(r.bounds.X1, x)
		r.bounds.X2 = max(r.bounds.X2, x+1)
		r.bounds.Y2 = max(r.bounds.Y2, y+1)
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			r.border = true
		}
	}

	accepted := make([]int32, 0)
	perimeters := make(map[int32]float64)
	for l := 1; l <= labels.count; l++ {
		r := &regions[l]
		if r.area < f.opts.MinArea || r.area > f.opts.MaxArea {
			continue
		}
		if r.sum/float64(r.area) < f.opts.IntensityFloor {
			continue
		}
		if f.opts.ExcludeBorder && r.border {
			continue
		}
		if f.opts.MaxAspectRatio > 0 && r.aspect() > f.opts.MaxAspectRatio {
			continue
		}
		p := tracePerimeter(labels.labels, w, h, int32(l), r.first)
		if circularity(r.area, p) < f.opts.MinCircularity {
			continue
		}
		accepted = append(accepted, int32(l))
		perimeters[int32(l)] = p
	}

	droplets := make([]Droplet, len(accepted))
	index := make(map[int32]int, len(accepted))
	for k, l := range accepted {
		r := &regions[l]
		a := float64(r.area)
		droplets[k] = Droplet{
			ID:             int(l),
			Pixels:         make([]Point, 0, r.area),
			Area:           r.area,
			Perimeter:      perimeters[l],
			Circularity:    circularity(r.area, perimeters[l]),
			MeanIntensity:  r.sum / a,
			TotalIntensity: r.sum,
			Bounds:         r.bounds,
			Centroid:       Centroid{X: r.sumX / a, Y: r.sumY / a},
			TouchesBorder:  r.border,
		}
		index[l] = k
	}
	if len(droplets) == 0 {
		return droplets, nil
	}
	for i, l := range labels.labels {
		if k, ok := index[l]; ok {
			droplets[k].Pixels = append(droplets[k].Pixels, Point{X: i % w, Y: i / w})
		}
	}
	return droplets, nil
}
