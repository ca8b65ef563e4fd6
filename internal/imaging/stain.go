package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/lucasb-eyer/go-colorful"
)

// StainOptions describe the HSV window that identifies stained lipid pixels.
//
// Hue is in degrees (0-360); saturation and value are fractions (0-1).
// The defaults select the yellow of neutral-lipid stains viewed in
// brightfield (hue 40-70 degrees, saturation and value at least 100/255).
type StainOptions struct {
	HueMin       float64 `json:"hue_min" yaml:"hueMin"`
	HueMax       float64 `json:"hue_max" yaml:"hueMax"`
	SatMin       float64 `json:"sat_min" yaml:"satMin"`
	ValMin       float64 `json:"val_min" yaml:"valMin"`
	DilateRadius float64 `json:"dilate_radius" yaml:"dilateRadius"`
}

// DefaultStainOptions returns the yellow triglyceride stain window with a
// 15 pixel dilation, which closes the gaps between stained fragments of one
// droplet.
func DefaultStainOptions() StainOptions {
	return StainOptions{
		HueMin:       40,
		HueMax:       70,
		SatMin:       100.0 / 255.0,
		ValMin:       100.0 / 255.0,
		DilateRadius: 15,
	}
}

// IsZero reports whether no field has been set.
func (o StainOptions) IsZero() bool {
	return o == StainOptions{}
}

// Validate checks the window for contradictory or out-of-range values.
func (o StainOptions) Validate() error {
	for _, v := range []float64{o.HueMin, o.HueMax, o.SatMin, o.ValMin, o.DilateRadius} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("stain options must be finite")
		}
	}
	if o.HueMin < 0 || o.HueMax > 360 || o.HueMin > o.HueMax {
		return fmt.Errorf("stain hue window [%g, %g] must satisfy 0 <= min <= max <= 360", o.HueMin, o.HueMax)
	}
	if o.SatMin < 0 || o.SatMin > 1 || o.ValMin < 0 || o.ValMin > 1 {
		return fmt.Errorf("stain saturation and value minimums must be within [0, 1]")
	}
	if o.DilateRadius < 0 {
		return fmt.Errorf("stain dilate radius must be >= 0, got %g", o.DilateRadius)
	}
	return nil
}

// StainMask classifies every pixel of img by its HSV colour and returns a
// binary mask: 255 for stained pixels, 0 elsewhere.
//
// Zero-valued options select DefaultStainOptions. When DilateRadius is
// positive the mask is grown by a morphological dilation and re-binarised,
// so that a droplet whose stain is fragmented by specular highlights becomes
// one solid blob for the edge-triggered segmentation.
//
// Fully transparent pixels are never stained.
func StainMask(img image.Image, opts StainOptions) (*image.Gray, error) {
	if opts.IsZero() {
		opts = DefaultStainOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			h, s, v := c.Hsv()
			if h >= opts.HueMin && h <= opts.HueMax && s >= opts.SatMin && v >= opts.ValMin {
				mask.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: 255})
			}
		}
	}

	if opts.DilateRadius <= 0 {
		return mask, nil
	}
	dilated := effect.Dilate(mask, opts.DilateRadius)
	return segment.Threshold(dilated, 128), nil
}

// StainFraction returns the fraction of mask pixels that are set.
func StainFraction(mask *image.Gray) float64 {
	b := mask.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	set := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y > 0 {
				set++
			}
		}
	}
	return float64(set) / float64(total)
}
