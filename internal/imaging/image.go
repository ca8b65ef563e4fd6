package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Image is a single-channel intensity grid.
//
// Samples are stored row-major and keep the scale of their source (0-255 for
// images converted with FromImage). An Image is never modified after
// construction; every analysis stage derives new structures from it.
type Image struct {
	width  int
	height int
	pix    []float64

	// stain is the stained fraction of the source, set only for images
	// converted with ChannelStain.
	stain *float64
}

// New creates an Image from row-major samples. The slice is copied.
//
// Zero width or height is accepted here so that callers can represent empty
// inputs; the analysis stages reject them.
func New(width, height int, samples []float64) (*Image, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("negative image dimensions %dx%d", width, height)
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("sample count %d does not match %dx%d", len(samples), width, height)
	}
	pix := make([]float64, len(samples))
	copy(pix, samples)
	return &Image{width: width, height: height, pix: pix}, nil
}

// NewUniform creates a width x height Image where every sample equals v.
func NewUniform(width, height int, v float64) *Image {
	return FromFunc(width, height, func(int, int) float64 { return v })
}

// FromFunc creates an Image by evaluating f at every pixel.
func FromFunc(width, height int, f func(x, y int) float64) *Image {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	pix := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pix[y*width+x] = f(x, y)
		}
	}
	return &Image{width: width, height: height, pix: pix}
}

// Width returns the number of columns.
func (m *Image) Width() int { return m.width }

// Height returns the number of rows.
func (m *Image) Height() int { return m.height }

// Area returns width*height.
func (m *Image) Area() int { return m.width * m.height }

// At returns the sample at (x, y). Coordinates must be in range.
func (m *Image) At(x, y int) float64 { return m.pix[y*m.width+x] }

// Index returns the sample at row-major offset i.
func (m *Image) Index(i int) float64 { return m.pix[i] }

// Samples returns a copy of the row-major samples.
func (m *Image) Samples() []float64 {
	out := make([]float64, len(m.pix))
	copy(out, m.pix)
	return out
}

// StainFraction reports the fraction of stained source pixels. ok is false
// unless the image was converted with ChannelStain.
func (m *Image) StainFraction() (fraction float64, ok bool) {
	if m.stain == nil {
		return 0, false
	}
	return *m.stain, true
}

// Bounds returns the image rectangle anchored at the origin.
func (m *Image) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

// FirstNonFinite reports the first NaN or infinite sample in raster order.
func (m *Image) FirstNonFinite() (x, y int, found bool) {
	for i, v := range m.pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i % m.width, i / m.width, true
		}
	}
	return 0, 0, false
}

// Gray renders the samples as an 8-bit grayscale image, clamping to 0-255.
func (m *Image) Gray() *image.Gray {
	out := image.NewGray(m.Bounds())
	for i, v := range m.pix {
		out.Pix[(i/m.width)*out.Stride+i%m.width] = clampByte(v)
	}
	return out
}

func clampByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// Channel selects which quantity of a colour image becomes the intensity.
type Channel string

const (
	// ChannelLuminance uses ITU-R BT.601 luminance.
	ChannelLuminance Channel = "luminance"
	// ChannelRed, ChannelGreen and ChannelBlue pick one colour plane, as for
	// single-fluorophore micrographs stored as RGB.
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelBlue  Channel = "blue"
	// ChannelStain classifies stained pixels by hue (see StainMask).
	ChannelStain Channel = "stain"
)

// ConvertOptions control how a decoded image becomes an intensity Image.
type ConvertOptions struct {
	// Channel defaults to ChannelLuminance when empty.
	Channel Channel `json:"channel,omitempty"`

	// MaxDimension downsamples images whose longer side exceeds it.
	// Zero keeps the original resolution.
	MaxDimension int `json:"max_dimension,omitempty"`

	// Stain is used only with ChannelStain.
	Stain StainOptions `json:"stain,omitempty"`

	// Depth is the sample scale: 8 (or 0) maps to 0-255, 16 keeps the full
	// 0-65535 range of 16-bit sources. 16-bit conversion does not resample,
	// so it cannot be combined with MaxDimension. The stain channel is a
	// 0/255 mask at either depth.
	Depth int `json:"depth,omitempty"`
}

// Validate checks the options without converting anything.
func (o ConvertOptions) Validate() error {
	if o.MaxDimension < 0 {
		return fmt.Errorf("max dimension must be >= 0, got %d", o.MaxDimension)
	}
	switch o.Depth {
	case 0, 8:
	case 16:
		if o.MaxDimension > 0 {
			return fmt.Errorf("max dimension downsampling is not available at 16-bit depth")
		}
	default:
		return fmt.Errorf("depth must be 8 or 16, got %d", o.Depth)
	}
	return nil
}

// FromImage converts a decoded image into an intensity Image on a 0-255 scale.
//
// # Errors
//
//   - Returns error for an unknown channel
//   - Returns error for invalid options (see ConvertOptions.Validate)
func FromImage(src image.Image, opts ConvertOptions) (*Image, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxDimension > 0 {
		b := src.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			src = imaging.Fit(src, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
		}
	}

	channel := opts.Channel
	if channel == "" {
		channel = ChannelLuminance
	}

	if opts.Depth == 16 && channel != ChannelStain {
		return from16(src, channel)
	}

	switch channel {
	case ChannelLuminance:
		return fromNRGBA(imaging.Grayscale(src), 0), nil
	case ChannelRed:
		return fromNRGBA(imaging.Clone(src), 0), nil
	case ChannelGreen:
		return fromNRGBA(imaging.Clone(src), 1), nil
	case ChannelBlue:
		return fromNRGBA(imaging.Clone(src), 2), nil
	case ChannelStain:
		mask, err := StainMask(src, opts.Stain)
		if err != nil {
			return nil, err
		}
		img := fromGray(mask)
		fraction := StainFraction(mask)
		img.stain = &fraction
		return img, nil
	default:
		return nil, fmt.Errorf("unknown channel: %s", channel)
	}
}

// fromNRGBA reads one byte plane (0=R, 1=G, 2=B) of an origin-anchored NRGBA.
func fromNRGBA(img *image.NRGBA, plane int) *Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			pix[y*w+x] = float64(row[x*4+plane])
		}
	}
	return &Image{width: w, height: h, pix: pix}
}

// from16 reads 16-bit samples straight from the source colour model.
// Luminance uses the BT.601 weights of color.Gray16Model, so 16-bit gray
// sources keep their exact values.
func from16(src image.Image, channel Channel) (*Image, error) {
	var pick func(c color.Color) uint32
	switch channel {
	case ChannelLuminance:
		pick = func(c color.Color) uint32 { return uint32(color.Gray16Model.Convert(c).(color.Gray16).Y) }
	case ChannelRed:
		pick = func(c color.Color) uint32 {
			r, _, _, _ := c.RGBA()
			return r
		}
	case ChannelGreen:
		pick = func(c color.Color) uint32 {
			_, g, _, _ := c.RGBA()
			return g
		}
	case ChannelBlue:
		pick = func(c color.Color) uint32 {
			_, _, b, _ := c.RGBA()
			return b
		}
	default:
		return nil, fmt.Errorf("unknown channel: %s", channel)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float64, w*h)
	if g, ok := src.(*image.Gray16); ok && channel == ChannelLuminance {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = float64(g.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return &Image{width: w, height: h, pix: pix}, nil
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = float64(pick(src.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return &Image{width: w, height: h, pix: pix}, nil
}

func fromGray(img *image.Gray) *Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = float64(img.GrayAt(x+b.Min.X, y+b.Min.Y).Y)
		}
	}
	return &Image{width: w, height: h, pix: pix}
}
