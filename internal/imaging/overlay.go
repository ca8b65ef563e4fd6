package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
)

// Highlight is the colour painted over accepted droplets.
var Highlight = color.NRGBA{R: 255, G: 0, B: 255, A: 255}

// RenderOverlay blends Highlight over every pixel of src for which mask
// returns true. Mask coordinates are 0-based relative to src's bounds.
//
// opacity is clamped to [0, 1]; 0.5 gives the usual fused view where the
// underlying texture of each droplet stays visible.
func RenderOverlay(src image.Image, mask func(x, y int) bool, opacity float64) *image.NRGBA {
	base := imaging.Clone(src)
	b := base.Bounds()

	highlight := image.NewNRGBA(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if mask(x, y) {
				highlight.SetNRGBA(x, y, Highlight)
			}
		}
	}

	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return imaging.Overlay(base, highlight, image.Pt(0, 0), opacity)
}

// SideBySide places left and right next to each other on a black canvas
// tall enough for both.
func SideBySide(left, right image.Image) *image.NRGBA {
	lb, rb := left.Bounds(), right.Bounds()
	h := lb.Dy()
	if rb.Dy() > h {
		h = rb.Dy()
	}
	canvas := imaging.New(lb.Dx()+rb.Dx(), h, color.Black)
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	return imaging.Paste(canvas, right, image.Pt(lb.Dx(), 0))
}

// EncodedImage is a PNG rendering returned to MCP clients.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodePNG renders img as a base64 PNG.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// MatchSize resamples src to width x height when its size differs, so a
// mask computed on a downsampled intensity image lines up with the colour
// original.
func MatchSize(src image.Image, width, height int) image.Image {
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return src
	}
	return imaging.Resize(src, width, height, imaging.Lanczos)
}
