package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestRenderOverlay(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	mask := func(x, y int) bool { return x == 2 && y == 1 }

	full := RenderOverlay(src, mask, 5)
	if got := full.NRGBAAt(2, 1); got != Highlight {
		t.Errorf("masked pixel: got %v, want %v", got, Highlight)
	}
	if got := full.NRGBAAt(0, 0); got != (color.NRGBA{A: 255}) {
		t.Errorf("unmasked pixel: got %v, want opaque black", got)
	}

	none := RenderOverlay(src, mask, -1)
	if got := none.NRGBAAt(2, 1); got.R != 0 {
		t.Errorf("zero opacity should leave the source, got %v", got)
	}

	half := RenderOverlay(src, mask, 0.5)
	if got := half.NRGBAAt(2, 1); got.R < 100 || got.R > 155 || got.G != 0 {
		t.Errorf("half opacity: got %v", got)
	}
}

func TestSideBySide(t *testing.T) {
	left := image.NewGray(image.Rect(0, 0, 4, 3))
	right := image.NewNRGBA(image.Rect(0, 0, 2, 5))
	right.SetNRGBA(0, 4, Highlight)

	out := SideBySide(left, right)
	if b := out.Bounds(); b.Dx() != 6 || b.Dy() != 5 {
		t.Fatalf("dimensions: got %dx%d, want 6x5", b.Dx(), b.Dy())
	}
	if got := out.NRGBAAt(4, 4); got != Highlight {
		t.Errorf("right image pixel: got %v", got)
	}
}

func TestEncodePNG(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 7, 3))
	enc, err := EncodePNG(src)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if enc.Width != 7 || enc.Height != 3 || enc.MimeType != "image/png" {
		t.Errorf("unexpected metadata: %+v", enc)
	}

	data, err := base64.StdEncoding.DecodeString(enc.ImageBase64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 7 {
		t.Errorf("decoded width: got %d, want 7", decoded.Bounds().Dx())
	}
}

func TestMatchSize(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	if got := MatchSize(src, 40, 20); got != image.Image(src) {
		t.Error("MatchSize should return src unchanged when sizes agree")
	}
	resized := MatchSize(src, 10, 5)
	if b := resized.Bounds(); b.Dx() != 10 || b.Dy() != 5 {
		t.Errorf("resized: got %dx%d, want 10x5", b.Dx(), b.Dy())
	}
}
