package raster

import (
	"image"
	"image/color"
	"testing"
)

// blankPaletted returns a width x height bitonal image with every pixel
// white (index 1), the background packLine expects.
func blankPaletted(width, height int) *image.Paletted {
	pal := color.Palette{color.Gray{Y: 0x00}, color.Gray{Y: 0xff}}
	img := image.NewPaletted(image.Rect(0, 0, width, height), pal)
	for i := range img.Pix {
		img.Pix[i] = 1
	}
	return img
}

func TestPackLineBitPlacement(t *testing.T) {
	cases := []struct {
		col      int
		wantByte int
		wantBit  uint
	}{
		{0, 89, 0},
		{5, 89, 5},
		{8, 88, 0},
		{719, 0, 7},
	}
	for _, c := range cases {
		img := blankPaletted(720, 1)
		img.SetColorIndex(c.col, 0, 0) // black
		line := packLine(img, 0, 720)

		for b := 0; b < LineBytes; b++ {
			if b == c.wantByte {
				if line[b] != 1<<c.wantBit {
					t.Errorf("col %d: byte %d = %#02x, want %#02x", c.col, b, line[b], byte(1<<c.wantBit))
				}
			} else if line[b] != 0 {
				t.Errorf("col %d: byte %d = %#02x, want 0", c.col, b, line[b])
			}
		}
	}
}

func TestPackLineColumnsBeyondWidthLeftZero(t *testing.T) {
	img := blankPaletted(10, 1)
	img.SetColorIndex(9, 0, 0) // black, but beyond the requested width
	line := packLine(img, 0, 5)
	for b := 0; b < LineBytes; b++ {
		if line[b] != 0 {
			t.Errorf("byte %d = %#02x, want 0 (column 9 is beyond width 5)", b, line[b])
		}
	}
}

func TestRotate90CW(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 10})
	src.SetGray(1, 0, color.Gray{Y: 20})

	rot := rotate90CW(src)
	b := rot.Bounds()
	if b.Dx() != 1 || b.Dy() != 2 {
		t.Fatalf("rotated bounds = %v, want 1x2", b)
	}
	if y := color.GrayModel.Convert(rot.At(0, 0)).(color.Gray).Y; y != 10 {
		t.Errorf("rotated(0,0) = %d, want 10 (left edge becomes top)", y)
	}
	if y := color.GrayModel.Convert(rot.At(0, 1)).(color.Gray).Y; y != 20 {
		t.Errorf("rotated(0,1) = %d, want 20 (right edge becomes bottom)", y)
	}
}

func TestToBlackAndWhiteThreshold(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 127}) // black
	gray.SetGray(1, 0, color.Gray{Y: 128}) // white

	bw := toBlackAndWhite(gray, false)
	if bw.ColorIndexAt(0, 0) != 0 {
		t.Errorf("pixel at luma 127 classified as white, want black")
	}
	if bw.ColorIndexAt(1, 0) != 1 {
		t.Errorf("pixel at luma 128 classified as black, want white")
	}
}

func TestEncodeLineCountMatchesAspectLaw(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 400, 200))
	lines, err := Encode(src, 100, Normal, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantHeight := 100 * 200 / 400
	if len(lines) != wantHeight {
		t.Errorf("line count = %d, want %d (aspect law)", len(lines), wantHeight)
	}
}

func TestEncodeRejectsOutOfRangeWidth(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	if _, err := Encode(src, 0, Normal, false); err == nil {
		t.Error("expected error for width 0")
	}
	if _, err := Encode(src, LineWidth+1, Normal, false); err == nil {
		t.Error("expected error for width beyond print head")
	}
}

func TestEncodeRotationIdentity(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}

	rotated, err := Encode(src, 16, Rotated, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preRotated := rotate90CW(src)
	normal, err := Encode(preRotated, 16, Normal, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rotated) != len(normal) {
		t.Fatalf("line count differs: rotated=%d normal=%d", len(rotated), len(normal))
	}
	for i := range rotated {
		if rotated[i] != normal[i] {
			t.Errorf("line %d differs between Rotated and pre-rotated Normal encoding", i)
		}
	}
}
