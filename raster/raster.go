// Package raster converts an arbitrary bitmap into the device's
// fixed-width bitonal raster line stream: resize and optionally rotate to
// the label's printable width, project to grayscale, optionally dither,
// then pack one bit per pixel into fixed 90-byte lines, with the byte
// order reversed across the line (column 0 lands in the last byte).
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/gift"
)

// Orientation controls whether the source image is rotated 90 degrees
// clockwise before it is resized to the label width.
type Orientation int

const (
	Normal Orientation = iota
	Rotated
)

// LineWidth is the number of bit-columns across the print head; LineBytes
// is how many bytes that packs into.
const (
	LineWidth = 720
	LineBytes = 90
)

// Line is one horizontal slice of the output raster, in the device's
// native byte order: column 0 is the low bit of the last byte.
type Line [LineBytes]byte

// Encode runs the full pipeline against src and returns one Line per
// output row. targetWidth is the label's printable dot width (at most
// LineWidth); columns beyond the resized image's width are left zero.
func Encode(src image.Image, targetWidth int, orientation Orientation, dither bool) ([]Line, error) {
	if targetWidth <= 0 || targetWidth > LineWidth {
		return nil, fmt.Errorf("raster: target width %d out of range (0,%d]", targetWidth, LineWidth)
	}

	if orientation == Rotated {
		src = rotate90CW(src)
	}

	sb := src.Bounds()
	targetHeight := int((int64(targetWidth) * int64(sb.Dy())) / int64(sb.Dx()))

	g := gift.New(
		gift.Resize(targetWidth, targetHeight, gift.LanczosResampling),
		gift.Grayscale(),
	)
	gray := image.NewGray(g.Bounds(sb))
	g.Draw(gray, src)

	bw := toBlackAndWhite(gray, dither)

	lines := make([]Line, bw.Bounds().Dy())
	for row := 0; row < len(lines); row++ {
		lines[row] = packLine(bw, row, targetWidth)
	}
	return lines, nil
}

// toBlackAndWhite reduces a grayscale image to a 1-bit black/white
// image.Paletted. Without dithering it applies a flat threshold; with
// dithering it runs the standard library's Floyd-Steinberg error
// diffusion against the same two-entry palette. No library in this
// module's dependency set implements 1-bit halftoning (gift stops at
// 8-bit grayscale), and image/draw's FloydSteinberg is the well-tested,
// idiomatic way to do it in Go, so this is the one place the raster
// pipeline reaches past the example corpus's third-party stack.
func toBlackAndWhite(gray *image.Gray, dither bool) *image.Paletted {
	palette := color.Palette{color.Gray{Y: 0x00}, color.Gray{Y: 0xff}}
	dst := image.NewPaletted(gray.Bounds(), palette)

	if dither {
		draw.FloydSteinberg.Draw(dst, gray.Bounds(), gray, image.Point{})
		return dst
	}

	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if gray.GrayAt(x, y).Y <= 127 {
				dst.SetColorIndex(x, y, 0)
			} else {
				dst.SetColorIndex(x, y, 1)
			}
		}
	}
	return dst
}

// packLine packs one output row into the device's bit order: for column c
// (0-based, left edge of the label), byte index 89-(c>>3) holds bit c%8,
// set iff the pixel is black. Columns at or beyond width are left zero.
func packLine(img *image.Paletted, row, width int) Line {
	var line Line
	b := img.Bounds()
	imgWidth := b.Dx()
	limit := width
	if imgWidth < limit {
		limit = imgWidth
	}
	for c := 0; c < limit; c++ {
		if img.ColorIndexAt(b.Min.X+c, b.Min.Y+row) != 0 {
			continue // index 1 is white
		}
		byteIdx := (LineWidth/8 - 1) - (c >> 3)
		bitPos := uint(c % 8)
		line[byteIdx] |= 1 << bitPos
	}
	return line
}

// rotate90cwImage wraps src so that reading it produces src rotated 90
// degrees clockwise: the left edge becomes the top edge.
type rotate90cwImage struct {
	src    image.Image
	bounds image.Rectangle
}

func rotate90CW(src image.Image) image.Image {
	sb := src.Bounds()
	return &rotate90cwImage{
		src:    src,
		bounds: image.Rect(0, 0, sb.Dy(), sb.Dx()),
	}
}

func (r *rotate90cwImage) ColorModel() color.Model { return r.src.ColorModel() }
func (r *rotate90cwImage) Bounds() image.Rectangle  { return r.bounds }

func (r *rotate90cwImage) At(x, y int) color.Color {
	sb := r.src.Bounds()
	srcX := sb.Min.X + y
	srcY := sb.Max.Y - 1 - x
	return r.src.At(srcX, srcY)
}
