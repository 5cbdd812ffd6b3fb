package images

import (
	"fmt"
	"image"
	"image/color"
)

// Grid is a plain in-memory pixel buffer: Channels interleaved values per
// pixel, rows stored top to bottom. A colour-coded segmentation mask is a
// one-channel Grid; an RGB photograph is a three-channel Grid.
type Grid struct {
	// Width is the number of pixels per row.
	Width int
	// Height is the number of rows.
	Height int
	// Channels is the number of values per pixel.
	Channels int
	// Pix holds Width*Height*Channels values, row-major, channels interleaved.
	Pix []uint8
}

// NewGrid allocates a zeroed Grid of the given shape.
func NewGrid(width, height, channels int) *Grid {
	return &Grid{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// At returns the value of channel c of the pixel at (x, y).
func (g *Grid) At(x, y, c int) uint8 {
	return g.Pix[(y*g.Width+x)*g.Channels+c]
}

// Set stores v into channel c of the pixel at (x, y).
func (g *Grid) Set(x, y, c int, v uint8) {
	g.Pix[(y*g.Width+x)*g.Channels+c] = v
}

// Bounds returns the grid's extent as a Rect anchored at the origin.
func (g *Grid) Bounds() Rect {
	return Rect{X1: 0, Y1: 0, X2: g.Width, Y2: g.Height}
}

// Crop copies the pixels inside r into a new Grid. The rectangle must lie
// fully inside the grid.
func (g *Grid) Crop(r Rect) (*Grid, error) {
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > g.Width || r.Y2 > g.Height || r.X1 > r.X2 || r.Y1 > r.Y2 {
		return nil, fmt.Errorf("crop rectangle %+v outside grid bounds %dx%d", r, g.Width, g.Height)
	}
	out := NewGrid(r.Width(), r.Height(), g.Channels)
	rowLen := r.Width() * g.Channels
	for y := r.Y1; y < r.Y2; y++ {
		src := (y*g.Width + r.X1) * g.Channels
		dst := (y - r.Y1) * rowLen
		copy(out.Pix[dst:dst+rowLen], g.Pix[src:src+rowLen])
	}
	return out, nil
}

// GridFromImage converts a decoded image into a three-channel RGB Grid.
func GridFromImage(img image.Image) *Grid {
	bounds := img.Bounds()
	g := NewGrid(bounds.Dx(), bounds.Dy(), 3)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, gr, b, _ := img.At(x, y).RGBA()
			g.Pix[i] = uint8(r >> 8)
			g.Pix[i+1] = uint8(gr >> 8)
			g.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}
	return g
}

// GridFromGray converts a decoded image into a one-channel Grid using the
// red channel of each pixel. Colour-coded masks store their label code in
// every channel, so any single channel carries the full label.
func GridFromGray(img image.Image) *Grid {
	bounds := img.Bounds()
	g := NewGrid(bounds.Dx(), bounds.Dy(), 1)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			g.Pix[i] = uint8(r >> 8)
			i++
		}
	}
	return g
}

// ToImage converts the grid back into a stdlib image. One-channel grids
// become grayscale, three-channel grids become RGBA.
func (g *Grid) ToImage() (image.Image, error) {
	switch g.Channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: g.At(x, y, 0)})
			}
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
		for y := 0; y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				img.SetRGBA(x, y, color.RGBA{R: g.At(x, y, 0), G: g.At(x, y, 1), B: g.At(x, y, 2), A: 255})
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("cannot convert %d-channel grid to image", g.Channels)
	}
}
