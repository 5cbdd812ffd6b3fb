package dataset

import (
	"fmt"
	"math/rand"

	"github.com/nfnt/resize"

	"github.com/reef-ai/go-seg/images"
)

// Transform mutates a training pair. Image and mask always move together so
// pixels and labels stay aligned.
type Transform interface {
	Apply(img, mask *images.Grid, rng *rand.Rand) (*images.Grid, *images.Grid, error)
}

// RandomCrop cuts a random square between MinSize and MaxSize pixels. Crops
// larger than the image are clamped to the shorter image side.
type RandomCrop struct {
	MinSize int
	MaxSize int
}

// Apply cuts the same random square out of image and mask.
func (c RandomCrop) Apply(img, mask *images.Grid, rng *rand.Rand) (*images.Grid, *images.Grid, error) {
	if c.MinSize <= 0 || c.MaxSize < c.MinSize {
		return nil, nil, fmt.Errorf("invalid crop range [%d, %d]", c.MinSize, c.MaxSize)
	}

	side := c.MinSize
	if c.MaxSize > c.MinSize {
		side += rng.Intn(c.MaxSize - c.MinSize + 1)
	}
	side = min(side, min(img.Width, img.Height))

	x := 0
	if img.Width > side {
		x = rng.Intn(img.Width - side + 1)
	}
	y := 0
	if img.Height > side {
		y = rng.Intn(img.Height - side + 1)
	}

	r := images.Rect{X1: x, Y1: y, X2: x + side, Y2: y + side}
	croppedImg, err := img.Crop(r)
	if err != nil {
		return nil, nil, err
	}
	croppedMask, err := mask.Crop(r)
	if err != nil {
		return nil, nil, err
	}
	return croppedImg, croppedMask, nil
}

// Resize scales the pair to Size x Size. The image is resampled with
// Lanczos3; the mask with nearest neighbour, because interpolating colour
// codes would invent labels that exist in no class.
type Resize struct {
	Size int
}

// Apply resizes image and mask to the configured square size.
func (t Resize) Apply(img, mask *images.Grid, _ *rand.Rand) (*images.Grid, *images.Grid, error) {
	if t.Size <= 0 {
		return nil, nil, fmt.Errorf("invalid resize target %d", t.Size)
	}

	srcImg, err := img.ToImage()
	if err != nil {
		return nil, nil, err
	}
	srcMask, err := mask.ToImage()
	if err != nil {
		return nil, nil, err
	}

	resizedImg := resize.Resize(uint(t.Size), uint(t.Size), srcImg, resize.Lanczos3)
	resizedMask := resize.Resize(uint(t.Size), uint(t.Size), srcMask, resize.NearestNeighbor)

	return images.GridFromImage(resizedImg), images.GridFromGray(resizedMask), nil
}

// Flip mirrors the pair horizontally with the given probability.
type Flip struct {
	Probability float64
}

// Apply flips image and mask together, or returns them untouched.
func (f Flip) Apply(img, mask *images.Grid, rng *rand.Rand) (*images.Grid, *images.Grid, error) {
	if rng.Float64() >= f.Probability {
		return img, mask, nil
	}
	return flipHorizontal(img), flipHorizontal(mask), nil
}

func flipHorizontal(g *images.Grid) *images.Grid {
	out := images.NewGrid(g.Width, g.Height, g.Channels)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			for c := 0; c < g.Channels; c++ {
				out.Set(g.Width-1-x, y, c, g.At(x, y, c))
			}
		}
	}
	return out
}
