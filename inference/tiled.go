package inference

import (
	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	"github.com/reef-ai/go-seg/images"
)

// Predictor segments fixed-size RGB grids. *Session implements it; tests
// substitute their own.
type Predictor interface {
	InputSize() int
	Predict(g *images.Grid) (*images.Grid, error)
}

// PredictTiled segments an image of any size. Images larger than the
// model's input are cut into overlapping windows (step = half the window),
// each window is segmented on its own and the class masks are stitched back
// at their origins, later windows overwriting earlier ones in overlap
// regions. Images that do not fit a single window on either axis are
// resized through the model instead.
func PredictTiled(p Predictor, g *images.Grid) (*images.Grid, error) {
	size := p.InputSize()
	if g.Width < size || g.Height < size {
		return predictResized(p, g)
	}

	windows, err := images.CutWindows(g, size, size/2)
	if err != nil {
		return nil, err
	}

	out := images.NewGrid(g.Width, g.Height, 1)
	for _, win := range windows {
		pred, err := p.Predict(win.Grid)
		if err != nil {
			return nil, errors.Wrapf(err, "window at (%d, %d)", win.Origin.X, win.Origin.Y)
		}
		paste(out, pred, win.Origin.X, win.Origin.Y)
	}
	return out, nil
}

// predictResized squeezes the whole image through a single model pass and
// scales the class mask back up with nearest neighbour.
func predictResized(p Predictor, g *images.Grid) (*images.Grid, error) {
	size := p.InputSize()

	src, err := g.ToImage()
	if err != nil {
		return nil, err
	}
	scaled := images.GridFromImage(resize.Resize(uint(size), uint(size), src, resize.Lanczos3))

	pred, err := p.Predict(scaled)
	if err != nil {
		return nil, err
	}

	predImg, err := pred.ToImage()
	if err != nil {
		return nil, err
	}
	restored := resize.Resize(uint(g.Width), uint(g.Height), predImg, resize.NearestNeighbor)
	return images.GridFromGray(restored), nil
}

// paste copies src into dst with its top-left corner at (x, y).
func paste(dst, src *images.Grid, x, y int) {
	for sy := 0; sy < src.Height; sy++ {
		dstRow := ((y+sy)*dst.Width + x)
		srcRow := sy * src.Width
		copy(dst.Pix[dstRow:dstRow+src.Width], src.Pix[srcRow:srcRow+src.Width])
	}
}
