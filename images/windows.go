package images

import (
	"fmt"
	"image"
)

// Window is a fixed-size crop of a larger grid together with the top-left
// corner it was cut from, so downstream consumers can stitch results back
// into the source image.
type Window struct {
	// Origin is the top-left corner of the window in source coordinates.
	Origin image.Point
	// Grid holds the cropped pixels.
	Grid *Grid
}

// CutWindows cuts a grid into equally sized square windows of side
// windowSize, advancing by stepSize on each axis. stepSize controls the
// overlap between neighbouring windows; if it is <= 0 it defaults to
// windowSize/2.
//
// Every window is exactly windowSize x windowSize: near the trailing edges
// the window's end coordinate is clamped to the grid boundary and its start
// recomputed backward, so the requested step may not be honoured there but
// the window size always is. If clamping would produce a window whose start
// coordinate repeats the previously emitted one on that axis, that axis
// stops advancing, so no duplicate windows are emitted.
//
// Windows are returned in column-major order (all y for x=0, then x=step,
// ...). The result is deterministic: identical inputs produce identical
// windows in identical order.
//
// windowSize must be positive and no larger than either grid dimension;
// anything else is a configuration error.
func CutWindows(g *Grid, windowSize, stepSize int) ([]Window, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}
	if windowSize > g.Width || windowSize > g.Height {
		return nil, fmt.Errorf("window size %d exceeds grid dimensions %dx%d", windowSize, g.Width, g.Height)
	}
	if stepSize <= 0 {
		stepSize = windowSize / 2
	}

	var windows []Window
	last := image.Point{X: -1, Y: -1}
	havePrev := false

	for x := 0; x < g.Width-stepSize; x += stepSize {
		startX := min(x+windowSize, g.Width) - windowSize

		// Clamping at the right edge can land on the previous column again.
		if havePrev && startX == last.X {
			break
		}

		for y := 0; y < g.Height-stepSize; y += stepSize {
			startY := min(y+windowSize, g.Height) - windowSize

			if havePrev && startY == last.Y {
				break
			}

			crop, err := g.Crop(Rect{X1: startX, Y1: startY, X2: startX + windowSize, Y2: startY + windowSize})
			if err != nil {
				return nil, err
			}
			windows = append(windows, Window{Origin: image.Point{X: startX, Y: startY}, Grid: crop})
			last = image.Point{X: startX, Y: startY}
			havePrev = true
		}
	}

	return windows, nil
}
