package dataset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reef-ai/go-seg/images"
)

func testPair(w, h int) (*images.Grid, *images.Grid) {
	img := images.NewGrid(w, h, 3)
	mask := images.NewGrid(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, 0, uint8(x))
			img.Set(x, y, 1, uint8(y))
			img.Set(x, y, 2, uint8(x+y))
			mask.Set(x, y, 0, uint8((x+y)%2*200))
		}
	}
	return img, mask
}

func TestRandomCrop(t *testing.T) {
	img, mask := testPair(64, 48)
	rng := rand.New(rand.NewSource(1))

	crop := RandomCrop{MinSize: 16, MaxSize: 32}
	for i := 0; i < 50; i++ {
		cImg, cMask, err := crop.Apply(img, mask, rng)
		require.NoError(t, err)

		assert.Equal(t, cImg.Width, cImg.Height, "crop must be square")
		assert.GreaterOrEqual(t, cImg.Width, 16)
		assert.LessOrEqual(t, cImg.Width, 32)
		assert.Equal(t, cImg.Width, cMask.Width)
		assert.Equal(t, cImg.Height, cMask.Height)
	}
}

func TestRandomCrop_LargerThanImageClamps(t *testing.T) {
	img, mask := testPair(20, 12)
	rng := rand.New(rand.NewSource(1))

	crop := RandomCrop{MinSize: 30, MaxSize: 40}
	cImg, cMask, err := crop.Apply(img, mask, rng)
	require.NoError(t, err)
	assert.Equal(t, 12, cImg.Width)
	assert.Equal(t, 12, cMask.Height)
}

func TestRandomCrop_InvalidRange(t *testing.T) {
	img, mask := testPair(20, 20)
	rng := rand.New(rand.NewSource(1))

	_, _, err := RandomCrop{MinSize: 0, MaxSize: 10}.Apply(img, mask, rng)
	assert.Error(t, err)
	_, _, err = RandomCrop{MinSize: 10, MaxSize: 5}.Apply(img, mask, rng)
	assert.Error(t, err)
}

func TestResize_PreservesMaskLabels(t *testing.T) {
	img := images.NewGrid(32, 32, 3)
	mask := images.NewGrid(32, 32, 1)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			// Two label regions: left colour 50, right colour 200.
			if x < 16 {
				mask.Set(x, y, 0, 50)
			} else {
				mask.Set(x, y, 0, 200)
			}
		}
	}

	rImg, rMask, err := Resize{Size: 16}.Apply(img, mask, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, rImg.Width)
	assert.Equal(t, 16, rImg.Height)
	assert.Equal(t, 16, rMask.Width)

	// Nearest-neighbour resampling must not invent label codes.
	for _, v := range rMask.Pix {
		assert.Contains(t, []uint8{50, 200}, v)
	}
}

func TestFlip(t *testing.T) {
	img, mask := testPair(8, 4)

	// Probability 1 always flips.
	rng := rand.New(rand.NewSource(1))
	fImg, fMask, err := Flip{Probability: 1}.Apply(img, mask, rng)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, img.At(x, y, 0), fImg.At(7-x, y, 0))
			assert.Equal(t, mask.At(x, y, 0), fMask.At(7-x, y, 0))
		}
	}

	// Probability 0 never does.
	uImg, uMask, err := Flip{Probability: 0}.Apply(img, mask, rng)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, uImg.Pix)
	assert.Equal(t, mask.Pix, uMask.Pix)
}
