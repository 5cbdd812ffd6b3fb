package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reef-ai/go-seg/masks"
)

// writeFixture writes a small RGB image and a two-colour mask with matching
// names into images/ and masks/ under dir.
func writeFixture(t *testing.T, dir, name string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 30, A: 255})
			code := uint8(50)
			if x >= w/2 {
				code = 200
			}
			mask.SetGray(x, y, color.Gray{Y: code})
		}
	}

	for sub, m := range map[string]image.Image{"images": img, "masks": mask} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		f, err := os.Create(filepath.Join(dir, sub, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, m))
		require.NoError(t, f.Close())
	}
}

func testDataSet(t *testing.T, numSamples int) *DataSet {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < numSamples; i++ {
		writeFixture(t, dir, "img-"+string(rune('a'+i))+".png", 40, 40)
	}
	samples, err := ListPairs(filepath.Join(dir, "images"), filepath.Join(dir, "masks"))
	require.NoError(t, err)
	require.Len(t, samples, numSamples)

	mapping := masks.ColourMapping{"coral": 200, "sand": 50}
	return New(dir, samples, mapping)
}

func TestListPairs_SkipsUnmatchedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.png", 8, 8)
	// An image with no mask.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "images", "orphan.png"), []byte("x"), 0o644))

	samples, err := ListPairs(filepath.Join(dir, "images"), filepath.Join(dir, "masks"))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Contains(t, samples[0].ImageFile, "a.png")
}

func TestLoadPair(t *testing.T) {
	d := testDataSet(t, 1)

	img, mask, err := d.LoadPair(0)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Channels)
	assert.Equal(t, 1, mask.Channels)
	assert.Equal(t, img.Width, mask.Width)

	// Mask labels survive the PNG round trip exactly.
	assert.Equal(t, uint8(50), mask.At(0, 0, 0))
	assert.Equal(t, uint8(200), mask.At(img.Width-1, 0, 0))
}

func TestLoader_BatchShapes(t *testing.T) {
	d := testDataSet(t, 3)

	loader, err := NewLoader(d, LoaderConfig{
		InputSize:      16,
		CropsPerImage:  2,
		ImagesPerBatch: 2,
		CropMin:        20,
		CropMax:        32,
		Flip:           true,
		Shuffle:        true,
		Seed:           7,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, loader.BatchSize())
	assert.Equal(t, 2, loader.NumBatches())

	var batches []*Batch
	err = loader.ForEachBatch(0, func(b *Batch) error {
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, batches, 2)

	// Full batch: 2 samples x 2 crops; trailing batch: 1 sample x 2 crops.
	assert.Equal(t, []int{4, 3, 16, 16}, []int(batches[0].Inputs.Shape()))
	assert.Equal(t, []int{4, 16, 16, 2}, []int(batches[0].Targets.Shape()))
	assert.Equal(t, []int{2, 3, 16, 16}, []int(batches[1].Inputs.Shape()))

	// Inputs are scaled to [0, 1]; every target pixel is one-hot.
	for _, v := range batches[0].Inputs.Data().([]float32) {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	targets := batches[0].Targets.Data().([]float32)
	for p := 0; p < len(targets); p += 2 {
		assert.Equal(t, float32(1), targets[p]+targets[p+1], "pixel %d not one-hot", p/2)
	}
}

func TestLoader_DeterministicPerEpoch(t *testing.T) {
	d := testDataSet(t, 2)

	loader, err := NewLoader(d, LoaderConfig{
		InputSize:      8,
		CropsPerImage:  1,
		ImagesPerBatch: 1,
		CropMin:        16,
		CropMax:        24,
		Flip:           true,
		Shuffle:        true,
		Seed:           42,
	})
	require.NoError(t, err)

	collect := func(epoch int) [][]float32 {
		var out [][]float32
		require.NoError(t, loader.ForEachBatch(epoch, func(b *Batch) error {
			out = append(out, b.Inputs.Data().([]float32))
			return nil
		}))
		return out
	}

	first := collect(3)
	second := collect(3)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestNewLoader_Validation(t *testing.T) {
	d := testDataSet(t, 1)

	_, err := NewLoader(d, LoaderConfig{InputSize: 0, CropsPerImage: 1, ImagesPerBatch: 1, CropMin: 8, CropMax: 8})
	assert.Error(t, err)
	_, err = NewLoader(d, LoaderConfig{InputSize: 8, CropsPerImage: 0, ImagesPerBatch: 1, CropMin: 8, CropMax: 8})
	assert.Error(t, err)
	_, err = NewLoader(d, LoaderConfig{InputSize: 8, CropsPerImage: 1, ImagesPerBatch: 1, CropMin: 8, CropMax: 4})
	assert.Error(t, err)
}
