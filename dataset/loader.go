package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/reef-ai/go-seg/images"
	"github.com/reef-ai/go-seg/masks"
)

// Batch is one training batch: network inputs in NCHW layout with values
// scaled to [0, 1], and one-hot targets in NHWC layout.
type Batch struct {
	// Inputs has shape (N, 3, size, size).
	Inputs *tensor.Dense
	// Targets has shape (N, size, size, numClasses).
	Targets *tensor.Dense
}

// LoaderConfig controls batch assembly. The effective batch size is
// CropsPerImage * ImagesPerBatch: every sample contributes CropsPerImage
// random crops, and ImagesPerBatch samples are collated per batch.
type LoaderConfig struct {
	// InputSize is the square side length fed to the network.
	InputSize int
	// CropsPerImage is the number of random crops taken from each sample.
	CropsPerImage int
	// ImagesPerBatch is the number of samples collated into one batch.
	ImagesPerBatch int
	// CropMin and CropMax bound the random crop side length in source pixels.
	CropMin int
	CropMax int
	// Flip enables random horizontal flips.
	Flip bool
	// Shuffle randomizes sample order each epoch (training); validation
	// loaders keep file order.
	Shuffle bool
	// Seed fixes the loader's randomness. The same seed and epoch always
	// produce the same batches.
	Seed int64
}

// Loader iterates a DataSet in batches.
type Loader struct {
	data *DataSet
	cfg  LoaderConfig
}

// NewLoader validates the configuration and builds a Loader.
func NewLoader(data *DataSet, cfg LoaderConfig) (*Loader, error) {
	if cfg.InputSize <= 0 {
		return nil, errors.Errorf("input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.CropsPerImage <= 0 || cfg.ImagesPerBatch <= 0 {
		return nil, errors.Errorf("crops per image (%d) and images per batch (%d) must be positive",
			cfg.CropsPerImage, cfg.ImagesPerBatch)
	}
	if cfg.CropMin <= 0 || cfg.CropMax < cfg.CropMin {
		return nil, errors.Errorf("invalid crop range [%d, %d]", cfg.CropMin, cfg.CropMax)
	}
	return &Loader{data: data, cfg: cfg}, nil
}

// BatchSize returns the number of crops per batch.
func (l *Loader) BatchSize() int {
	return l.cfg.CropsPerImage * l.cfg.ImagesPerBatch
}

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	n := l.data.Len() / l.cfg.ImagesPerBatch
	if l.data.Len()%l.cfg.ImagesPerBatch != 0 {
		n++
	}
	return n
}

// ForEachBatch assembles the epoch's batches in order and hands each to fn.
// Iteration stops on the first error. Passing the same epoch twice yields
// identical batches: all randomness derives from Seed and epoch.
func (l *Loader) ForEachBatch(epoch int, fn func(batch *Batch) error) error {
	rng := rand.New(rand.NewSource(l.cfg.Seed + int64(epoch)))

	order := make([]int, l.data.Len())
	for i := range order {
		order[i] = i
	}
	if l.cfg.Shuffle {
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	crop := RandomCrop{MinSize: l.cfg.CropMin, MaxSize: l.cfg.CropMax}
	resizeTo := Resize{Size: l.cfg.InputSize}
	flip := Flip{Probability: 0.5}

	for start := 0; start < len(order); start += l.cfg.ImagesPerBatch {
		end := min(start+l.cfg.ImagesPerBatch, len(order))

		var imgCrops, maskCrops []*images.Grid
		for _, idx := range order[start:end] {
			img, mask, err := l.data.LoadPair(idx)
			if err != nil {
				return err
			}
			for c := 0; c < l.cfg.CropsPerImage; c++ {
				cImg, cMask, err := crop.Apply(img, mask, rng)
				if err != nil {
					return err
				}
				cImg, cMask, err = resizeTo.Apply(cImg, cMask, rng)
				if err != nil {
					return err
				}
				if l.cfg.Flip {
					cImg, cMask, err = flip.Apply(cImg, cMask, rng)
					if err != nil {
						return err
					}
				}
				imgCrops = append(imgCrops, cImg)
				maskCrops = append(maskCrops, cMask)
			}
		}

		batch, err := l.collate(imgCrops, maskCrops)
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// collate stacks crops into batch tensors: NCHW inputs scaled to [0, 1] and
// NHWC one-hot targets.
func (l *Loader) collate(imgCrops, maskCrops []*images.Grid) (*Batch, error) {
	n := len(imgCrops)
	size := l.cfg.InputSize
	numClasses := l.data.NumClasses()

	inputs := make([]float32, n*3*size*size)
	targets := make([]float32, n*size*size*numClasses)

	for b, img := range imgCrops {
		base := b * 3 * size * size
		plane := size * size
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				for c := 0; c < 3; c++ {
					inputs[base+c*plane+y*size+x] = float32(img.At(x, y, c)) / 255.0
				}
			}
		}

		oneHot, err := masks.ToOneHot(maskCrops[b], l.data.Mapping())
		if err != nil {
			return nil, err
		}
		copy(targets[b*size*size*numClasses:], oneHot.Data().([]float32))
	}

	return &Batch{
		Inputs: tensor.New(
			tensor.WithShape(n, 3, size, size),
			tensor.WithBacking(inputs),
		),
		Targets: tensor.New(
			tensor.WithShape(n, size, size, numClasses),
			tensor.WithBacking(targets),
		),
	}, nil
}
