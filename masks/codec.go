package masks

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/reef-ai/go-seg/images"
)

// requireMask checks that g is a single-channel grid, the only shape the
// codec accepts.
func requireMask(g *images.Grid) error {
	if g.Channels != 1 {
		return fmt.Errorf("mask must have 1 channel, got %d", g.Channels)
	}
	return nil
}

// colourToIndex builds a colour -> class index lookup table from the
// canonical class order. Colours that belong to no class map to -1.
func colourToIndex(mapping ColourMapping) [256]int {
	var table [256]int
	for i := range table {
		table[i] = -1
	}
	for i, name := range ClassOrder(mapping) {
		table[mapping[name]] = i
	}
	return table
}

// ToOneHot converts a colour-coded mask into a one-hot array of shape
// (height, width, numClasses), float32, where channel i is 1 wherever the
// mask carries class i's colour.
//
// Pixels whose colour matches no class leave all channels 0. Such an
// all-zero vector is not one-hot in the strict sense; it is produced
// silently, mirroring the unmapped-colour behaviour of ColourToClassID.
func ToOneHot(mask *images.Grid, mapping ColourMapping) (*tensor.Dense, error) {
	if err := requireMask(mask); err != nil {
		return nil, err
	}

	numClasses := mapping.NumClasses()
	table := colourToIndex(mapping)

	backing := make([]float32, mask.Width*mask.Height*numClasses)
	for p, colour := range mask.Pix {
		if i := table[colour]; i >= 0 {
			backing[p*numClasses+i] = 1
		}
	}

	return tensor.New(
		tensor.WithShape(mask.Height, mask.Width, numClasses),
		tensor.WithBacking(backing),
	), nil
}

// ColourToClassID converts a colour-coded mask into a class-index mask of
// the same spatial shape. Values are in [0, numClasses).
//
// Pixels whose colour matches no class keep index 0, which is
// indistinguishable from genuine class 0. This ambiguity is deliberate: it
// preserves the historical background fallback of the mask format.
func ColourToClassID(mask *images.Grid, mapping ColourMapping) (*images.Grid, error) {
	if err := requireMask(mask); err != nil {
		return nil, err
	}
	if mapping.NumClasses() > 256 {
		return nil, fmt.Errorf("class index mask cannot hold %d classes", mapping.NumClasses())
	}

	table := colourToIndex(mapping)
	out := images.NewGrid(mask.Width, mask.Height, 1)
	for p, colour := range mask.Pix {
		if i := table[colour]; i >= 0 {
			out.Pix[p] = uint8(i)
		}
	}
	return out, nil
}

// ClassIDToColour is the inverse of ColourToClassID: it paints each class
// index with the class's colour. Indices with no mapping entry produce
// colour 0. That cannot happen for masks produced by this codec, but the
// behaviour is defined for arbitrary input.
func ClassIDToColour(classID *images.Grid, mapping ColourMapping) (*images.Grid, error) {
	if err := requireMask(classID); err != nil {
		return nil, err
	}

	order := ClassOrder(mapping)
	colours := make([]uint8, len(order))
	for i, name := range order {
		colours[i] = mapping[name]
	}

	out := images.NewGrid(classID.Width, classID.Height, 1)
	for p, idx := range classID.Pix {
		if int(idx) < len(colours) {
			out.Pix[p] = colours[idx]
		}
	}
	return out, nil
}

// OneHotToColour converts a one-hot array of shape (height, width,
// numClasses) back into a colour-coded mask.
//
// Channels are applied in ascending class-index order and each writes its
// colour wherever its value is 1, so if several channels are simultaneously
// on for one pixel the colour of the highest class index wins
// (last-write-wins by ascending class index). Pixels with no on-channel
// stay 0.
func OneHotToColour(oneHot *tensor.Dense, mapping ColourMapping) (*images.Grid, error) {
	shape := oneHot.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("one-hot array must have 3 dimensions, got shape %v", shape)
	}
	if shape[2] != mapping.NumClasses() {
		return nil, fmt.Errorf("one-hot array has %d channels, mapping has %d classes", shape[2], mapping.NumClasses())
	}
	if oneHot.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("one-hot array must be float32, got %v", oneHot.Dtype())
	}

	height, width, numClasses := shape[0], shape[1], shape[2]
	order := ClassOrder(mapping)
	data := oneHot.Data().([]float32)

	out := images.NewGrid(width, height, 1)
	for p := 0; p < width*height; p++ {
		for i := 0; i < numClasses; i++ {
			if data[p*numClasses+i] == 1 {
				out.Pix[p] = mapping[order[i]]
			}
		}
	}
	return out, nil
}
