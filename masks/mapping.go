// Package masks converts between the three representations of a
// segmentation mask: colour-coded pixels, class-index pixels and one-hot
// class arrays. All conversions are driven by a ColourMapping, and all of
// them derive class indices from the same sorted class-name order.
package masks

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// ColourMapping maps a class name to the colour code its pixels carry in a
// mask image. The mapping fixes a deterministic class index: classes are
// numbered by sorted class name (see ClassOrder).
type ColourMapping map[string]uint8

// ClassOrder returns the class names sorted lexicographically. This order IS
// the canonical class-index assignment: index i belongs to ClassOrder(m)[i].
// Every codec and weight function derives its indices from this function and
// nowhere else, so the assignment cannot drift between callers.
func ClassOrder(mapping ColourMapping) []string {
	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumClasses returns the number of classes in the mapping.
func (m ColourMapping) NumClasses() int {
	return len(m)
}

// LoadColourMapping reads a JSON object mapping class name to colour code,
// e.g. {"background": 0, "coral": 117}. Colour values must fit a byte.
func LoadColourMapping(path string) (ColourMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading colour mapping")
	}

	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing colour mapping")
	}
	if len(raw) == 0 {
		return nil, errors.New("colour mapping is empty")
	}

	mapping := make(ColourMapping, len(raw))
	for name, colour := range raw {
		if colour < 0 || colour > 255 {
			return nil, fmt.Errorf("colour %d for class %q does not fit a byte", colour, name)
		}
		mapping[name] = uint8(colour)
	}
	return mapping, nil
}
