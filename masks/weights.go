package masks

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// ErrMissingClassStats is returned when the mapping names a class the stats
// file has no entry for.
var ErrMissingClassStats = errors.New("missing class statistics")

// DefaultWeightModifier keeps the logarithm argument away from zero for
// classes with a vanishing pixel share.
const DefaultWeightModifier = 1.01

// ClassStat holds the pixel-frequency statistics of one class.
type ClassStat struct {
	// Share is the fraction of all pixels belonging to this class.
	Share float64 `json:"share"`
}

// ClassStats maps class name to its pixel statistics.
type ClassStats map[string]ClassStat

// LoadClassStats reads a JSON object mapping class name to a record with at
// least a "share" field.
func LoadClassStats(path string) (ClassStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading class stats")
	}
	var stats ClassStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, errors.Wrap(err, "parsing class stats")
	}
	return stats, nil
}

// CalculateClassWeights derives one loss weight per class from the class
// pixel shares:
//
//	weight_i = 1 / ln(modifier + share_i)
//
// Weights are ordered by ClassOrder, so index i matches the codec's class
// index i. Rare classes get large weights, dominant ones small weights; the
// modifier must be > 0 (use DefaultWeightModifier when in doubt) to keep the
// logarithm defined for zero shares.
//
// A class present in the mapping but absent from stats yields an error
// wrapping ErrMissingClassStats.
func CalculateClassWeights(stats ClassStats, mapping ColourMapping, modifier float32) ([]float32, error) {
	if modifier <= 0 {
		return nil, fmt.Errorf("weight modifier must be > 0, got %v", modifier)
	}

	order := ClassOrder(mapping)
	weights := make([]float32, len(order))
	for i, name := range order {
		stat, ok := stats[name]
		if !ok {
			return nil, errors.Wrapf(ErrMissingClassStats, "class %q", name)
		}
		weights[i] = 1 / math32.Log(modifier+float32(stat.Share))
	}
	return weights, nil
}
