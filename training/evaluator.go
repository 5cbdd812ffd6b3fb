// Package training drives the epoch loop for a segmentation model: batches
// in, loss out, validation metrics tracked and the best model checkpointed.
// The model itself is an external collaborator behind the Model interface;
// this package makes no device or framework decisions.
package training

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/reef-ai/go-seg/images"
)

// Evaluator accumulates a confusion matrix over class-index masks and
// derives the usual segmentation metrics from it. Rows are ground truth,
// columns are predictions.
type Evaluator struct {
	numClasses int
	confusion  []float64
}

// NewEvaluator builds an evaluator for the given number of classes.
func NewEvaluator(numClasses int) *Evaluator {
	return &Evaluator{
		numClasses: numClasses,
		confusion:  make([]float64, numClasses*numClasses),
	}
}

// Reset clears the confusion matrix for the next epoch.
func (e *Evaluator) Reset() {
	for i := range e.confusion {
		e.confusion[i] = 0
	}
}

// AddBatch accumulates one pair of class-index masks. Target and prediction
// must be single-channel grids of identical shape; indices outside
// [0, numClasses) are rejected.
func (e *Evaluator) AddBatch(target, pred *images.Grid) error {
	if target.Channels != 1 || pred.Channels != 1 {
		return fmt.Errorf("evaluator expects single-channel class masks")
	}
	if target.Width != pred.Width || target.Height != pred.Height {
		return fmt.Errorf("target %dx%d and prediction %dx%d differ in size",
			target.Width, target.Height, pred.Width, pred.Height)
	}

	for i, gt := range target.Pix {
		pr := pred.Pix[i]
		if int(gt) >= e.numClasses || int(pr) >= e.numClasses {
			return fmt.Errorf("class index out of range: target %d, prediction %d", gt, pr)
		}
		e.confusion[int(gt)*e.numClasses+int(pr)]++
	}
	return nil
}

// PixelAccuracy returns the fraction of pixels predicted correctly.
func (e *Evaluator) PixelAccuracy() float64 {
	total := floats.Sum(e.confusion)
	if total == 0 {
		return 0
	}
	return e.trace() / total
}

// PixelAccuracyClass returns per-class accuracy averaged over the classes
// that appear in the ground truth.
func (e *Evaluator) PixelAccuracyClass() float64 {
	sum := 0.0
	seen := 0
	for c := 0; c < e.numClasses; c++ {
		gt := floats.Sum(e.row(c))
		if gt == 0 {
			continue
		}
		sum += e.confusion[c*e.numClasses+c] / gt
		seen++
	}
	if seen == 0 {
		return 0
	}
	return sum / float64(seen)
}

// MeanIoU returns the intersection-over-union averaged over the classes
// that appear in ground truth or prediction.
func (e *Evaluator) MeanIoU() float64 {
	sum := 0.0
	seen := 0
	for c := 0; c < e.numClasses; c++ {
		union := floats.Sum(e.row(c)) + e.colSum(c) - e.confusion[c*e.numClasses+c]
		if union == 0 {
			continue
		}
		sum += e.confusion[c*e.numClasses+c] / union
		seen++
	}
	if seen == 0 {
		return 0
	}
	return sum / float64(seen)
}

// FrequencyWeightedIoU returns the IoU of each class weighted by the
// class's ground-truth pixel frequency.
func (e *Evaluator) FrequencyWeightedIoU() float64 {
	total := floats.Sum(e.confusion)
	if total == 0 {
		return 0
	}

	sum := 0.0
	for c := 0; c < e.numClasses; c++ {
		gt := floats.Sum(e.row(c))
		if gt == 0 {
			continue
		}
		union := gt + e.colSum(c) - e.confusion[c*e.numClasses+c]
		if union == 0 {
			continue
		}
		sum += (gt / total) * (e.confusion[c*e.numClasses+c] / union)
	}
	return sum
}

func (e *Evaluator) row(c int) []float64 {
	return e.confusion[c*e.numClasses : (c+1)*e.numClasses]
}

func (e *Evaluator) colSum(c int) float64 {
	sum := 0.0
	for r := 0; r < e.numClasses; r++ {
		sum += e.confusion[r*e.numClasses+c]
	}
	return sum
}

func (e *Evaluator) trace() float64 {
	sum := 0.0
	for c := 0; c < e.numClasses; c++ {
		sum += e.confusion[c*e.numClasses+c]
	}
	return sum
}
