package training

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/reef-ai/go-seg/checkpoints"
	"github.com/reef-ai/go-seg/dataset"
	"github.com/reef-ai/go-seg/images"
	"github.com/reef-ai/go-seg/masks"
)

// Instructions is the flat run configuration. It is persisted verbatim into
// the run directory at construction, so a run can always be reproduced from
// its artifacts.
type Instructions struct {
	ModelName         string  `json:"model_name"`
	NNInputSize       int     `json:"nn_input_size"`
	ColourMappingPath string  `json:"colour_mapping_path"`
	StateDictPath     string  `json:"state_dict_path,omitempty"`
	ClassStatsPath    string  `json:"class_stats_path,omitempty"`
	CropsPerImage     int     `json:"crops_per_image"`
	ImagesPerBatch    int     `json:"images_per_batch"`
	LearningRate      float64 `json:"learning_rate"`
	Epochs            int     `json:"epochs"`
}

// LoadInstructions reads a JSON instructions file.
func LoadInstructions(path string) (Instructions, error) {
	var ins Instructions
	data, err := os.ReadFile(path)
	if err != nil {
		return ins, errors.Wrap(err, "reading instructions")
	}
	if err := json.Unmarshal(data, &ins); err != nil {
		return ins, errors.Wrap(err, "parsing instructions")
	}
	return ins, nil
}

// Model is the narrow contract the trainer needs from a network backend.
// Inputs are NCHW float32 batches, targets NHWC one-hot batches (see
// dataset.Batch). The trainer never looks inside the model's state.
type Model interface {
	// TrainBatch runs one optimization step and returns the batch loss.
	TrainBatch(inputs, targets *tensor.Dense) (float32, error)
	// Predict runs inference and returns per-class scores in NCHW layout.
	Predict(inputs *tensor.Dense) (*tensor.Dense, error)
	// StateBytes serializes the model's parameters for checkpointing.
	StateBytes() ([]byte, error)
}

// Metrics holds one validation pass's results.
type Metrics struct {
	Loss                 float64
	PixelAccuracy        float64
	PixelAccuracyClass   float64
	MeanIoU              float64
	FrequencyWeightedIoU float64
	IsBest               bool
}

// Trainer runs the epoch loop: train batches through the model, validate,
// track the best mean IoU and checkpoint every epoch.
type Trainer struct {
	log          *zap.SugaredLogger
	instructions Instructions
	model        Model
	trainLoader  *dataset.Loader
	validLoader  *dataset.Loader
	saver        *checkpoints.Saver
	evaluator    *Evaluator
	mapping      masks.ColourMapping
	classWeights []float32
	bestScore    float64
}

// NewTrainer prepares a training run: it creates the run directory (failing
// if it already exists), persists the instructions, and computes class
// weights when a stats file is configured. mapping must be the same colour
// mapping the loaders were built with.
func NewTrainer(runDir string, ins Instructions, model Model, mapping masks.ColourMapping,
	trainLoader, validLoader *dataset.Loader, logger *zap.Logger) (*Trainer, error) {

	saver, err := checkpoints.NewSaver(runDir, ins)
	if err != nil {
		return nil, err
	}

	t := &Trainer{
		log:          logger.Sugar(),
		instructions: ins,
		model:        model,
		trainLoader:  trainLoader,
		validLoader:  validLoader,
		saver:        saver,
		evaluator:    NewEvaluator(mapping.NumClasses()),
		mapping:      mapping,
	}

	if ins.ClassStatsPath != "" {
		stats, err := masks.LoadClassStats(ins.ClassStatsPath)
		if err != nil {
			return nil, err
		}
		t.classWeights, err = masks.CalculateClassWeights(stats, mapping, masks.DefaultWeightModifier)
		if err != nil {
			return nil, err
		}
		t.log.Infow("class weights", "order", masks.ClassOrder(mapping), "weights", t.classWeights)
	}

	t.log.Infow("run prepared",
		"model", ins.ModelName,
		"dir", saver.Dir(),
		"classes", mapping.NumClasses(),
		"batch_size", trainLoader.BatchSize(),
	)
	return t, nil
}

// ClassWeights returns the per-class loss weights in canonical class order,
// or nil when no class stats were configured.
func (t *Trainer) ClassWeights() []float32 {
	return t.classWeights
}

// RunDir returns the run's output directory.
func (t *Trainer) RunDir() string {
	return t.saver.Dir()
}

// Run trains for the configured number of epochs, validating and
// checkpointing after each.
func (t *Trainer) Run() error {
	for epoch := 0; epoch < t.instructions.Epochs; epoch++ {
		if err := t.TrainEpoch(epoch); err != nil {
			return err
		}
		if _, err := t.Validate(epoch); err != nil {
			return err
		}
	}
	return nil
}

// TrainEpoch feeds every training batch through the model once.
func (t *Trainer) TrainEpoch(epoch int) error {
	totalLoss := 0.0
	batches := 0

	err := t.trainLoader.ForEachBatch(epoch, func(b *dataset.Batch) error {
		loss, err := t.model.TrainBatch(b.Inputs, b.Targets)
		if err != nil {
			return errors.Wrapf(err, "training batch %d of epoch %d", batches, epoch)
		}
		totalLoss += float64(loss)
		batches++
		t.log.Debugw("train batch", "epoch", epoch, "batch", batches, "loss", loss)
		return nil
	})
	if err != nil {
		return err
	}

	t.log.Infow("epoch trained",
		"epoch", epoch,
		"crops", batches*t.trainLoader.BatchSize(),
		"loss", totalLoss,
	)
	return nil
}

// Validate runs the model over the validation set, computes the epoch's
// metrics and saves a checkpoint, marking it best when the mean IoU improved.
func (t *Trainer) Validate(epoch int) (Metrics, error) {
	t.evaluator.Reset()

	err := t.validLoader.ForEachBatch(epoch, func(b *dataset.Batch) error {
		output, err := t.model.Predict(b.Inputs)
		if err != nil {
			return errors.Wrapf(err, "validating epoch %d", epoch)
		}

		preds, err := ArgmaxNCHW(output)
		if err != nil {
			return err
		}
		targets, err := ArgmaxNHWC(b.Targets)
		if err != nil {
			return err
		}
		for i := range preds {
			if err := t.evaluator.AddBatch(targets[i], preds[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		PixelAccuracy:        t.evaluator.PixelAccuracy(),
		PixelAccuracyClass:   t.evaluator.PixelAccuracyClass(),
		MeanIoU:              t.evaluator.MeanIoU(),
		FrequencyWeightedIoU: t.evaluator.FrequencyWeightedIoU(),
	}
	m.IsBest = m.MeanIoU > t.bestScore
	if m.IsBest {
		t.bestScore = m.MeanIoU
	}

	state, err := t.model.StateBytes()
	if err != nil {
		return Metrics{}, errors.Wrap(err, "serializing model state")
	}
	if err := t.saver.SaveCheckpoint(state, m.IsBest, epoch); err != nil {
		return Metrics{}, err
	}

	t.log.Infow("validation",
		"epoch", epoch,
		"acc", m.PixelAccuracy,
		"acc_class", m.PixelAccuracyClass,
		"miou", m.MeanIoU,
		"fwiou", m.FrequencyWeightedIoU,
		"best", m.IsBest,
	)
	return m, nil
}

// ArgmaxNCHW reduces a (N, C, H, W) score tensor to one class-index grid
// per batch element.
func ArgmaxNCHW(t *tensor.Dense) ([]*images.Grid, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("expected 4D NCHW tensor, got shape %v", shape)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("expected float32 tensor")
	}

	grids := make([]*images.Grid, n)
	plane := h * w
	for b := 0; b < n; b++ {
		grid := images.NewGrid(w, h, 1)
		base := b * c * plane
		for p := 0; p < plane; p++ {
			bestClass := 0
			bestScore := data[base+p]
			for ch := 1; ch < c; ch++ {
				if score := data[base+ch*plane+p]; score > bestScore {
					bestScore = score
					bestClass = ch
				}
			}
			grid.Pix[p] = uint8(bestClass)
		}
		grids[b] = grid
	}
	return grids, nil
}

// ArgmaxNHWC reduces a (N, H, W, C) one-hot (or score) tensor to one
// class-index grid per batch element.
func ArgmaxNHWC(t *tensor.Dense) ([]*images.Grid, error) {
	shape := t.Shape()
	if len(shape) != 4 {
		return nil, errors.Errorf("expected 4D NHWC tensor, got shape %v", shape)
	}
	n, h, w, c := shape[0], shape[1], shape[2], shape[3]
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("expected float32 tensor")
	}

	grids := make([]*images.Grid, n)
	for b := 0; b < n; b++ {
		grid := images.NewGrid(w, h, 1)
		base := b * h * w * c
		for p := 0; p < h*w; p++ {
			bestClass := 0
			bestScore := data[base+p*c]
			for ch := 1; ch < c; ch++ {
				if score := data[base+p*c+ch]; score > bestScore {
					bestScore = score
					bestClass = ch
				}
			}
			grid.Pix[p] = uint8(bestClass)
		}
		grids[b] = grid
	}
	return grids, nil
}
