// Package inference runs a trained segmentation model over images via ONNX
// Runtime, tiling images that exceed the model's input size.
package inference

import (
	"os"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/reef-ai/go-seg/images"
)

// Config describes an exported segmentation model.
type Config struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// LibraryPath optionally overrides the ONNX Runtime shared library
	// location. Empty keeps the binding's default.
	LibraryPath string
	// InputSize is the square side length the model was exported with.
	InputSize int
	// NumClasses is the number of output channels.
	NumClasses int
	// InputName and OutputName are the graph's tensor names. They default
	// to "input" and "output".
	InputName  string
	OutputName string
	// IntraOpThreads and InterOpThreads bound onnxruntime's parallelism.
	// Zero keeps the runtime default.
	IntraOpThreads int
	InterOpThreads int
}

// Session wraps an ONNX Runtime session with preallocated input and output
// tensors for single-image segmentation. It is not safe for concurrent use.
type Session struct {
	session    *ort.AdvancedSession
	input      *ort.Tensor[float32]
	output     *ort.Tensor[float32]
	size       int
	numClasses int
}

// NewSession loads the model and prepares the runtime. Callers must Close
// the session to release the native tensors.
func NewSession(cfg Config) (*Session, error) {
	if cfg.InputSize <= 0 || cfg.NumClasses <= 0 {
		return nil, errors.Errorf("invalid model geometry: input size %d, classes %d", cfg.InputSize, cfg.NumClasses)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "model file %s", cfg.ModelPath)
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initializing ONNX Runtime environment")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.NumClasses), int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()
	if cfg.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(cfg.IntraOpThreads)
	}
	if cfg.InterOpThreads > 0 {
		options.SetInterOpNumThreads(cfg.InterOpThreads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "creating ONNX session")
	}

	return &Session{
		session:    session,
		input:      inputTensor,
		output:     outputTensor,
		size:       cfg.InputSize,
		numClasses: cfg.NumClasses,
	}, nil
}

// InputSize returns the square input side length the model expects.
func (s *Session) InputSize() int {
	return s.size
}

// Predict segments one grid of exactly InputSize x InputSize RGB pixels and
// returns the per-pixel class indices.
func (s *Session) Predict(g *images.Grid) (*images.Grid, error) {
	if g.Channels != 3 {
		return nil, errors.Errorf("expected 3-channel input, got %d channels", g.Channels)
	}
	if g.Width != s.size || g.Height != s.size {
		return nil, errors.Errorf("expected %dx%d input, got %dx%d", s.size, s.size, g.Width, g.Height)
	}

	fillInput(s.input.GetData(), g)
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "running inference")
	}
	return argmaxChannels(s.output.GetData(), s.size, s.size, s.numClasses), nil
}

// Close destroys the session and its tensors.
func (s *Session) Close() {
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// fillInput writes the grid into dst as CHW planes scaled to [0, 1].
func fillInput(dst []float32, g *images.Grid) {
	plane := g.Width * g.Height
	for p := 0; p < plane; p++ {
		dst[p] = float32(g.Pix[p*3]) / 255.0
		dst[plane+p] = float32(g.Pix[p*3+1]) / 255.0
		dst[2*plane+p] = float32(g.Pix[p*3+2]) / 255.0
	}
}

// argmaxChannels reduces a (1, C, H, W) score buffer to a class-index grid.
func argmaxChannels(scores []float32, w, h, numClasses int) *images.Grid {
	out := images.NewGrid(w, h, 1)
	plane := w * h
	for p := 0; p < plane; p++ {
		bestClass := 0
		bestScore := scores[p]
		for c := 1; c < numClasses; c++ {
			if score := scores[c*plane+p]; score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		out.Pix[p] = uint8(bestClass)
	}
	return out
}
