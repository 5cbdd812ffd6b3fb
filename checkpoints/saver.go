// Package checkpoints persists training-run artifacts: the run
// configuration, one weight snapshot per epoch and a copy of the best
// snapshot so far.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrRunExists is returned when the target run directory already exists. A
// run never writes into a previous run's directory.
var ErrRunExists = errors.New("run directory already exists")

const (
	instructionsFile = "instructions.json"
	bestModelFile    = "model_best.pth"
)

// Saver owns one training run's output directory. It writes the run's
// instructions at construction and one checkpoint file per epoch, copying
// the best one to a fixed filename.
//
// Saver does its file I/O synchronously and is not safe for concurrent use
// against the same directory; callers save one checkpoint per completed
// epoch, in order.
type Saver struct {
	dir string
}

// NewSaver creates the run directory and persists the instructions into it.
// The directory must not exist yet: an existing directory fails with an
// error wrapping ErrRunExists rather than risking a prior run's artifacts.
//
// instructions must serialize to a flat JSON object; it is written to
// instructions.json with sorted keys and indentation.
func NewSaver(dir string, instructions any) (*Saver, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating runs directory")
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(ErrRunExists, "%s", dir)
		}
		return nil, errors.Wrap(err, "creating run directory")
	}

	s := &Saver{dir: dir}
	if err := s.saveInstructions(instructions); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the run's output directory.
func (s *Saver) Dir() string {
	return s.dir
}

// CheckpointPath returns the file path used for the given epoch's snapshot.
func (s *Saver) CheckpointPath(epoch int) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_epoch_%d.pt", epoch))
}

// BestModelPath returns the path of the best-model copy.
func (s *Saver) BestModelPath() string {
	return filepath.Join(s.dir, bestModelFile)
}

// InstructionsPath returns the path of the persisted run configuration.
func (s *Saver) InstructionsPath() string {
	return filepath.Join(s.dir, instructionsFile)
}

// SaveCheckpoint writes the model's serialized parameter state to the
// epoch's checkpoint file. If isBest, the file is additionally copied
// byte-for-byte to the best-model filename, replacing any prior best. A
// later non-best save never touches the best-model file.
//
// Old epoch checkpoints are kept; there is no rotation.
func (s *Saver) SaveCheckpoint(state []byte, isBest bool, epoch int) error {
	path := s.CheckpointPath(epoch)
	if err := writeFile(path, state); err != nil {
		return errors.Wrapf(err, "writing checkpoint for epoch %d", epoch)
	}
	if isBest {
		if err := copyFile(path, s.BestModelPath()); err != nil {
			return errors.Wrap(err, "copying best model")
		}
	}
	return nil
}

func (s *Saver) saveInstructions(instructions any) error {
	raw, err := json.Marshal(instructions)
	if err != nil {
		return errors.Wrap(err, "serializing instructions")
	}

	// Round-trip through a map so the indented output has sorted keys no
	// matter what field order the instructions type declares.
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return errors.Wrap(err, "instructions must serialize to a flat JSON object")
	}
	pretty, err := json.MarshalIndent(flat, "", "    ")
	if err != nil {
		return errors.Wrap(err, "formatting instructions")
	}

	return errors.Wrap(writeFile(s.InstructionsPath(), pretty), "writing instructions")
}

// writeFile creates the file, writes data and closes the handle, reporting
// the close error on the write path so a failed flush is never silent.
func writeFile(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
