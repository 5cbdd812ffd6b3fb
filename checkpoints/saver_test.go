package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstructions() map[string]any {
	return map[string]any{
		"model_name":          "deeplab_resnet",
		"nn_input_size":       256,
		"colour_mapping_path": "colour_mapping.json",
		"crops_per_image":     10,
		"images_per_batch":    2,
		"learning_rate":       1e-5,
	}
}

func TestNewSaver_RefusesExistingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	_, err := NewSaver(dir, testInstructions())
	require.NoError(t, err)

	_, err = NewSaver(dir, testInstructions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunExists)
}

func TestNewSaver_WritesSortedInstructions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")

	s, err := NewSaver(dir, testInstructions())
	require.NoError(t, err)

	data, err := os.ReadFile(s.InstructionsPath())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "deeplab_resnet", decoded["model_name"])
	assert.EqualValues(t, 256, decoded["nn_input_size"])

	// Keys appear in sorted order in the file.
	text := string(data)
	last := -1
	for _, key := range []string{"colour_mapping_path", "crops_per_image", "images_per_batch", "learning_rate", "model_name", "nn_input_size"} {
		pos := strings.Index(text, `"`+key+`"`)
		require.Greater(t, pos, last, "key %q out of order", key)
		last = pos
	}
}

func TestNewSaver_AcceptsStructInstructions(t *testing.T) {
	type instructions struct {
		ModelName    string  `json:"model_name"`
		LearningRate float64 `json:"learning_rate"`
	}
	dir := filepath.Join(t.TempDir(), "run-1")

	s, err := NewSaver(dir, instructions{ModelName: "deeplab", LearningRate: 0.001})
	require.NoError(t, err)

	data, err := os.ReadFile(s.InstructionsPath())
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(data), `"learning_rate"`), strings.Index(string(data), `"model_name"`))
}

func TestSaveCheckpoint(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	s, err := NewSaver(dir, testInstructions())
	require.NoError(t, err)

	epoch0 := []byte("weights-epoch-0")
	require.NoError(t, s.SaveCheckpoint(epoch0, false, 0))

	got, err := os.ReadFile(s.CheckpointPath(0))
	require.NoError(t, err)
	assert.Equal(t, epoch0, got)

	// No best save yet, so no best file.
	_, err = os.Stat(s.BestModelPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSaveCheckpoint_BestCopyAndStability(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	s, err := NewSaver(dir, testInstructions())
	require.NoError(t, err)

	best := []byte("weights-epoch-3-best")
	require.NoError(t, s.SaveCheckpoint(best, true, 3))

	// The best file is a byte-for-byte copy of the epoch checkpoint.
	epochData, err := os.ReadFile(s.CheckpointPath(3))
	require.NoError(t, err)
	bestData, err := os.ReadFile(s.BestModelPath())
	require.NoError(t, err)
	assert.Equal(t, epochData, bestData)

	// A later, worse epoch must not alter the best file.
	require.NoError(t, s.SaveCheckpoint([]byte("weights-epoch-4-worse"), false, 4))
	after, err := os.ReadFile(s.BestModelPath())
	require.NoError(t, err)
	assert.Equal(t, bestData, after)

	// Old epoch checkpoints accumulate, none are rotated away.
	for _, epoch := range []int{3, 4} {
		_, err := os.Stat(s.CheckpointPath(epoch))
		assert.NoError(t, err, "epoch %d checkpoint missing", epoch)
	}
}

func TestNewSaver_RejectsNonObjectInstructions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	_, err := NewSaver(dir, []int{1, 2, 3})
	assert.Error(t, err)
}
