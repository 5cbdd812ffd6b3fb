// Package dataset loads image/mask pairs and turns them into batched
// network inputs and one-hot targets.
package dataset

import (
	"bytes"
	"encoding/json"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/reef-ai/go-seg/images"
	"github.com/reef-ai/go-seg/masks"
)

// Sample names one image and its colour-coded annotation mask, relative to
// the dataset's base directory.
type Sample struct {
	ImageFile string `json:"image_name"`
	MaskFile  string `json:"mask_name"`
}

// LoadSamples reads a JSON array of samples.
func LoadSamples(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading sample list")
	}
	var samples []Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, errors.Wrap(err, "parsing sample list")
	}
	return samples, nil
}

// ListPairs scans an image directory and a mask directory and pairs files by
// base name. Masks without a matching image (and vice versa) are skipped.
func ListPairs(imageDir, maskDir string) ([]Sample, error) {
	maskFiles, err := listImageFiles(maskDir)
	if err != nil {
		return nil, err
	}
	maskByStem := make(map[string]string, len(maskFiles))
	for _, f := range maskFiles {
		maskByStem[stem(f)] = f
	}

	imageFiles, err := listImageFiles(imageDir)
	if err != nil {
		return nil, err
	}

	var samples []Sample
	for _, f := range imageFiles {
		mask, ok := maskByStem[stem(f)]
		if !ok {
			continue
		}
		samples = append(samples, Sample{
			ImageFile: filepath.Join(filepath.Base(imageDir), f),
			MaskFile:  filepath.Join(filepath.Base(maskDir), mask),
		})
	}
	return samples, nil
}

func listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".jpg", ".jpeg", ".png", ".bmp":
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// DataSet serves decoded image/mask pairs for a fixed colour mapping.
type DataSet struct {
	baseDir string
	samples []Sample
	mapping masks.ColourMapping
}

// New builds a DataSet. Paths inside samples are resolved against baseDir.
func New(baseDir string, samples []Sample, mapping masks.ColourMapping) *DataSet {
	return &DataSet{baseDir: baseDir, samples: samples, mapping: mapping}
}

// Len returns the number of samples.
func (d *DataSet) Len() int {
	return len(d.samples)
}

// NumClasses returns the number of classes in the colour mapping.
func (d *DataSet) NumClasses() int {
	return d.mapping.NumClasses()
}

// Mapping returns the dataset's colour mapping.
func (d *DataSet) Mapping() masks.ColourMapping {
	return d.mapping
}

// LoadPair decodes sample i into a three-channel image grid and a
// one-channel colour mask grid. The two must have the same spatial shape.
func (d *DataSet) LoadPair(i int) (*images.Grid, *images.Grid, error) {
	s := d.samples[i]

	img, err := decodeGrid(filepath.Join(d.baseDir, s.ImageFile), false)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "sample %d image", i)
	}
	mask, err := decodeGrid(filepath.Join(d.baseDir, s.MaskFile), true)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "sample %d mask", i)
	}
	if img.Width != mask.Width || img.Height != mask.Height {
		return nil, nil, errors.Errorf("sample %d: image %dx%d and mask %dx%d differ in size",
			i, img.Width, img.Height, mask.Width, mask.Height)
	}
	return img, mask, nil
}

func decodeGrid(path string, gray bool) (*images.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if gray {
		return images.GridFromGray(img), nil
	}
	return images.GridFromImage(img), nil
}
