// Command go-seg segments images with a trained model and computes class
// statistics for loss weighting.
//
// Usage:
//
//	go-seg segment -model model.onnx -mapping colour_mapping.json -image reef.jpg -out mask.png
//	go-seg stats -mapping colour_mapping.json -masks ./masks -out class_stats.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/reef-ai/go-seg/images"
	"github.com/reef-ai/go-seg/inference"
	"github.com/reef-ai/go-seg/masks"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: go-seg <segment|stats> [flags]")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "segment":
		err = runSegment(log, os.Args[2:])
	case "stats":
		err = runStats(log, os.Args[2:])
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		log.Fatal(err)
	}
}

func runSegment(log *zap.SugaredLogger, args []string) error {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	var (
		modelPath   = fs.String("model", "", "path to the ONNX segmentation model")
		mappingPath = fs.String("mapping", "", "path to the colour mapping JSON")
		imagePath   = fs.String("image", "", "image to segment")
		outPath     = fs.String("out", "mask.png", "output colour mask PNG")
		inputSize   = fs.Int("size", 256, "model input side length")
		ortLib      = fs.String("ort", "", "override path of the ONNX Runtime shared library")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" || *mappingPath == "" || *imagePath == "" {
		return fmt.Errorf("segment requires -model, -mapping and -image")
	}

	mapping, err := masks.LoadColourMapping(*mappingPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		return err
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	grid := images.GridFromImage(decoded)
	log.Infow("image loaded", "path", *imagePath, "width", grid.Width, "height", grid.Height)

	session, err := inference.NewSession(inference.Config{
		ModelPath:   *modelPath,
		LibraryPath: *ortLib,
		InputSize:   *inputSize,
		NumClasses:  mapping.NumClasses(),
	})
	if err != nil {
		return err
	}
	defer session.Close()

	classID, err := inference.PredictTiled(session, grid)
	if err != nil {
		return err
	}
	colour, err := masks.ClassIDToColour(classID, mapping)
	if err != nil {
		return err
	}

	img, err := colour.ToImage()
	if err != nil {
		return err
	}
	f, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Infow("mask written", "path", *outPath, "classes", masks.ClassOrder(mapping))
	return nil
}

func runStats(log *zap.SugaredLogger, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var (
		mappingPath = fs.String("mapping", "", "path to the colour mapping JSON")
		masksDir    = fs.String("masks", "", "directory of colour-coded mask images")
		outPath     = fs.String("out", "class_stats.json", "output class stats JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mappingPath == "" || *masksDir == "" {
		return fmt.Errorf("stats requires -mapping and -masks")
	}

	mapping, err := masks.LoadColourMapping(*mappingPath)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(*masksDir)
	if err != nil {
		return err
	}

	order := masks.ClassOrder(mapping)
	counts := make([]int64, len(order))
	var total int64

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".png", ".jpg", ".jpeg", ".bmp":
		default:
			continue
		}

		data, err := os.ReadFile(filepath.Join(*masksDir, entry.Name()))
		if err != nil {
			return err
		}
		decoded, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decoding %s: %w", entry.Name(), err)
		}

		classID, err := masks.ColourToClassID(images.GridFromGray(decoded), mapping)
		if err != nil {
			return err
		}
		for _, idx := range classID.Pix {
			counts[idx]++
		}
		total += int64(len(classID.Pix))
		log.Debugw("mask counted", "file", entry.Name())
	}
	if total == 0 {
		return fmt.Errorf("no mask images found in %s", *masksDir)
	}

	stats := make(map[string]masks.ClassStat, len(order))
	for i, name := range order {
		stats[name] = masks.ClassStat{Share: float64(counts[i]) / float64(total)}
	}

	out, err := json.MarshalIndent(stats, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, out, 0o644); err != nil {
		return err
	}

	log.Infow("stats written", "path", *outPath, "pixels", total)
	return nil
}
