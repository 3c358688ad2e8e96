package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akamensky/argparse"
	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("assess", "Assess trash disposal in a single image, from its object detections")
	input := parser.String("i", "input", &argparse.Options{Help: "Input label file (JSON)", Required: true})
	imageFile := parser.String("m", "image", &argparse.Options{Help: "Image file (JPEG). Defaults to the image named in the label file", Default: ""})
	output := parser.String("o", "output", &argparse.Options{Help: "Write annotated image to this file", Default: ""})
	vocabFile := parser.String("v", "vocab", &argparse.Options{Help: "Vocabulary file, mapping detector classes to trash/bin/person", Default: ""})
	mergeIoU := parser.Float("", "merge-iou", &argparse.Options{Help: "Merge same-class detections that overlap by at least this IoU (0 = off)", Default: 0.0})
	minConfidence := parser.Float("", "min-confidence", &argparse.Options{Help: "Ignore detections below this confidence", Default: 0.0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	labels, err := nn.LoadImageLabels(*input)
	check(err)
	check(labels.Validate())

	classifier := disposal.DefaultClassifier()
	if *vocabFile != "" {
		vocab, err := disposal.LoadVocabulary(*vocabFile)
		check(err)
		classifier, err = disposal.NewClassifier(vocab)
		check(err)
	}

	if *imageFile == "" && labels.Image != "" {
		*imageFile = filepath.Join(filepath.Dir(*input), labels.Image)
	}
	var img *cimg.Image
	if *imageFile != "" {
		img, err = cimg.ReadFile(*imageFile)
		check(err)
		labels.Width = img.Width
		labels.Height = img.Height
	} else if *output != "" {
		check(fmt.Errorf("An image is required in order to write an annotated output"))
	}

	options := nn.InputOptions{
		MinConfidence: float32(*minConfidence),
		MergeIoU:      *mergeIoU,
	}
	detections := options.Prepare(labels.Objects)
	assessment := disposal.NewEngine(classifier).Assess(detections, labels.Width, labels.Height)
	points, summary := disposal.Reward(assessment)

	if *output != "" {
		jpg, err := annotate.EncodeJPEG(annotate.NewAnnotator(classifier).Annotate(img, detections, assessment), 0)
		check(err)
		check(os.WriteFile(*output, jpg, 0644))
	}

	type result struct {
		Assessment *disposal.Assessment `json:"assessment"`
		Points     int                  `json:"points"`
		Summary    string               `json:"summary"`
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(&result{assessment, points, summary}))
}
