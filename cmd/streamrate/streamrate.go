package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/storage"
	"github.com/cyclopcam/binwatch/pkg/stream"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("streamrate", "Rate trash disposal over a video, from its per-frame object detections")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video label file (JSON)", Required: true})
	frameDir := parser.String("f", "frames", &argparse.Options{Help: "Directory of frame JPEGs. Defaults to the frameDir in the label file", Default: ""})
	stride := parser.Int("s", "stride", &argparse.Options{Help: "Process 1 in every N frames", Default: stream.DefaultStride})
	workers := parser.Int("w", "workers", &argparse.Options{Help: "Number of worker threads", Default: 1})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Write annotated frames to this directory", Default: ""})
	gcsBucket := parser.String("", "gcs", &argparse.Options{Help: "Write annotated frames to this Google Cloud Storage bucket", Default: ""})
	gcsPrefix := parser.String("", "gcs-prefix", &argparse.Options{Help: "Prefix for object names in the GCS bucket", Default: ""})
	retain := parser.Int("", "retain", &argparse.Options{Help: "Only write the last N annotated frames, once the video is finished (0 = write every frame)", Default: 0})
	vocabFile := parser.String("v", "vocab", &argparse.Options{Help: "Vocabulary file, mapping detector classes to trash/bin/person", Default: ""})
	mergeIoU := parser.Float("", "merge-iou", &argparse.Options{Help: "Merge same-class detections that overlap by at least this IoU (0 = off)", Default: 0.0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}
	if *outDir != "" && *gcsBucket != "" {
		fmt.Printf("Only one of --output or --gcs may be specified\n")
		os.Exit(1)
	}

	logger, _ := logs.NewLog()
	defer logger.Close()

	// Ctrl+C stops the stream, but we still report what we have so far
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	classifier := disposal.DefaultClassifier()
	if *vocabFile != "" {
		vocab, err := disposal.LoadVocabulary(*vocabFile)
		check(err)
		classifier, err = disposal.NewClassifier(vocab)
		check(err)
	}

	var store storage.Storage
	if *outDir != "" {
		store, err = storage.NewStorageFS(logger, *outDir)
		check(err)
	} else if *gcsBucket != "" {
		store, err = storage.NewStorageGCS(ctx, logger, *gcsBucket, *gcsPrefix, false)
		check(err)
	}

	src, err := stream.OpenLabelSource(*input, *frameDir)
	check(err)

	options := stream.Options{
		Stride:       *stride,
		Workers:      *workers,
		RetainFrames: *retain,
		Annotate:     store != nil,
		Engine:       disposal.NewEngine(classifier),
		Input:        nn.InputOptions{MergeIoU: *mergeIoU},
		Log:          logger,
		OnFrame: func(fr *stream.FrameResult) {
			logger.Infof("Frame %v: rating %.2f (running average %.2f)", fr.Frame, fr.Rating, fr.RunningAverage)
		},
	}
	var sink *stream.StorageSink
	if store != nil && *retain == 0 {
		sink = stream.NewStorageSink(logger, store)
		options.Sink = sink
	}

	result, err := stream.Process(ctx, src, options)
	if err != nil {
		logger.Errorf("%v", err)
	}

	if store != nil && *retain != 0 {
		// Write the retained frames now that the stream is done
		sink = stream.NewStorageSink(logger, store)
		for _, fr := range result.Recent {
			check(sink.WriteFrame(context.Background(), fr))
		}
	}
	if sink != nil {
		logger.Infof("Wrote %v annotated frames", len(sink.Written()))
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(result))
	if err != nil {
		logger.Close()
		os.Exit(1)
	}
}
