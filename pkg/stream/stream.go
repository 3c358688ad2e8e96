// Package stream runs the disposal assessment over a sequence of video frames,
// sampling every Nth frame and folding the per-frame ratings into a running mean.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

// Process every 2nd frame unless told otherwise
const DefaultStride = 2

type Options struct {
	Stride       int                 // Process 1 in Stride frames, using a 1-based frame counter (0 = DefaultStride)
	Workers      int                 // Number of assess+annotate goroutines (0 or 1 = run on the calling goroutine)
	RetainFrames int                 // Keep the last N processed frames in Result.Recent (0 = keep none)
	Annotate     bool                // Draw the detections and assessment onto each sampled frame that has an image
	Sink         FrameSink           // If not nil, receives every processed frame, in order
	OnFrame      func(*FrameResult)  // If not nil, called for every processed frame, in order
	Engine       *disposal.Engine    // nil = default vocabulary
	Annotator    *annotate.Annotator // nil = default vocabulary
	Input        nn.InputOptions     // Filtering applied to detections before assessment
	Log          logs.Log            // May be nil
}

// FrameResult is the outcome of one sampled frame
type FrameResult struct {
	Frame          int                  `json:"frame"`          // Frame number from the source
	Sample         int                  `json:"sample"`         // 1-based index of this frame among the sampled frames
	Width          int                  `json:"width"`          // Image width
	Height         int                  `json:"height"`         // Image height
	Assessment     *disposal.Assessment `json:"assessment"`     // Assessment of this frame
	Rating         float64              `json:"rating"`         // Same as Assessment.Rating
	RunningAverage float64              `json:"runningAverage"` // Average rating over all sampled frames so far, including this one
	Annotated      *cimg.Image          `json:"-"`              // Annotated frame, if Options.Annotate was set and the frame had an image

	elapsed time.Duration // Time spent assessing and annotating
}

// Result of a stream pass
type Result struct {
	FramesSeen      int            `json:"framesSeen"`
	FramesProcessed int            `json:"framesProcessed"`
	AverageRating   *float64       `json:"averageRating"` // nil if no frames were sampled
	Cancelled       bool           `json:"cancelled,omitempty"`
	Recent          []*FrameResult `json:"-"` // The last RetainFrames processed frames, oldest first
}

// An item in the worker pipeline
type job struct {
	sample int
	frame  *Frame
	done   chan *FrameResult
}

// The running state of one pass
type aggregator struct {
	opts   *Options
	result *Result
	mean   perfstats.Accumulator
	timing perfstats.TimeAccumulator
	recent ringbuffer.RingP[*FrameResult]
	retain int
}

// Process pulls frames from src until it is exhausted, sampling 1 in opts.Stride
// of them. Each sampled frame is assessed (and optionally annotated), and its rating
// is folded into a running mean, always in frame order, even when Workers > 1.
//
// If ctx is cancelled, Process returns the partial result with Cancelled = true
// and a nil error. If the source or sink fails, Process returns the partial result
// along with the error.
func Process(ctx context.Context, src FrameSource, opts Options) (*Result, error) {
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	if opts.Engine == nil {
		opts.Engine = disposal.NewEngine(nil)
	}
	if opts.Annotate && opts.Annotator == nil {
		opts.Annotator = annotate.NewAnnotator(opts.Engine.Classifier())
	}

	agg := &aggregator{
		opts:   &opts,
		result: &Result{},
		retain: opts.RetainFrames,
	}
	if agg.retain > 0 {
		agg.recent = ringbuffer.NewRingP[*FrameResult](nextPowerOf2(agg.retain + 1))
	}

	start := time.Now()
	var err error
	if opts.Workers <= 1 {
		err = agg.runSequential(ctx, src)
	} else {
		err = agg.runParallel(ctx, src, opts.Workers)
	}

	if avg, ok := agg.mean.Mean(); ok {
		agg.result.AverageRating = &avg
	}
	agg.result.Recent = agg.recentFrames()

	if opts.Log != nil {
		opts.Log.Infof("Stream: %v frames seen, %v processed in %.1f seconds, %v per frame (cancelled: %v)",
			agg.result.FramesSeen, agg.result.FramesProcessed, time.Since(start).Seconds(), agg.timing.Average(), agg.result.Cancelled)
	}
	return agg.result, err
}

// Returns the next frame that should be processed, or nil at the end of the stream.
// A nil frame with a nil error means the stream ended normally, or was cancelled.
func (a *aggregator) nextSample(ctx context.Context, src FrameSource) (*Frame, error) {
	for {
		if ctx.Err() != nil {
			a.result.Cancelled = true
			return nil, nil
		}
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, nil
		} else if err != nil {
			if ctx.Err() != nil {
				a.result.Cancelled = true
				return nil, nil
			}
			return nil, fmt.Errorf("Failed to read frame %v: %w", a.result.FramesSeen+1, err)
		}
		a.result.FramesSeen++
		if a.result.FramesSeen%a.opts.Stride == 0 {
			return frame, nil
		}
	}
}

func (a *aggregator) runSequential(ctx context.Context, src FrameSource) error {
	for sample := 1; ; sample++ {
		frame, err := a.nextSample(ctx, src)
		if frame == nil {
			return err
		}
		if err := a.fold(ctx, processFrame(a.opts, sample, frame)); err != nil {
			return err
		}
	}
}

// Frames are handed to a pool of workers, but no more than a fixed window of them
// may be in flight at once. Results are folded in the order that frames were read,
// so the running mean is identical to the sequential one.
func (a *aggregator) runParallel(ctx context.Context, src FrameSource, nWorkers int) error {
	nWorkers = min(nWorkers, runtime.NumCPU()*4)
	window := nWorkers * 2
	jobs := make(chan *job)

	var wg sync.WaitGroup
	for i := 0; i < nWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				j.done <- processFrame(a.opts, j.sample, j.frame)
			}
		}()
	}

	var pending []*job
	var firstErr error

	// Wait for the oldest job and fold it in
	foldOldest := func() {
		j := pending[0]
		pending = pending[1:]
		fr := <-j.done
		if firstErr == nil {
			firstErr = a.fold(ctx, fr)
		}
	}

	for sample := 1; firstErr == nil; sample++ {
		frame, err := a.nextSample(ctx, src)
		if frame == nil {
			firstErr = err
			break
		}
		j := &job{
			sample: sample,
			frame:  frame,
			done:   make(chan *FrameResult, 1),
		}
		pending = append(pending, j)
		jobs <- j
		if len(pending) >= window {
			foldOldest()
		}
	}
	close(jobs)

	// Frames that were already sampled are still counted, even after cancellation
	for len(pending) != 0 {
		foldOldest()
	}
	wg.Wait()
	return firstErr
}

// Assess and optionally annotate a single frame. This is safe to run concurrently.
func processFrame(opts *Options, sample int, frame *Frame) *FrameResult {
	start := time.Now()
	detections := opts.Input.Prepare(frame.Detections)
	assessment := opts.Engine.Assess(detections, frame.Width, frame.Height)
	fr := &FrameResult{
		Frame:      frame.Number,
		Sample:     sample,
		Width:      frame.Width,
		Height:     frame.Height,
		Assessment: assessment,
		Rating:     assessment.Rating,
	}
	if opts.Annotate && frame.Image != nil {
		fr.Annotated = opts.Annotator.Annotate(frame.Image, detections, assessment)
	}
	fr.elapsed = time.Since(start)
	return fr
}

// Fold a frame result into the aggregate. Must be called in sample order.
func (a *aggregator) fold(ctx context.Context, fr *FrameResult) error {
	a.result.FramesProcessed++
	a.mean.AddSample(fr.Rating)
	a.timing.AddSample(fr.elapsed)
	fr.RunningAverage = a.mean.Average()

	if a.retain > 0 {
		a.recent.Add(fr)
	}
	if a.opts.Sink != nil {
		// Frames sampled before a cancellation are still written out
		sinkCtx := ctx
		if ctx.Err() != nil {
			sinkCtx = context.WithoutCancel(ctx)
		}
		if err := a.opts.Sink.WriteFrame(sinkCtx, fr); err != nil {
			return fmt.Errorf("Failed to write frame %v: %w", fr.Frame, err)
		}
	}
	if a.opts.OnFrame != nil {
		a.opts.OnFrame(fr)
	}
	return nil
}

// The ring holds one less than its power of 2 size, which can still be more than
// we asked for, so we trim it to the exact amount here
func (a *aggregator) recentFrames() []*FrameResult {
	if a.retain <= 0 {
		return nil
	}
	n := min(a.recent.Len(), a.retain)
	out := make([]*FrameResult, 0, n)
	for i := a.recent.Len() - n; i < a.recent.Len(); i++ {
		out = append(out, a.recent.Peek(i))
	}
	return out
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
