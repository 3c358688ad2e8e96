// Package nn holds the output of an upstream object detection network, and the
// geometry that we need to reason about it.
// The network itself runs elsewhere. We only see its boxes.
package nn

// Detections below this confidence are usually noise. Zero disables filtering.
const DefaultMinConfidence = 0

// Two boxes of the same class with an IoU at or above this are considered duplicates
const DefaultMergeIoU = 0.7

// Input options applied to detections before they reach the assessment engine
type InputOptions struct {
	MinConfidence float32 // Drop detections below this confidence (0 = keep everything)
	MergeIoU      float64 // If non-zero, merge same-class duplicates with an IoU >= MergeIoU
}

// Prepare filters and de-duplicates detections according to options.
// Order is preserved, because the assessment engine breaks ties by input order.
func (o *InputOptions) Prepare(detections []Detection) []Detection {
	out := detections
	if o.MinConfidence > 0 {
		out = FilterByConfidence(out, o.MinConfidence)
	}
	if o.MergeIoU > 0 {
		out = MergeDuplicates(out, o.MergeIoU)
	}
	return out
}

// FilterByConfidence returns the detections with a confidence of at least minConfidence
func FilterByConfidence(detections []Detection, minConfidence float32) []Detection {
	out := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}
