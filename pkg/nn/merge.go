package nn

import (
	"strings"

	flatbush "github.com/bmharper/flatbush-go"
)

// Scan all pairs of objects in 'input', and if they have the same class (case-insensitive)
// and an IoU of at least minIoU, then drop the one with the lower confidence.
// Detectors that run without NMS, or tiled inference, can produce such duplicates, and
// a duplicated piece of trash would otherwise be scored twice.
// Returns the indices of the objects that should be retained, in their original order.
// When confidences are equal, the object that appears first is kept.
func MergeDuplicateDetections(input []Detection, minIoU float64) []int {
	if len(input) < 2 {
		retain := make([]int, len(input))
		for i := range input {
			retain[i] = i
		}
		return retain
	}

	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, d := range input {
		fb.Add(d.Box.Int32Bounds())
	}
	fb.Finish()

	classes := make([]string, len(input))
	for i := range input {
		classes[i] = strings.ToLower(strings.TrimSpace(input[i].Class))
	}

	// The objects that we've already merged
	deleted := make([]bool, len(input))
	nearby := []int{}

	for i, in := range input {
		if deleted[i] {
			continue
		}
		x1, y1, x2, y2 := in.Box.Int32Bounds()
		nearby = fb.SearchFast(x1, y1, x2, y2, nearby)
		for _, j := range nearby {
			if i == j || deleted[j] {
				continue
			}
			if classes[i] != classes[j] {
				continue
			}
			if in.Box.IOU(input[j].Box) < minIoU {
				continue
			}
			if loserOf(input, i, j) == i {
				deleted[i] = true
				break
			}
			deleted[j] = true
		}
	}

	retain := make([]int, 0, len(input))
	for i := range input {
		if !deleted[i] {
			retain = append(retain, i)
		}
	}
	return retain
}

// MergeDuplicates returns a new list with duplicates removed (see MergeDuplicateDetections)
func MergeDuplicates(input []Detection, minIoU float64) []Detection {
	retain := MergeDuplicateDetections(input, minIoU)
	out := make([]Detection, 0, len(retain))
	for _, i := range retain {
		out = append(out, input[i])
	}
	return out
}

// Returns the index of the detection that should be dropped
func loserOf(input []Detection, i, j int) int {
	if input[i].Confidence != input[j].Confidence {
		if input[i].Confidence < input[j].Confidence {
			return i
		}
		return j
	}
	return max(i, j)
}
