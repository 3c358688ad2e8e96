package disposal

import (
	"math"

	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/stats"
)

// Score weights. These must not change, otherwise ratings are no longer
// comparable with those produced by earlier versions.
const (
	WeightCenterInBin  = 0.6 // Trash center lies inside the bin box
	WeightBinOverlap   = 0.3 // Scaled IoU between trash and bin
	WeightBinProximity = 0.1 // Closeness of trash to bin, relative to image diagonal

	NoPersonMultiplier   = 0.8 // Applied when nobody is standing near the trash
	NearPersonDistance   = 0.2 // A person closer than this (fraction of diagonal) counts as near
	ProperScoreThreshold = 0.5 // Events with score >= this are proper disposals
	MaxRating            = 5.0
)

// DisposalEvent is the assessment of a single piece of trash
type DisposalEvent struct {
	Trash  nn.Detection  `json:"trash"`
	Bin    *nn.Detection `json:"bin"`    // Nearest bin, or nil if no bin was detected
	Person *nn.Detection `json:"person"` // Nearest person, or nil if nobody was detected
	Proper bool          `json:"proper"`
	Score  float64       `json:"score"` // 0..1

	// The features that produced Score
	ProperCenter bool    `json:"properCenter"`
	IoUBin       float64 `json:"iouBin"`
	DistBin      float64 `json:"distBin"`    // 1 if there is no bin
	DistPerson   float64 `json:"distPerson"` // 1 if there is no person
}

// Assessment is the result of evaluating one image or video frame
type Assessment struct {
	Persons []nn.Detection  `json:"persons"`
	Trashes []nn.Detection  `json:"trashes"`
	Bins    []nn.Detection  `json:"bins"`
	Events  []DisposalEvent `json:"events"` // One per trash, in the same order as Trashes
	Rating  float64         `json:"rating"` // 0..5, rounded to 2 decimal places
}

// Engine assesses trash disposal. It holds no mutable state, so a single
// Engine can be shared by any number of goroutines.
type Engine struct {
	classifier *Classifier
}

func NewEngine(classifier *Classifier) *Engine {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Engine{
		classifier: classifier,
	}
}

var defaultEngine = NewEngine(nil)

// Assess with the default vocabulary
func Assess(detections []nn.Detection, imageWidth, imageHeight int) *Assessment {
	return defaultEngine.Assess(detections, imageWidth, imageHeight)
}

func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

// Partition splits detections by role, preserving input order.
// Unclassified detections are dropped.
func (e *Engine) Partition(detections []nn.Detection) (persons, trashes, bins []nn.Detection) {
	persons = []nn.Detection{}
	trashes = []nn.Detection{}
	bins = []nn.Detection{}
	for _, d := range detections {
		switch e.classifier.Role(d.Class) {
		case RoleTrash:
			trashes = append(trashes, d)
		case RoleBin:
			bins = append(bins, d)
		case RolePerson:
			persons = append(persons, d)
		}
	}
	return
}

// Assess produces a disposal event for every trash detection, and an overall rating.
// The input is assumed to be validated (see nn.ValidateDetections).
// Input order matters: when two candidates are equally close, the one that appears
// first wins.
func (e *Engine) Assess(detections []nn.Detection, imageWidth, imageHeight int) *Assessment {
	a := &Assessment{
		Events: []DisposalEvent{},
	}
	a.Persons, a.Trashes, a.Bins = e.Partition(detections)
	if len(a.Trashes) == 0 {
		return a
	}

	diagonal := nn.Diagonal(imageWidth, imageHeight) + nn.Epsilon

	scores := make([]float64, 0, len(a.Trashes))
	for _, trash := range a.Trashes {
		ev := assessTrash(trash, a.Bins, a.Persons, diagonal)
		a.Events = append(a.Events, ev)
		scores = append(scores, ev.Score)
	}

	a.Rating = stats.Round(MaxRating*stats.Mean(scores), 2)
	return a
}

func assessTrash(trash nn.Detection, bins, persons []nn.Detection, diagonal float64) DisposalEvent {
	center := trash.Box.Center()
	ev := DisposalEvent{
		Trash:      trash,
		DistBin:    1,
		DistPerson: 1,
	}

	if i, dist2 := nearest(center, bins); i != -1 {
		bin := &bins[i]
		ev.Bin = bin
		ev.IoUBin = trash.Box.IOU(bin.Box)
		ev.ProperCenter = bin.Box.Contains(center)
		ev.DistBin = math.Sqrt(dist2) / diagonal
	}
	if i, dist2 := nearest(center, persons); i != -1 {
		ev.Person = &persons[i]
		ev.DistPerson = math.Sqrt(dist2) / diagonal
	}

	ev.Score = composeScore(ev.ProperCenter, ev.IoUBin, ev.DistBin, ev.Person != nil, ev.DistPerson)
	ev.Proper = ev.Score >= ProperScoreThreshold
	return ev
}

// The order of these floating point operations is part of the contract,
// so that ratings match bit-for-bit across implementations.
func composeScore(properCenter bool, iouBin, distBin float64, havePerson bool, distPerson float64) float64 {
	center := 0.0
	if properCenter {
		center = 1.0
	}
	score := 0.0
	score += WeightCenterInBin * center
	score += WeightBinOverlap * min(1.0, iouBin*2.0)
	score += WeightBinProximity * (1.0 - min(1.0, distBin*3.0))
	if !havePerson || distPerson >= NearPersonDistance {
		score *= NoPersonMultiplier
	}
	return stats.Clamp(score, 0, 1)
}

// nearest returns the index of the candidate whose center is closest to p,
// and the squared distance. Ties go to the earliest candidate.
// Returns -1 if there are no candidates.
func nearest(p nn.Point, candidates []nn.Detection) (int, float64) {
	best := -1
	bestDist := 0.0
	for i := range candidates {
		d := p.SquaredDistance(candidates[i].Box.Center())
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}
