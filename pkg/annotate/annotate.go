package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/fogleman/gg"
)

var (
	ColorTrash   = color.RGBA{255, 165, 0, 255}
	ColorBin     = color.RGBA{0, 0, 255, 255}
	ColorPerson  = color.RGBA{0, 255, 0, 255}
	ColorUnknown = color.RGBA{160, 160, 160, 255}
	ColorStatus  = color.RGBA{255, 255, 255, 255}
	ColorRating  = color.RGBA{255, 255, 0, 255}
)

// Annotator draws detections and assessments onto images.
// It has no mutable state, so it is safe to share between goroutines.
type Annotator struct {
	classifier *disposal.Classifier

	LineWidth      float64
	LabelFontSize  float64
	StatusFontSize float64
	RatingFontSize float64
}

func NewAnnotator(classifier *disposal.Classifier) *Annotator {
	if classifier == nil {
		classifier = disposal.DefaultClassifier()
	}
	return &Annotator{
		classifier:     classifier,
		LineWidth:      2,
		LabelFontSize:  13,
		StatusFontSize: 16,
		RatingFontSize: 18,
	}
}

var defaultAnnotator = NewAnnotator(nil)

// Annotate with the default vocabulary
func Annotate(img *cimg.Image, detections []nn.Detection, assessment *disposal.Assessment) *cimg.Image {
	return defaultAnnotator.Annotate(img, detections, assessment)
}

// RoleColor returns the box color for a detector class
func (a *Annotator) RoleColor(class string) color.RGBA {
	switch a.classifier.Role(class) {
	case disposal.RoleTrash:
		return ColorTrash
	case disposal.RoleBin:
		return ColorBin
	case disposal.RolePerson:
		return ColorPerson
	}
	return ColorUnknown
}

// Annotate returns a new RGB image with every detection drawn onto it, and if
// assessment is not nil, one status line per disposal event followed by the rating.
// img is not modified.
func (a *Annotator) Annotate(img *cimg.Image, detections []nn.Detection, assessment *disposal.Assessment) *cimg.Image {
	src := ensureRGB(img)
	if len(detections) == 0 && assessment == nil {
		return cloneRGB(src)
	}

	dc := gg.NewContextForImage(rgbView{src})

	for _, d := range detections {
		c := a.RoleColor(d.Class)
		drawRectangleEmpty(dc, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2, c, a.LineWidth)
		drawString(dc, DetectionLabel(d), a.labelOrigin(d.Box, dc.Width()), c, a.LabelFontSize)
	}

	if assessment != nil {
		y := 30
		for _, ev := range assessment.Events {
			drawString(dc, EventLine(ev), image.Point{X: 10, Y: y}, ColorStatus, a.StatusFontSize)
			y += 22
		}
		drawString(dc, RatingLine(assessment.Rating), image.Point{X: 10, Y: y + 10}, ColorRating, a.RatingFontSize)
	}

	return fromImage(dc.Image())
}

// Place the label just above the top-left corner of the box, but keep it
// inside the image when the box touches the top or left edge.
func (a *Annotator) labelOrigin(box nn.Box, imageWidth int) image.Point {
	x := int(math.Round(box.X1))
	y := int(math.Round(box.Y1)) - 5
	minBaseline := int(math.Ceil(a.LabelFontSize))
	x = max(0, min(x, imageWidth-1))
	y = max(y, minBaseline)
	return image.Point{X: x, Y: y}
}

// AnnotateJPEG decodes a JPEG, annotates it, and returns the new JPEG
func (a *Annotator) AnnotateJPEG(jpg []byte, detections []nn.Detection, assessment *disposal.Assessment, quality int) ([]byte, error) {
	img, err := DecodeJPEG(jpg)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(a.Annotate(img, detections, assessment), quality)
}

// DetectionLabel is the text drawn above a detection, eg "bottle 0.87"
func DetectionLabel(d nn.Detection) string {
	return fmt.Sprintf("%v %.2f", d.Class, d.Confidence)
}

// EventLine is the status text for one disposal event, eg "bottle -> proper=true score=0.68"
func EventLine(ev disposal.DisposalEvent) string {
	return fmt.Sprintf("%v -> proper=%v score=%.2f", ev.Trash.Class, ev.Proper, ev.Score)
}

// RatingLine is the final status line, eg "Rating: 3.4/5"
func RatingLine(rating float64) string {
	s := strconv.FormatFloat(rating, 'f', -1, 64)
	if rating == math.Trunc(rating) {
		s += ".0"
	}
	return "Rating: " + s + "/5"
}
