package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/storage"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	ping := &pingJSON{
		Time: time.Now().Unix(),
	}
	www.SendJSON(w, ping)
}

func (s *Server) httpVocabulary(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.engine.Classifier().Vocabulary())
}

func (s *Server) httpAchievements(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type achievementsJSON struct {
		Current disposal.Achievement   `json:"current"`
		Next    *disposal.Achievement  `json:"next"` // nil when the last achievement has been unlocked
		All     []disposal.Achievement `json:"all"`
	}
	points := www.QueryInt(r, "points")
	resp := achievementsJSON{
		Current: disposal.AchievementFor(points),
		All:     disposal.Achievements,
	}
	if next, ok := disposal.NextAchievement(points); ok {
		resp.Next = &next
	}
	www.SendJSON(w, &resp)
}

// Validate detections from the outside world, and apply our input filters
func (s *Server) prepareDetections(width, height int, objects []nn.Detection) []nn.Detection {
	if err := nn.ValidateImageSize(width, height); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	if err := nn.ValidateDetections(objects); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	return s.input.Prepare(objects)
}

func (s *Server) httpAssess(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type assessRequest struct {
		Width   int            `json:"width"`
		Height  int            `json:"height"`
		Objects []nn.Detection `json:"objects"`
	}
	type assessResponse struct {
		Assessment *disposal.Assessment `json:"assessment"`
		Points     int                  `json:"points"`
		Summary    string               `json:"summary"`
	}
	req := assessRequest{}
	www.ReadJSON(w, r, &req, s.maxBodyBytes())
	detections := s.prepareDetections(req.Width, req.Height, req.Objects)

	resp := assessResponse{
		Assessment: s.engine.Assess(detections, req.Width, req.Height),
	}
	resp.Points, resp.Summary = disposal.Reward(resp.Assessment)
	www.SendJSON(w, &resp)
}

// Draw detections onto a JPEG, and optionally assess them too.
// The rating is returned in a header, so that the body can be the raw JPEG.
func (s *Server) httpAnnotate(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type annotateRequest struct {
		Image   []byte         `json:"image"` // base64 encoded JPEG
		Objects []nn.Detection `json:"objects"`
		Assess  bool           `json:"assess"`
	}
	req := annotateRequest{}
	www.ReadJSON(w, r, &req, s.maxBodyBytes())
	if len(req.Image) == 0 {
		www.PanicBadRequestf("image is required")
	}
	img, err := annotate.DecodeJPEG(req.Image)
	if err != nil {
		www.PanicBadRequestf("%v", err)
	}
	detections := s.prepareDetections(img.Width, img.Height, req.Objects)

	var assessment *disposal.Assessment
	if req.Assess {
		assessment = s.engine.Assess(detections, img.Width, img.Height)
	}
	jpg, err := annotate.EncodeJPEG(s.annotator.Annotate(img, detections, assessment), s.config.JPEGQuality)
	www.Check(err)

	w.Header().Set("Content-Type", "image/jpeg")
	if assessment != nil {
		w.Header().Set("X-Binwatch-Rating", strconv.FormatFloat(assessment.Rating, 'f', -1, 64))
	}
	w.Write(jpg)
}

// Serve an annotated frame from the blob store
func (s *Server) httpFrame(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if s.frameStore == nil {
		www.PanicNotFound()
	}
	name := strings.TrimPrefix(params.ByName("name"), "/")
	if url, err := s.frameStore.URL(name); err == nil {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	file, err := s.frameStore.ReadFile(r.Context(), name)
	if errors.Is(err, storage.ErrInvalidName) {
		www.PanicBadRequestf("%v", err)
	} else if storage.IsNotExist(err) {
		www.PanicNotFound()
	}
	www.Check(err)
	defer file.Reader.Close()
	w.Header().Set("Content-Type", "image/jpeg")
	io.Copy(w, file.Reader)
}
