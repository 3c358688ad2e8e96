package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func det(class string, x1, y1, x2, y2 float64) nn.Detection {
	return nn.Detection{Class: class, Confidence: 0.9, Box: nn.NewBox(x1, y1, x2, y2)}
}

// Rating 4.0
func perfectNoPerson() []nn.Detection {
	return []nn.Detection{det("trash can", 0, 0, 10, 10), det("bottle", 0, 0, 10, 10)}
}

// Rating 2.0
func halfGood() []nn.Detection {
	return []nn.Detection{det("trash can", 0, 0, 10, 10), det("bottle", 0, 0, 10, 10), det("bottle", 90, 90, 100, 100)}
}

func setup(t *testing.T, modify func(cfg *Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	if modify != nil {
		modify(&cfg)
	}
	require.NoError(t, cfg.Validate())
	s, err := NewServerWithConfig(logs.NewTestingLog(t), &cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown()
		ts.Close()
	})
	return s, ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, obj any) {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(obj))
}

func TestPing(t *testing.T) {
	_, ts := setup(t, nil)
	resp, err := http.Get(ts.URL + "/api/ping")
	require.NoError(t, err)
	ping := struct {
		Time int64 `json:"time"`
	}{}
	decodeJSON(t, resp, &ping)
	require.NotZero(t, ping.Time)
}

type assessResponseJSON struct {
	Assessment disposal.Assessment `json:"assessment"`
	Points     int                 `json:"points"`
	Summary    string              `json:"summary"`
}

func TestAssess(t *testing.T) {
	_, ts := setup(t, nil)

	resp := postJSON(t, ts.URL+"/api/assess", map[string]any{"width": 100, "height": 100, "objects": perfectNoPerson()})
	res := assessResponseJSON{}
	decodeJSON(t, resp, &res)
	require.InDelta(t, 4.0, res.Assessment.Rating, 1e-9)
	require.Len(t, res.Assessment.Events, 1)
	require.True(t, res.Assessment.Events[0].Proper)
	require.NotNil(t, res.Assessment.Events[0].Bin)
	require.Nil(t, res.Assessment.Events[0].Person)
	require.Equal(t, 1, res.Points)

	// No trash
	resp = postJSON(t, ts.URL+"/api/assess", map[string]any{"width": 100, "height": 100, "objects": []nn.Detection{}})
	res = assessResponseJSON{}
	decodeJSON(t, resp, &res)
	require.Equal(t, 0.0, res.Assessment.Rating)
	require.Empty(t, res.Assessment.Events)
	require.Equal(t, 0, res.Points)
}

func TestAssessRejectsBadInput(t *testing.T) {
	_, ts := setup(t, nil)

	bad := []any{
		map[string]any{"width": 100, "height": 100, "objects": []nn.Detection{{Class: "bottle", Confidence: 1.5, Box: nn.NewBox(0, 0, 1, 1)}}},
		map[string]any{"width": 100, "height": 100, "objects": []nn.Detection{det("bottle", 5, 5, 1, 1)}},
		map[string]any{"width": -1, "height": 100, "objects": []nn.Detection{}},
	}
	for _, body := range bad {
		resp := postJSON(t, ts.URL+"/api/assess", body)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp, err := http.Post(ts.URL+"/api/assess", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func testJPEG(t *testing.T, width, height int) []byte {
	jpg, err := annotate.EncodeJPEG(cimg.NewImage(width, height, cimg.PixelFormatRGB), 0)
	require.NoError(t, err)
	return jpg
}

func TestAnnotate(t *testing.T) {
	_, ts := setup(t, nil)

	resp := postJSON(t, ts.URL+"/api/annotate", map[string]any{
		"image":   testJPEG(t, 100, 100),
		"objects": perfectNoPerson(),
		"assess":  true,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, "4", resp.Header.Get("X-Binwatch-Rating"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := annotate.DecodeJPEG(body)
	require.NoError(t, err)
	require.Equal(t, 100, img.Width)
	require.Equal(t, 100, img.Height)

	resp2 := postJSON(t, ts.URL+"/api/annotate", map[string]any{"image": []byte("garbage"), "objects": perfectNoPerson()})
	resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3 := postJSON(t, ts.URL+"/api/annotate", map[string]any{"objects": perfectNoPerson()})
	resp3.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, ts := setup(t, func(cfg *Config) {
		cfg.RateLimit = 2
	})
	body := map[string]any{"width": 100, "height": 100, "objects": perfectNoPerson()}
	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/api/assess", body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := postJSON(t, ts.URL+"/api/assess", body)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// ping is not rate limited
	for i := 0; i < 5; i++ {
		resp, err := http.Get(ts.URL + "/api/ping")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestAchievementsAndVocabulary(t *testing.T) {
	_, ts := setup(t, nil)

	resp, err := http.Get(ts.URL + "/api/achievements?points=120")
	require.NoError(t, err)
	ach := struct {
		Current disposal.Achievement  `json:"current"`
		Next    *disposal.Achievement `json:"next"`
	}{}
	decodeJSON(t, resp, &ach)
	require.Equal(t, "recycler", ach.Current.ID)
	require.Equal(t, "eco_warrior", ach.Next.ID)

	resp, err = http.Get(ts.URL + "/api/vocabulary")
	require.NoError(t, err)
	vocab := disposal.Vocabulary{}
	decodeJSON(t, resp, &vocab)
	require.Equal(t, *disposal.DefaultVocabulary(), vocab)
}

func dialStream(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream" + query
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readOut(t *testing.T, c *websocket.Conn) *streamOutMessage {
	t.Helper()
	msgType, data, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	msg := &streamOutMessage{}
	require.NoError(t, json.Unmarshal(data, msg))
	return msg
}

func TestStream(t *testing.T) {
	_, ts := setup(t, nil)
	c := dialStream(t, ts, "")

	frames := [][]nn.Detection{perfectNoPerson(), halfGood(), perfectNoPerson(), perfectNoPerson()}
	for i, objects := range frames {
		require.NoError(t, c.WriteJSON(streamInMessage{ImageLabels: nn.ImageLabels{Frame: i + 1, Width: 100, Height: 100, Objects: objects}}))
	}
	require.NoError(t, c.WriteJSON(streamInMessage{Command: "end"}))

	msg := readOut(t, c)
	require.Equal(t, "frame", msg.Type)
	require.Equal(t, 2, msg.Frame.Frame)
	require.InDelta(t, 2.0, msg.Frame.Rating, 1e-9)

	msg = readOut(t, c)
	require.Equal(t, "frame", msg.Type)
	require.Equal(t, 4, msg.Frame.Frame)
	require.InDelta(t, 3.0, msg.Frame.RunningAverage, 1e-9)

	msg = readOut(t, c)
	require.Equal(t, "result", msg.Type)
	require.Equal(t, 4, msg.Result.FramesSeen)
	require.Equal(t, 2, msg.Result.FramesProcessed)
	require.InDelta(t, 3.0, *msg.Result.AverageRating, 1e-9)
}

func TestStreamEmpty(t *testing.T) {
	_, ts := setup(t, nil)
	c := dialStream(t, ts, "")
	require.NoError(t, c.WriteJSON(streamInMessage{Command: "end"}))
	msg := readOut(t, c)
	require.Equal(t, "result", msg.Type)
	require.Equal(t, 0, msg.Result.FramesProcessed)
	require.Nil(t, msg.Result.AverageRating)
}

func TestStreamRejectsBadFrame(t *testing.T) {
	_, ts := setup(t, nil)
	c := dialStream(t, ts, "?stride=1")
	require.NoError(t, c.WriteJSON(streamInMessage{ImageLabels: nn.ImageLabels{Width: 100, Height: 100, Objects: perfectNoPerson()}}))
	require.NoError(t, c.WriteJSON(streamInMessage{ImageLabels: nn.ImageLabels{Width: 100, Height: 100, Objects: []nn.Detection{det("bottle", 9, 9, 1, 1)}}}))

	msg := readOut(t, c)
	require.Equal(t, "frame", msg.Type)
	msg = readOut(t, c)
	require.Equal(t, "result", msg.Type)
	require.Equal(t, 1, msg.Result.FramesProcessed)
	msg = readOut(t, c)
	require.Equal(t, "error", msg.Type)
	require.Contains(t, msg.Error, "malformed detection")
}

func TestStreamAnnotatedFramesAreStored(t *testing.T) {
	root := t.TempDir()
	_, ts := setup(t, func(cfg *Config) {
		cfg.FrameStorage.Filesystem = &StorageConfigFS{Root: root}
		cfg.Workers = 2
	})
	c := dialStream(t, ts, "?stride=1&annotate=1")

	for i := 0; i < 2; i++ {
		require.NoError(t, c.WriteJSON(streamInMessage{
			ImageLabels: nn.ImageLabels{Objects: perfectNoPerson()},
			JPEG:        testJPEG(t, 80, 60),
		}))
	}
	require.NoError(t, c.WriteJSON(streamInMessage{Command: "end"}))

	for i := 0; i < 2; i++ {
		msg := readOut(t, c)
		require.Equal(t, "frame", msg.Type)
		require.Equal(t, i+1, msg.Frame.Frame)
		require.Equal(t, 80, msg.Frame.Width)

		msgType, jpg, err := c.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, msgType)
		img, err := annotate.DecodeJPEG(jpg)
		require.NoError(t, err)
		require.Equal(t, 60, img.Height)
	}
	msg := readOut(t, c)
	require.Equal(t, "result", msg.Type)
	require.Equal(t, 2, msg.Result.FramesProcessed)

	_, err := os.Stat(filepath.Join(root, "stream-1", "frame-000002.jpg"))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/frames/stream-1/frame-000002.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(ts.URL + "/api/frames/stream-1/frame-000099.jpg")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestFramesWithoutStorage(t *testing.T) {
	_, ts := setup(t, nil)
	resp, err := http.Get(ts.URL + "/api/frames/stream-1/frame-000002.jpg")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "binwatch.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"listen": ":9999", "vocabulary": "vocab.json", "stride": 3}`), 0644))
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Listen)
	require.Equal(t, 3, cfg.Stride)
	require.Equal(t, "16 MB", cfg.MaxBody)
	require.Equal(t, filepath.Join(dir, "vocab.json"), cfg.Vocabulary)

	require.NoError(t, os.WriteFile(fn, []byte(`{"frameStorage": {"filesystem": {"root": "x"}, "gcs": {"bucket": "y"}}}`), 0644))
	_, err = LoadConfig(fn)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(fn, []byte(`{"maxBody": "lots"}`), 0644))
	_, err = LoadConfig(fn)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(fn, []byte(`{"minConfidence": 2}`), 0644))
	_, err = LoadConfig(fn)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestCustomVocabulary(t *testing.T) {
	dir := t.TempDir()
	vocabFile := filepath.Join(dir, "vocab.json")
	require.NoError(t, os.WriteFile(vocabFile, []byte(`{"trash": ["wrapper"], "bin": ["skip"], "person": ["human"]}`), 0644))

	_, ts := setup(t, func(cfg *Config) {
		cfg.Vocabulary = vocabFile
	})
	resp := postJSON(t, ts.URL+"/api/assess", map[string]any{
		"width":   100,
		"height":  100,
		"objects": []nn.Detection{det("skip", 0, 0, 10, 10), det("wrapper", 0, 0, 10, 10), det("bottle", 50, 50, 60, 60)},
	})
	res := assessResponseJSON{}
	decodeJSON(t, resp, &res)
	require.Len(t, res.Assessment.Trashes, 1)
	require.InDelta(t, 4.0, res.Assessment.Rating, 1e-9)

	// Overlapping roles are a configuration error
	require.NoError(t, os.WriteFile(vocabFile, []byte(`{"trash": ["skip"], "bin": ["skip"]}`), 0644))
	cfg := DefaultConfig()
	cfg.Vocabulary = vocabFile
	_, err := NewServerWithConfig(logs.NewTestingLog(t), &cfg)
	require.Error(t, err)
}
