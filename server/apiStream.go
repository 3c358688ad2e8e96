package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/stream"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// A message from the client. Either a frame, or a command.
type streamInMessage struct {
	Command string `json:"command,omitempty"` // "end" finishes the stream
	nn.ImageLabels
	JPEG []byte `json:"jpeg,omitempty"` // Optional frame image, base64 encoded JPEG
}

// A message to the client
type streamOutMessage struct {
	Type   string              `json:"type"` // "frame", "result", or "error"
	Frame  *stream.FrameResult `json:"frame,omitempty"`
	Result *stream.Result      `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// webSocketSource reads frames from a websocket, until the client sends the "end" command
type webSocketSource struct {
	conn *websocket.Conn
	n    int
}

func (src *webSocketSource) Next(ctx context.Context) (*stream.Frame, error) {
	msg := streamInMessage{}
	if err := src.conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			// The client hung up without saying "end"
			return nil, io.EOF
		}
		return nil, err
	}
	switch msg.Command {
	case "":
	case "end":
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("Unknown command '%v'", msg.Command)
	}
	src.n++
	if msg.Frame == 0 {
		msg.Frame = src.n
	}

	frame := &stream.Frame{
		Number:     msg.Frame,
		Width:      msg.Width,
		Height:     msg.Height,
		Detections: msg.Objects,
	}
	if len(msg.JPEG) != 0 {
		img, err := annotate.DecodeJPEG(msg.JPEG)
		if err != nil {
			return nil, fmt.Errorf("Frame %v: %w", msg.Frame, err)
		}
		frame.Image = img
		frame.Width = img.Width
		frame.Height = img.Height
	}
	if err := nn.ValidateImageSize(frame.Width, frame.Height); err != nil {
		return nil, fmt.Errorf("Frame %v: %w", msg.Frame, err)
	}
	if err := nn.ValidateDetections(frame.Detections); err != nil {
		return nil, fmt.Errorf("Frame %v: %w", msg.Frame, err)
	}
	return frame, nil
}

// httpStream runs the stream aggregator over frames sent by the client.
// Query parameters:
//
//	stride    Sampling stride (defaults to the server config)
//	annotate  If 1, every processed frame that carried a JPEG is sent back annotated, as a binary message
//
// For every processed frame the client receives a "frame" message (followed by
// the annotated JPEG if requested), and finally a "result" message.
func (s *Server) httpStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	stride := www.QueryInt(r, "stride")
	if stride < 0 {
		www.PanicBadRequestf("stride may not be negative")
	} else if stride == 0 {
		stride = s.config.Stride
	}
	wantAnnotated := www.QueryInt(r, "annotate") == 1

	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpStream websocket upgrade failed: %v", err)
		return
	}
	defer c.Close()
	c.SetReadLimit(s.maxBodyBytes())

	id := s.lastStreamID.Add(1)
	log := logs.NewPrefixLogger(s.Log, fmt.Sprintf("Stream %v:", id))
	log.Infof("Starting (stride %v, annotate %v)", stride, wantAnnotated)

	// Unblock the reader when the server shuts down
	ctx, cancel := context.WithCancel(s.shutdownCtx)
	defer cancel()
	go func() {
		<-ctx.Done()
		c.SetReadDeadline(time.Now())
	}()

	var writeErr error
	send := func(msg *streamOutMessage) {
		if writeErr == nil {
			writeErr = c.WriteJSON(msg)
		}
	}

	opts := stream.Options{
		Stride:    stride,
		Workers:   s.config.Workers,
		Annotate:  wantAnnotated,
		Engine:    s.engine,
		Annotator: s.annotator,
		Input:     s.input,
		Log:       log,
		OnFrame: func(fr *stream.FrameResult) {
			send(&streamOutMessage{Type: "frame", Frame: fr})
			if fr.Annotated != nil && writeErr == nil {
				jpg, err := annotate.EncodeJPEG(fr.Annotated, s.config.JPEGQuality)
				if err != nil {
					log.Warnf("Failed to compress frame %v: %v", fr.Frame, err)
					return
				}
				writeErr = c.WriteMessage(websocket.BinaryMessage, jpg)
			}
		},
	}
	if wantAnnotated && s.frameStore != nil {
		sink := stream.NewStorageSink(log, s.frameStore)
		sink.Prefix = fmt.Sprintf("stream-%v/", id)
		sink.Keep = s.config.KeepFrames
		sink.Quality = s.config.JPEGQuality
		opts.Sink = sink
	}

	result, err := stream.Process(ctx, &webSocketSource{conn: c}, opts)
	send(&streamOutMessage{Type: "result", Result: result})
	if err != nil {
		log.Warnf("Stream failed: %v", err)
		send(&streamOutMessage{Type: "error", Error: err.Error()})
	}
	if writeErr != nil {
		log.Infof("Failed to write to websocket: %v", writeErr)
		return
	}
	c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}
