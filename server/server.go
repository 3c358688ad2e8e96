// Package server hosts the assessment engine over HTTP, with a websocket for video streams.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cyclopcam/binwatch/pkg/annotate"
	"github.com/cyclopcam/binwatch/pkg/disposal"
	"github.com/cyclopcam/binwatch/pkg/nn"
	"github.com/cyclopcam/binwatch/pkg/storage"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

type Server struct {
	Log logs.Log

	config     Config
	engine     *disposal.Engine
	annotator  *annotate.Annotator
	input      nn.InputOptions
	frameStore storage.Storage // nil if frames are not stored
	maxBody    int64

	shutdownCtx    context.Context // Cancelled when Shutdown starts, which aborts running streams
	shutdownCancel context.CancelFunc
	signalIn       chan os.Signal
	httpServer     *http.Server
	httpRouter     *httprouter.Router
	wsUpgrader     websocket.Upgrader
	lastStreamID   atomic.Int64
	shutdownOnce   sync.Once
	shutdownDone   chan struct{}
}

// NewServer loads the config file and creates a server that logs to stdout
func NewServer(configFile string) (*Server, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	logger, err := logs.NewLog()
	if err != nil {
		return nil, err
	}
	return NewServerWithConfig(logger, cfg)
}

func NewServerWithConfig(logger logs.Log, cfg *Config) (*Server, error) {
	classifier := disposal.DefaultClassifier()
	if cfg.Vocabulary != "" {
		vocab, err := disposal.LoadVocabulary(cfg.Vocabulary)
		if err != nil {
			return nil, err
		}
		classifier, err = disposal.NewClassifier(vocab)
		if err != nil {
			return nil, fmt.Errorf("Invalid vocabulary %v: %w", cfg.Vocabulary, err)
		}
	}

	// Open blob store for annotated stream frames
	var frameStore storage.Storage
	var err error
	if cfg.FrameStorage.GCS != nil {
		frameStore, err = storage.NewStorageGCS(context.Background(), logger, cfg.FrameStorage.GCS.Bucket, cfg.FrameStorage.GCS.Prefix, cfg.FrameStorage.GCS.Public)
		if err != nil {
			return nil, err
		}
	} else if cfg.FrameStorage.Filesystem != nil {
		frameStore, err = storage.NewStorageFS(logger, cfg.FrameStorage.Filesystem.Root)
		if err != nil {
			return nil, err
		}
	}

	maxBody, err := cfg.MaxBodyBytes()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Log:            logger,
		config:         *cfg,
		engine:         disposal.NewEngine(classifier),
		annotator:      annotate.NewAnnotator(classifier),
		input:          nn.InputOptions{MinConfidence: cfg.MinConfidence, MergeIoU: cfg.MergeIoU},
		frameStore:     frameStore,
		maxBody:        maxBody,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
		shutdownDone:   make(chan struct{}),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	if err := s.setupHttpRoutes(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

func (s *Server) maxBodyBytes() int64 {
	return s.maxBody
}

// Listen on the address from the config file, eg ":8080"
func (s *Server) ListenHTTP() error {
	s.Log.Infof("Listening on %v", s.config.Listen)
	s.httpServer = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// Shutdown() was called by something other than ourselves, and it closed signalIn
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops running streams and the HTTP server. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

// ShutdownComplete is closed when Shutdown has finished
func (s *Server) ShutdownComplete() <-chan struct{} {
	return s.shutdownDone
}

func (s *Server) shutdown() {
	defer close(s.shutdownDone)
	s.Log.Infof("Shutdown")
	s.shutdownCancel()
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("Shutdown complete, with error: %v", err)
			return
		}
	}
	s.Log.Infof("Shutdown complete")
}
