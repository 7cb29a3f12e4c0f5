package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

// Session owns one acquisition of the capture source. Start and Stop may be
// called any number of times; Stop returns only after the source is released.
type Session struct {
	cfgSvc      config.IService
	open        func(config.CaptureParameters) (Source, error)
	slots       []*FrameSlot
	errorStream chan interface{}
	statsStream chan interface{}

	mu     sync.Mutex
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(cfgSvc config.IService, errorStream chan interface{}, statsStream chan interface{}, slots ...*FrameSlot) *Session {
	return &Session{
		cfgSvc:      cfgSvc,
		open:        OpenSource,
		slots:       slots,
		errorStream: errorStream,
		statsStream: statsStream,
	}
}

// Start acquires the source and begins delivering frames. Acquisition
// failures are returned and reported on the error stream; nothing else
// happens, so the display simply stays without a feed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}

	params := s.cfgSvc.GetCaptureParameters()
	src, err := s.open(params)
	if err != nil {
		publish(s.errorStream, model.GenError("capture_session",
			err,
			map[string]interface{}{
				"source": params.Source,
				"device": params.Device,
				"preset": params.Preset,
			},
			"error acquiring capture source"))
		return err
	}

	id := uuid.NewString()
	sessCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer src.Close()
		framer(sessCtx, id, params.Source, src, s.errorStream, s.statsStream, s.slots)
	}()

	s.id = id
	s.cancel = cancel
	s.done = done

	lgr.Logger.Info("capture session started",
		slog.String("session", id),
		slog.String("source", params.Source),
		slog.String("preset", params.Preset),
	)
	return nil
}

func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done

	lgr.Logger.Info("capture session stopped", slog.String("session", s.id))

	s.cancel = nil
	s.done = nil
	s.id = ""
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
