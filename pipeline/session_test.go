package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"gocv.io/x/gocv"
)

type stubSource struct {
	mu     sync.Mutex
	reads  int
	closed bool
}

func (s *stubSource) Read(m *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.reads++

	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	img.CopyTo(m)
	img.Close()
	time.Sleep(time.Millisecond)
	return true
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestSessionStartStop(t *testing.T) {
	src := &stubSource{}
	opens := 0
	slot := NewFrameSlot()
	statsStream := make(chan interface{}, 10)

	s := NewSession(config.NewHardCoded(), nil, statsStream, slot)
	s.open = func(config.CaptureParameters) (Source, error) {
		opens++
		return src, nil
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if opens != 1 {
		t.Errorf("source should be acquired once, got %d", opens)
	}
	if !s.Running() || s.ID() == "" {
		t.Error("session should be running with an id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := slot.Take(ctx)
	if !ok {
		t.Fatal("no frame delivered")
	}
	first.Mat.Close()
	second, ok := slot.Take(ctx)
	if !ok {
		t.Fatal("no second frame delivered")
	}
	second.Mat.Close()

	if second.Seq <= first.Seq {
		t.Errorf("frames out of capture order: %d then %d", first.Seq, second.Seq)
	}
	if first.Session != second.Session || first.Session == "" {
		t.Error("frames should carry the session id")
	}

	s.Stop()
	s.Stop()

	if !src.isClosed() {
		t.Error("Stop must release the source")
	}
	if s.Running() {
		t.Error("session should not be running after Stop")
	}

	select {
	case st := <-statsStream:
		if fs, ok := st.(model.FramerStats); !ok || fs.Frames == 0 {
			t.Errorf("unexpected framer stats: %+v", st)
		}
	default:
		t.Error("expected framer stats after stop")
	}
	slot.Close()
}

func TestSessionRestart(t *testing.T) {
	var sources []*stubSource
	s := NewSession(config.NewHardCoded(), nil, nil, NewFrameSlot())
	s.open = func(config.CaptureParameters) (Source, error) {
		src := &stubSource{}
		sources = append(sources, src)
		return src, nil
	}

	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		s.Stop()
	}

	if len(sources) != 2 {
		t.Fatalf("expected 2 acquisitions, got %d", len(sources))
	}
	for i, src := range sources {
		if !src.isClosed() {
			t.Errorf("source %d was not released", i)
		}
	}
}

func TestSessionAcquisitionFailure(t *testing.T) {
	errorStream := make(chan interface{}, 1)
	s := NewSession(config.NewHardCoded(), errorStream, nil, NewFrameSlot())
	openErr := errors.New("no video device")
	s.open = func(config.CaptureParameters) (Source, error) {
		return nil, openErr
	}

	if err := s.Start(context.Background()); !errors.Is(err, openErr) {
		t.Errorf("expected acquisition error, got %v", err)
	}
	if s.Running() {
		t.Error("session must not run without a source")
	}

	select {
	case e := <-errorStream:
		if ce, ok := e.(model.CustomError); !ok || ce.Processor != "capture_session" {
			t.Errorf("unexpected error report: %+v", e)
		}
	default:
		t.Error("expected an error report")
	}

	// stopping a session that never started is a no-op
	s.Stop()
}

type deadSource struct{}

func (deadSource) Read(_ *gocv.Mat) bool { return false }
func (deadSource) Close() error          { return nil }

func TestSessionReportsFailingSourceOnce(t *testing.T) {
	errorStream := make(chan interface{}, 4)
	s := NewSession(config.NewHardCoded(), errorStream, nil, NewFrameSlot())
	s.open = func(config.CaptureParameters) (Source, error) {
		return deadSource{}, nil
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case e := <-errorStream:
		if ce, ok := e.(model.CustomError); !ok || ce.Processor != "framer" {
			t.Errorf("unexpected error report: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("a source that never produces frames should be reported")
	}

	// the streak is reported once, not on every failed read
	time.Sleep(3 * readFailureReport * readRetryDelay / 2)
	s.Stop()

	if n := len(errorStream); n != 0 {
		t.Errorf("expected a single report, got %d more", n)
	}
}

func TestPresets(t *testing.T) {
	p, ok := PresetSize(config.PresetPhoto)
	if !ok {
		t.Fatal("photo preset missing")
	}
	if p.Width*3 != p.Height*4 {
		t.Errorf("photo preset should be 4:3, got %dx%d", p.Width, p.Height)
	}

	if _, ok := PresetSize("cinema"); ok {
		t.Error("unknown preset should not resolve")
	}

	if _, err := OpenSource(config.CaptureParameters{Source: config.SourceDevice, Preset: "cinema"}); err == nil {
		t.Error("OpenSource should reject unknown presets")
	}
	if _, err := OpenSource(config.CaptureParameters{Source: "carrier-pigeon", Preset: config.PresetLow}); err == nil {
		t.Error("OpenSource should reject unknown sources")
	}
	if _, err := OpenSource(config.CaptureParameters{Source: config.SourceURL, Preset: config.PresetLow}); err == nil {
		t.Error("OpenSource should reject an empty url")
	}
}

func TestRandomSource(t *testing.T) {
	src, err := OpenSource(config.CaptureParameters{Source: config.SourceRandom, Preset: config.PresetLow, FPS: 100})
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}

	img := gocv.NewMat()
	defer img.Close()

	if !src.Read(&img) {
		t.Fatal("random source should produce a frame")
	}
	if img.Cols() != 640 || img.Rows() != 480 {
		t.Errorf("expected 640x480 frame, got %dx%d", img.Cols(), img.Rows())
	}

	src.Close()
	if src.Read(&img) {
		t.Error("closed source should not produce frames")
	}
}
