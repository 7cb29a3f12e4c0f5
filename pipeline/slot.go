package pipeline

import (
	"context"
	"sync"
)

// FrameSlot holds at most one frame. A new frame replaces (and closes) one
// that is still waiting, so consumers always see the latest capture.
type FrameSlot struct {
	mu      sync.Mutex
	frame   *FrameData
	ready   chan struct{}
	dropped int64
	closed  bool
}

func NewFrameSlot() *FrameSlot {
	return &FrameSlot{
		ready: make(chan struct{}, 1),
	}
}

// Put stores f and reports whether a waiting frame was overwritten. Once the
// slot is closed, f is closed and counted as dropped.
func (s *FrameSlot) Put(f FrameData) bool {
	s.mu.Lock()
	if s.closed {
		f.Mat.Close()
		s.dropped++
		s.mu.Unlock()
		return false
	}

	overwrote := false
	if s.frame != nil {
		s.frame.Mat.Close() // Crucial to close the image to avoid memory leaks
		s.dropped++
		overwrote = true
	}
	s.frame = &f
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}

	return overwrote
}

// Take blocks until a frame is available or ctx is done.
func (s *FrameSlot) Take(ctx context.Context) (FrameData, bool) {
	for {
		s.mu.Lock()
		if s.frame != nil {
			f := *s.frame
			s.frame = nil
			s.mu.Unlock()
			return f, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return FrameData{}, false
		case <-s.ready:
		}
	}
}

func (s *FrameSlot) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close drains the slot and makes later Puts release their frames. The
// consumer calls it when it stops taking.
func (s *FrameSlot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.frame != nil {
		s.frame.Mat.Close()
		s.frame = nil
	}
}
