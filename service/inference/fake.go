package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// FakeService hands out a FakeModel. It records load and classify calls and
// the maximum number of Classify calls seen running at the same time.
type FakeService struct {
	mu          sync.Mutex
	results     []Classification
	loadErr     error
	classifyErr error
	delay       time.Duration

	loads       int
	invalidated int
	inFlight    int32
	maxInFlight int32
	calls       []time.Time
}

func NewFake(results ...Classification) *FakeService {
	return &FakeService{
		results: results,
	}
}

// SetResults replaces the ranked list returned by subsequent Classify calls.
func (svc *FakeService) SetResults(results ...Classification) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.results = results
}

func (svc *FakeService) SetLoadError(err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.loadErr = err
}

func (svc *FakeService) SetClassifyError(err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.classifyErr = err
}

// SetDelay makes Classify block for d, simulating a slow network.
func (svc *FakeService) SetDelay(d time.Duration) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.delay = d
}

func (svc *FakeService) Load() (Model, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.loads++
	if svc.loadErr != nil {
		return nil, svc.loadErr
	}
	return &fakeModel{svc: svc}, nil
}

func (svc *FakeService) Invalidate() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.invalidated++
}

func (svc *FakeService) Close() error {
	return nil
}

func (svc *FakeService) Loads() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.loads
}

func (svc *FakeService) Invalidations() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.invalidated
}

// Calls returns the start time of every Classify call.
func (svc *FakeService) Calls() []time.Time {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]time.Time, len(svc.calls))
	copy(out, svc.calls)
	return out
}

func (svc *FakeService) MaxInFlight() int {
	return int(atomic.LoadInt32(&svc.maxInFlight))
}

type fakeModel struct {
	svc *FakeService
}

func (m *fakeModel) Name() string {
	return "fake"
}

func (m *fakeModel) Classify(ctx context.Context, _ gocv.Mat) ([]Classification, error) {
	n := atomic.AddInt32(&m.svc.inFlight, 1)
	defer atomic.AddInt32(&m.svc.inFlight, -1)
	for {
		cur := atomic.LoadInt32(&m.svc.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&m.svc.maxInFlight, cur, n) {
			break
		}
	}

	m.svc.mu.Lock()
	m.svc.calls = append(m.svc.calls, time.Now())
	results := make([]Classification, len(m.svc.results))
	copy(results, m.svc.results)
	err := m.svc.classifyErr
	delay := m.svc.delay
	m.svc.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return results, nil
}
