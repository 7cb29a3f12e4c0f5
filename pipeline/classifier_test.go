package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/inference"
)

func testServices(fake *inference.FakeService) ServicesFactory {
	return ServicesFactory{
		CfgSvc:       config.NewHardCoded(),
		InferenceSvc: fake,
	}
}

func TestClassifierPublishesFirstResult(t *testing.T) {
	d, cancel := startDisplay(t, -1)
	defer cancel()

	fake := inference.NewFake(
		inference.Classification{Label: "cat", Confidence: 0.932},
		inference.Classification{Label: "dog", Confidence: 0.05},
	)
	c := NewClassifier(testServices(fake), d.Updates(), nil, nil)

	obs, ok := c.Process(context.Background(), testFrame(1))
	if !ok {
		t.Fatal("expected an observation")
	}
	if obs.Label != "cat" || obs.Frame != 1 {
		t.Errorf("unexpected observation: %+v", obs)
	}

	state := waitForSeq(t, d, 1)
	if state.Label != "cat" {
		t.Errorf("expected label cat, got %q", state.Label)
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(state.Confidence, "%"), 64)
	if err != nil || !strings.HasSuffix(state.Confidence, "%") {
		t.Fatalf("unexpected confidence text %q", state.Confidence)
	}
	if v < 93.19 || v > 93.21 {
		t.Errorf("expected confidence near 93.2, got %v", v)
	}
}

func TestClassifierEmptyResultKeepsDisplay(t *testing.T) {
	d, cancel := startDisplay(t, -1)
	defer cancel()

	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.932})
	c := NewClassifier(testServices(fake), d.Updates(), nil, nil)

	c.Process(context.Background(), testFrame(1))
	before := waitForSeq(t, d, 1)

	fake.SetResults()
	if _, ok := c.Process(context.Background(), testFrame(2)); ok {
		t.Error("empty result must not publish")
	}

	after, err := d.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if after != before {
		t.Errorf("display changed on an empty result: before %+v, after %+v", before, after)
	}

	stats := c.Stats(nil)
	if stats.Frames != 2 || stats.Observations != 1 || stats.EmptyResults != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestClassifierEmptyResultOnFirstFrame(t *testing.T) {
	d, cancel := startDisplay(t, -1)
	defer cancel()

	c := NewClassifier(testServices(inference.NewFake()), d.Updates(), nil, nil)
	if _, ok := c.Process(context.Background(), testFrame(1)); ok {
		t.Error("empty result must not publish")
	}

	state, _ := d.Snapshot(context.Background())
	if state != (model.DisplayState{}) {
		t.Errorf("display should still be empty, got %+v", state)
	}
}

func TestClassifierModelLoadFailure(t *testing.T) {
	d, cancel := startDisplay(t, -1)
	defer cancel()

	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.5})
	c := NewClassifier(testServices(fake), d.Updates(), nil, nil)

	c.Process(context.Background(), testFrame(1))
	before := waitForSeq(t, d, 1)

	fake.SetLoadError(errors.New("model missing"))
	for seq := int64(2); seq <= 3; seq++ {
		if _, ok := c.Process(context.Background(), testFrame(seq)); ok {
			t.Errorf("frame %d: load failure must not publish", seq)
		}
	}

	after, _ := d.Snapshot(context.Background())
	if after != before {
		t.Errorf("display changed on load failure: before %+v, after %+v", before, after)
	}

	// each frame tries to load again
	if fake.Loads() != 3 {
		t.Errorf("expected 3 load attempts, got %d", fake.Loads())
	}
	if c.Stats(nil).LoadFailures != 2 {
		t.Errorf("expected 2 load failures, got %d", c.Stats(nil).LoadFailures)
	}

	// recovers on the next frame once the model is back
	fake.SetLoadError(nil)
	fake.SetResults(inference.Classification{Label: "dog", Confidence: 0.25})
	c.Process(context.Background(), testFrame(4))
	if state := waitForSeq(t, d, 2); state.Label != "dog" {
		t.Errorf("expected dog after recovery, got %+v", state)
	}
}

func TestClassifierReportsLoadFailureOnce(t *testing.T) {
	fake := inference.NewFake()
	fake.SetLoadError(errors.New("model missing"))

	errorStream := make(chan interface{}, 10)
	c := NewClassifier(testServices(fake), nil, errorStream, nil)

	for seq := int64(1); seq <= 3; seq++ {
		c.Process(context.Background(), testFrame(seq))
	}

	if len(errorStream) != 1 {
		t.Fatalf("expected one error report, got %d", len(errorStream))
	}
	if e, ok := (<-errorStream).(model.CustomError); !ok || e.Processor != "classifier" {
		t.Errorf("unexpected error report: %+v", e)
	}
}

func TestClassifierInferenceError(t *testing.T) {
	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.5})
	fake.SetClassifyError(errors.New("forward failed"))

	updates := make(chan model.Observation, 1)
	c := NewClassifier(testServices(fake), updates, nil, nil)

	if _, ok := c.Process(context.Background(), testFrame(1)); ok {
		t.Error("inference error must not publish")
	}
	if len(updates) != 0 {
		t.Error("nothing should be posted to the display")
	}
	if c.Stats(nil).Errors != 1 {
		t.Errorf("expected 1 error, got %d", c.Stats(nil).Errors)
	}
}

func TestClassifierNeverOverlaps(t *testing.T) {
	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.5})
	fake.SetDelay(30 * time.Millisecond)

	updates := make(chan model.Observation, 10)
	c := NewClassifier(testServices(fake), updates, nil, nil)

	var wg sync.WaitGroup
	for seq := int64(1); seq <= 2; seq++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			c.Process(context.Background(), testFrame(seq))
		}(seq)
	}
	wg.Wait()

	if fake.MaxInFlight() != 1 {
		t.Errorf("expected at most one inference in flight, saw %d", fake.MaxInFlight())
	}

	calls := fake.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if gap := calls[1].Sub(calls[0]); gap < 30*time.Millisecond {
		t.Errorf("second inference started %v after the first, before it completed", gap)
	}
}

func TestClassifierRunProcessesInCaptureOrder(t *testing.T) {
	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.5})
	fake.SetDelay(5 * time.Millisecond)

	updates := make(chan model.Observation, 100)
	statsStream := make(chan interface{}, 10)
	c := NewClassifier(testServices(fake), updates, nil, statsStream)

	ctx, cancel := context.WithCancel(context.Background())
	slot := NewFrameSlot()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, slot)
	}()

	// a capture double: puts frames in order faster than they are classified
	for seq := int64(1); seq <= 20; seq++ {
		slot.Put(testFrame(seq))
		time.Sleep(time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	var last int64
	for last != 20 && time.Now().Before(deadline) {
		select {
		case obs := <-updates:
			if obs.Frame <= last {
				t.Errorf("frame %d processed after frame %d", obs.Frame, last)
			}
			last = obs.Frame
		case <-time.After(100 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if last != 20 {
		t.Errorf("expected the latest frame to be processed last, got %d", last)
	}
	if fake.MaxInFlight() != 1 {
		t.Errorf("expected serialized inference, saw %d in flight", fake.MaxInFlight())
	}

	select {
	case s := <-statsStream:
		stats, ok := s.(model.ClassifierStats)
		if !ok {
			t.Fatalf("unexpected stats type %T", s)
		}
		if stats.Frames == 0 || stats.Frames+int(stats.DroppedFrames) != 20 {
			t.Errorf("processed and dropped frames should add up to 20: %+v", stats)
		}
	default:
		t.Error("expected final stats on exit")
	}
}
