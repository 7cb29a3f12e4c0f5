package mode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/inference"
)

type testConfig struct {
	config.IService
	source            string
	captureWhenHidden bool
}

func (c testConfig) GetWebParameters() config.WebParameters {
	params := c.IService.GetWebParameters()
	params.Enabled = true
	params.CaptureWhenHidden = c.captureWhenHidden
	return params
}

func (c testConfig) GetModeMaxShutdownTime() int {
	return 1
}

func (c testConfig) GetCaptureParameters() config.CaptureParameters {
	params := c.IService.GetCaptureParameters()
	params.Source = c.source
	params.Preset = config.PresetLow
	params.FPS = 50
	return params
}

type recordingData struct {
	mu         sync.Mutex
	errors     []interface{}
	framer     []model.FramerStats
	classifier []model.ClassifierStats
	display    []model.DisplayStats
}

func (r *recordingData) NewError(err interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	return nil
}

func (r *recordingData) NewFramerStats(stats model.FramerStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.framer = append(r.framer, stats)
	return nil
}

func (r *recordingData) NewClassifierStats(stats model.ClassifierStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier = append(r.classifier, stats)
	return nil
}

func (r *recordingData) NewDisplayStats(stats model.DisplayStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.display = append(r.display, stats)
	return nil
}

func (r *recordingData) Close() error {
	return nil
}

func (r *recordingData) framerReports() []model.FramerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FramerStats(nil), r.framer...)
}

func testServices(source string, fake *inference.FakeService) (pipeline.ServicesFactory, *recordingData) {
	return testServicesWith(testConfig{IService: config.NewHardCoded(), source: source}, fake)
}

func testServicesWith(cfg testConfig, fake *inference.FakeService) (pipeline.ServicesFactory, *recordingData) {
	data := &recordingData{}
	return pipeline.ServicesFactory{
		CfgSvc:       cfg,
		DataSvc:      data,
		InferenceSvc: fake,
	}, data
}

func TestConsoleStoresStatsOnShutdown(t *testing.T) {
	fake := inference.NewFake(inference.Classification{Label: "tabby, tabby cat", Confidence: 0.9})
	svcs, data := testServices(config.SourceRandom, fake)

	canxCtx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- Console(canxCtx, svcs)
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("console mode returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("console mode did not exit")
	}

	data.mu.Lock()
	defer data.mu.Unlock()

	if len(data.framer) != 1 || data.framer[0].Frames == 0 {
		t.Errorf("expected one framer report with frames, got %+v", data.framer)
	}
	if len(data.classifier) == 0 {
		t.Fatal("expected classifier stats")
	}
	last := data.classifier[len(data.classifier)-1]
	if last.Observations == 0 {
		t.Errorf("expected observations, got %+v", last)
	}
	if len(data.display) != 1 || data.display[0].Updates == 0 {
		t.Errorf("expected display stats with updates, got %+v", data.display)
	}
	if len(data.errors) != 0 {
		t.Errorf("unexpected errors: %+v", data.errors)
	}
}

func TestConsoleReportsMissingSource(t *testing.T) {
	svcs, data := testServices("carrier-pigeon", inference.NewFake())

	canxCtx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- Console(canxCtx, svcs)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	if err := <-result; err != nil {
		t.Fatalf("a missing source must not fail the mode: %v", err)
	}

	data.mu.Lock()
	defer data.mu.Unlock()

	if len(data.errors) != 1 {
		t.Fatalf("expected one acquisition error, got %d", len(data.errors))
	}
	if ce, ok := data.errors[0].(model.CustomError); !ok || ce.Processor != "capture_session" {
		t.Errorf("unexpected error report: %+v", data.errors[0])
	}
	if len(data.framer) != 0 {
		t.Errorf("no framer should have run, got %+v", data.framer)
	}
}

func TestProbe(t *testing.T) {
	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.5})
	svcs, data := testServices(config.SourceRandom, fake)

	if err := Probe(context.Background(), svcs); err != nil {
		t.Fatalf("probe failed: %v", err)
	}

	data.mu.Lock()
	defer data.mu.Unlock()

	if len(data.classifier) != 1 || data.classifier[0].Observations != 1 {
		t.Errorf("expected one observation, got %+v", data.classifier)
	}
}

func TestProbeModelFailure(t *testing.T) {
	fake := inference.NewFake()
	fake.SetLoadError(errors.New("model missing"))
	svcs, data := testServices(config.SourceRandom, fake)

	if err := Probe(context.Background(), svcs); err != nil {
		t.Fatalf("a frame without observation is not a probe failure: %v", err)
	}

	data.mu.Lock()
	defer data.mu.Unlock()

	if len(data.errors) != 1 {
		t.Errorf("expected the load failure to be reported, got %+v", data.errors)
	}
	if len(data.classifier) != 1 || data.classifier[0].LoadFailures != 1 {
		t.Errorf("unexpected classifier stats: %+v", data.classifier)
	}
}

func TestProbeBadSource(t *testing.T) {
	svcs, _ := testServices("carrier-pigeon", inference.NewFake())

	if err := Probe(context.Background(), svcs); err == nil {
		t.Error("probe should fail without a capture source")
	}
}

type stubDashboard struct {
	canxCtx    context.Context
	visibility chan bool
}

func (d *stubDashboard) Start() error {
	<-d.canxCtx.Done()
	return nil
}

func (d *stubDashboard) Visibility() <-chan bool {
	return d.visibility
}

func (d *stubDashboard) BroadcastPreview(_ []byte) {}

func (d *stubDashboard) PreviewViewers() int {
	return 0
}

// useStubDashboard swaps the web server for one whose visibility the test drives.
func useStubDashboard(t *testing.T) chan bool {
	t.Helper()

	visibility := make(chan bool)
	orig := newDashboard
	newDashboard = func(canxCtx context.Context, _ config.IService, _ *pipeline.Display) dashboard {
		return &stubDashboard{canxCtx: canxCtx, visibility: visibility}
	}
	t.Cleanup(func() { newDashboard = orig })
	return visibility
}

func waitForFramerReports(t *testing.T, data *recordingData, n int) []model.FramerStats {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if reports := data.framerReports(); len(reports) >= n {
			return reports
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d framer reports, got %d", n, len(data.framerReports()))
	return nil
}

func TestLiveCapturesOnlyWhileVisible(t *testing.T) {
	visibility := useStubDashboard(t)

	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.9})
	svcs, data := testServices(config.SourceRandom, fake)

	canxCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- Live(canxCtx, svcs)
	}()

	// hidden display: no capture
	time.Sleep(200 * time.Millisecond)
	if reports := data.framerReports(); len(reports) != 0 {
		t.Fatalf("capture ran while hidden: %+v", reports)
	}
	if len(fake.Calls()) != 0 {
		t.Fatal("frames were classified while hidden")
	}

	visibility <- true
	time.Sleep(200 * time.Millisecond)
	if len(fake.Calls()) == 0 {
		t.Error("no frames classified while visible")
	}

	visibility <- false
	reports := waitForFramerReports(t, data, 1)
	if reports[0].Frames == 0 {
		t.Errorf("expected frames from the visible period, got %+v", reports[0])
	}

	// a second viewer session starts a new capture session
	visibility <- true
	time.Sleep(100 * time.Millisecond)
	visibility <- false
	reports = waitForFramerReports(t, data, 2)
	if reports[0].Session == reports[1].Session {
		t.Error("each visible period should get its own session")
	}

	cancel()
	if err := <-result; err != nil {
		t.Fatalf("live mode returned error: %v", err)
	}
}

func TestLiveCapturesWhileHiddenWhenConfigured(t *testing.T) {
	useStubDashboard(t)

	fake := inference.NewFake(inference.Classification{Label: "cat", Confidence: 0.9})
	svcs, data := testServicesWith(testConfig{
		IService:          config.NewHardCoded(),
		source:            config.SourceRandom,
		captureWhenHidden: true,
	}, fake)

	canxCtx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- Live(canxCtx, svcs)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(fake.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(fake.Calls()) == 0 {
		t.Fatal("capture should start without any viewer")
	}

	cancel()
	if err := <-result; err != nil {
		t.Fatalf("live mode returned error: %v", err)
	}

	reports := data.framerReports()
	if len(reports) != 1 || reports[0].Frames == 0 {
		t.Errorf("expected one framer report with frames, got %+v", reports)
	}
}
