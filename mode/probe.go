package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

const (
	probeReadAttempts = 50
	probeReadDelay    = 100 * time.Millisecond
)

// Probe classifies a single frame and prints the result. It checks that the
// capture source and the model work without starting the long-running modes.
func Probe(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	statsStream, errorStream := newStreams()
	defer drainReports(svcs, statsStream, errorStream)

	params := svcs.CfgSvc.GetCaptureParameters()
	src, err := pipeline.OpenSource(params)
	if err != nil {
		return xerrors.Errorf("probe could not open %s source: %w", params.Source, err)
	}
	defer src.Close()

	img := gocv.NewMat()
	defer img.Close()

	// Devices often return empty frames while warming up
	got := false
	for i := 0; i < probeReadAttempts && canxCtx.Err() == nil; i++ {
		if src.Read(&img) && !img.Empty() {
			got = true
			break
		}
		time.Sleep(probeReadDelay)
	}
	if !got {
		return xerrors.New("probe got no frame from the capture source")
	}

	classifier := pipeline.NewClassifier(svcs, nil, errorStream, statsStream)
	obs, ok := classifier.Process(canxCtx, pipeline.FrameData{
		Mat:       img.Clone(),
		Seq:       1,
		Session:   "probe",
		Timestamp: time.Now(),
	})
	procStats(svcs.DataSvc, classifier.Stats(nil))

	if !ok {
		lgr.Logger.Info("probe frame produced no observation")
		return nil
	}

	precision := svcs.CfgSvc.GetClassifierParameters().ConfidencePrecision
	pipeline.RenderState(color.Output, model.DisplayState{
		Label:      obs.Label,
		Confidence: pipeline.FormatConfidence(obs.Confidence, precision),
		Updated:    obs.Timestamp,
		Seq:        1,
	})

	lgr.Logger.Info("probe observation",
		slog.String("label", obs.Label),
		slog.Float64("confidence", float64(obs.Confidence)),
	)
	return nil
}

// drainReports stores whatever is already queued without waiting.
func drainReports(svcs pipeline.ServicesFactory, statsStream, errorStream chan interface{}) {
	for {
		select {
		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		default:
			return
		}
	}
}
