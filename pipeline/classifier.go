package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/inference"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/khaledhikmat/objrec-go/pipeline"

// Classifier turns frames into observations and posts them to the display.
// Every frame is classified on its own; nothing carries over between frames.
type Classifier struct {
	svcs        ServicesFactory
	params      config.ClassifierParameters
	updates     chan<- model.Observation
	errorStream chan interface{}
	statsStream chan interface{}
	tracer      trace.Tracer
	obsLog      io.WriteCloser

	// at most one inference in flight
	inflight chan struct{}
	// set while the model keeps failing to load so it is reported once
	loadFailing bool

	statsMu       sync.Mutex
	stats         model.ClassifierStats
	totalProcTime time.Duration
	startTime     time.Time
}

func NewClassifier(svcs ServicesFactory, updates chan<- model.Observation, errorStream chan interface{}, statsStream chan interface{}) *Classifier {
	params := svcs.CfgSvc.GetClassifierParameters()

	c := &Classifier{
		svcs:        svcs,
		params:      params,
		updates:     updates,
		errorStream: errorStream,
		statsStream: statsStream,
		tracer:      otel.Tracer(tracerName),
		inflight:    make(chan struct{}, 1),
		stats:       model.ClassifierStats{Name: "classifier"},
		startTime:   time.Now(),
	}

	if params.Logging {
		c.obsLog = &lumberjack.Logger{
			Filename:   params.LogPath,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7,    // days
			Compress:   true, // compress old logs
		}
	}

	return c
}

// ClassificationSink starts a classifier on its own goroutine and returns the
// slot it consumes. Frames put there are classified latest-first, one at a time.
func ClassificationSink(canxCtx context.Context, svcs ServicesFactory, display *Display, errorStream chan interface{}, statsStream chan interface{}) *FrameSlot {
	slot := NewFrameSlot()
	c := NewClassifier(svcs, display.Updates(), errorStream, statsStream)
	go c.Run(canxCtx, slot)
	return slot
}

// Process classifies one frame and publishes the best result. It reports
// whether an observation was published. Failures are never returned: the
// frame is dropped and the display keeps its previous value. Process closes
// the frame's Mat.
func (c *Classifier) Process(ctx context.Context, frame FrameData) (model.Observation, bool) {
	defer frame.Mat.Close()

	select {
	case c.inflight <- struct{}{}:
	case <-ctx.Done():
		return model.Observation{}, false
	}
	defer func() { <-c.inflight }()

	start := time.Now()
	defer func() {
		c.statsMu.Lock()
		c.stats.Frames++
		c.totalProcTime += time.Since(start)
		c.statsMu.Unlock()
	}()

	ctx, span := c.tracer.Start(ctx, "classify", trace.WithAttributes(
		attribute.String("session", frame.Session),
		attribute.Int64("frame.seq", frame.Seq),
	))
	defer span.End()

	handle, err := c.svcs.InferenceSvc.Load()
	if err != nil {
		c.count(func(s *model.ClassifierStats) { s.LoadFailures++ })
		span.RecordError(err)
		span.SetStatus(codes.Error, "model unavailable")
		lgr.Logger.Debug("model unavailable, skipping frame",
			slog.Int64("frame", frame.Seq),
			slog.Any("error", err),
		)
		if !c.loadFailing {
			c.loadFailing = true
			publish(c.errorStream, model.GenError("classifier",
				err,
				map[string]interface{}{"model": c.params.ModelPath},
				"error loading classification model"))
		}
		return model.Observation{}, false
	}
	c.loadFailing = false

	results, err := handle.Classify(ctx, frame.Mat)
	if err != nil {
		c.count(func(s *model.ClassifierStats) { s.Errors++ })
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		lgr.Logger.Debug("classification failed, skipping frame",
			slog.Int64("frame", frame.Seq),
			slog.String("model", handle.Name()),
			slog.Any("error", err),
		)
		return model.Observation{}, false
	}

	if len(results) == 0 {
		c.count(func(s *model.ClassifierStats) { s.EmptyResults++ })
		return model.Observation{}, false
	}

	// Results come ranked; the first one is the observation
	best := results[0]
	obs := model.Observation{
		Session:    frame.Session,
		Frame:      frame.Seq,
		Label:      best.Label,
		Confidence: best.Confidence,
		Timestamp:  time.Now(),
	}

	span.SetAttributes(
		attribute.String("label", best.Label),
		attribute.Float64("confidence", float64(best.Confidence)),
	)

	c.logObservation(obs, results)

	if c.updates != nil {
		select {
		case c.updates <- obs:
		case <-ctx.Done():
			return obs, false
		}
	}

	c.count(func(s *model.ClassifierStats) { s.Observations++ })
	return obs, true
}

// Run takes frames from slot until canxCtx is done.
func (c *Classifier) Run(canxCtx context.Context, slot *FrameSlot) {
	lgr.Logger.Info("classifier starting...",
		slog.String("model", c.params.ModelPath),
		slog.Int("inputSize", c.params.InputSize),
		slog.Int("topK", c.params.TopK),
	)

	period := time.Duration(c.svcs.CfgSvc.GetStatsPeriodicTimeout()) * time.Second
	lastStats := time.Now()

	defer func() {
		slot.Close()
		if c.obsLog != nil {
			c.obsLog.Close()
		}
		publish(c.statsStream, c.Stats(slot))
		lgr.Logger.Info("classifier context cancelled")
	}()

	for {
		frame, ok := slot.Take(canxCtx)
		if !ok {
			return
		}

		c.Process(canxCtx, frame)

		if period > 0 && time.Since(lastStats) >= period {
			publish(c.statsStream, c.Stats(slot))
			lastStats = time.Now()
		}
	}
}

// Stats snapshots the counters. slot may be nil.
func (c *Classifier) Stats(slot *FrameSlot) model.ClassifierStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	stats := c.stats
	stats.Uptime = int64(time.Since(c.startTime).Seconds())
	if stats.Frames > 0 {
		stats.AvgProcTime = c.totalProcTime.Seconds() / float64(stats.Frames)
	}
	if slot != nil {
		stats.DroppedFrames = slot.Dropped()
	}
	return stats
}

func (c *Classifier) count(fn func(s *model.ClassifierStats)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	fn(&c.stats)
}

func (c *Classifier) logObservation(obs model.Observation, results []inference.Classification) {
	if c.obsLog == nil {
		return
	}

	entry := map[string]interface{}{
		"time":        obs.Timestamp.Format(time.RFC3339Nano),
		"session":     obs.Session,
		"frame":       obs.Frame,
		"observation": obs,
		"ranked":      results,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		lgr.Logger.Debug("error marshaling observation", slog.Any("error", err))
		return
	}

	if _, err := c.obsLog.Write(append(jsonData, '\n')); err != nil {
		lgr.Logger.Debug("error writing to observation log", slog.Any("error", err))
	}
}
