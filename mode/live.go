package mode

import (
	"context"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/khaledhikmat/objrec-go/service/web"
)

// dashboard is the part of the web server live mode drives.
type dashboard interface {
	pipeline.PreviewSink
	Start() error
	Visibility() <-chan bool
}

var newDashboard = func(canxCtx context.Context, cfgSvc config.IService, display *pipeline.Display) dashboard {
	return web.NewServer(canxCtx, cfgSvc, display)
}

// Live runs the full pipeline: capture, classification, the console display
// and the web dashboard. Capture follows the dashboard's visibility: it
// starts when the first viewer opens the display and stops when the last one
// leaves, unless capturing while hidden is configured.
func Live(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	statsStream, errorStream := newStreams()

	webParams := svcs.CfgSvc.GetWebParameters()
	clsParams := svcs.CfgSvc.GetClassifierParameters()

	// The display actor owns the state every renderer reads
	display := pipeline.NewDisplay(clsParams.ConfidencePrecision)
	go display.Run(canxCtx, statsStream)

	slots := []*pipeline.FrameSlot{
		pipeline.ClassificationSink(canxCtx, svcs, display, errorStream, statsStream),
	}

	go pipeline.ConsoleRenderer(canxCtx, display, nil)

	var visibility <-chan bool
	if webParams.Enabled {
		server := newDashboard(canxCtx, svcs.CfgSvc, display)
		slots = append(slots, pipeline.Previewer(canxCtx, webParams.PreviewFPS, webParams.PreviewQuality, server))

		go func() {
			err := server.Start()
			if err != nil {
				publishError(canxCtx, errorStream, model.GenError("live_mode",
					err,
					map[string]interface{}{"port": webParams.Port},
					"error serving web dashboard"))
			}
		}()

		if !webParams.CaptureWhenHidden {
			visibility = server.Visibility()
		}
	}

	session := pipeline.NewSession(svcs.CfgSvc, errorStream, statsStream, slots...)
	if visibility == nil {
		startSession(canxCtx, session)
	}

	var modelChanges <-chan string
	if clsParams.WatchModel && svcs.WatcherSvc != nil {
		changes, err := svcs.WatcherSvc.Watch(canxCtx, clsParams.ModelPath, clsParams.ConfigPath, clsParams.LabelsPath)
		if err != nil {
			procError(svcs.DataSvc, model.GenError("live_mode",
				xerrors.Errorf("watching model files: %w", err),
				map[string]interface{}{"model": clsParams.ModelPath},
				"error watching model files"))
		}
		modelChanges = changes
	}

	// Wait for cancellation, visibility changes, model changes, stats or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"live mode context cancelled",
			)
			goto resume

		case visible := <-visibility:
			lgr.Logger.Info(
				"display visibility changed",
				slog.Bool("visible", visible),
			)
			if visible {
				startSession(canxCtx, session)
			} else {
				session.Stop()
			}

		case path, ok := <-modelChanges:
			if !ok {
				modelChanges = nil
				continue
			}
			lgr.Logger.Info(
				"model file changed, reloading on next frame",
				slog.String("path", path),
			)
			svcs.InferenceSvc.Invalidate()

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

	// Wait in a non-blocking way for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are existing
resume:
	go session.Stop()

	return waitOnShutdown("live", svcs, statsStream, errorStream)
}

// startSession starts capture. A missing source leaves the display without a
// feed; the session has already reported why.
func startSession(canxCtx context.Context, session *pipeline.Session) {
	if err := session.Start(canxCtx); err != nil {
		lgr.Logger.Warn(
			"capture source unavailable",
			slog.Any("error", err),
		)
	}
}

func publishError(canxCtx context.Context, errorStream chan interface{}, err model.CustomError) {
	select {
	case errorStream <- err:
	case <-canxCtx.Done():
		lgr.Logger.Error(
			"error after shutdown",
			slog.Any("error", err),
		)
	}
}
