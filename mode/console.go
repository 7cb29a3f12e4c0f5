package mode

import (
	"context"

	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

// Console captures from the moment it starts and prints every display change
// to the terminal until cancelled.
func Console(canxCtx context.Context, svcs pipeline.ServicesFactory) error {
	statsStream, errorStream := newStreams()

	display := pipeline.NewDisplay(svcs.CfgSvc.GetClassifierParameters().ConfidencePrecision)
	go display.Run(canxCtx, statsStream)

	slot := pipeline.ClassificationSink(canxCtx, svcs, display, errorStream, statsStream)
	go pipeline.ConsoleRenderer(canxCtx, display, nil)

	session := pipeline.NewSession(svcs.CfgSvc, errorStream, statsStream, slot)
	startSession(canxCtx, session)

	// Wait for cancellation, stats or errors
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"console mode context cancelled",
			)
			goto resume

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}

resume:
	go session.Stop()

	return waitOnShutdown("console", svcs, statsStream, errorStream)
}
