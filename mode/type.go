package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/data"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

const (
	// Room for the reports goroutines send while a session stops
	streamBuffer = 16
)

type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory) error

func newStreams() (chan interface{}, chan interface{}) {
	return make(chan interface{}, streamBuffer), make(chan interface{}, streamBuffer)
}

func procStats(datasvc data.IService, stats interface{}) {
	switch stats := stats.(type) {
	case model.FramerStats:
		procFramerStats(datasvc, stats)
	case model.ClassifierStats:
		procClassifierStats(datasvc, stats)
	case model.DisplayStats:
		procDisplayStats(datasvc, stats)
	default:
		lgr.Logger.Error(
			"unknown stats type",
			slog.Any("stats", stats),
		)
	}
}

func procFramerStats(datasvc data.IService, stats model.FramerStats) {
	stats.Timestamp = time.Now().Unix()
	err := datasvc.NewFramerStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store framer stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procClassifierStats(datasvc data.IService, stats model.ClassifierStats) {
	stats.Timestamp = time.Now().Unix()
	err := datasvc.NewClassifierStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store classifier stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procDisplayStats(datasvc data.IService, stats model.DisplayStats) {
	stats.Timestamp = time.Now().Unix()
	err := datasvc.NewDisplayStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store display stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}

// waitOnShutdown keeps storing reports for the configured shutdown period so
// goroutines that are exiting can still be heard.
func waitOnShutdown(name string, svcs pipeline.ServicesFactory, statsStream, errorStream chan interface{}) error {
	lgr.Logger.Info(
		"waiting for all go routines to exit",
		slog.String("mode", name),
	)

	period := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			lgr.Logger.Info(
				"shutdown waiting period expired. Exiting now",
				slog.String("mode", name),
				slog.Duration("period", period),
			)
			return nil

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)

		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		}
	}
}
