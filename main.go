package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/objrec-go/mode"
	"github.com/khaledhikmat/objrec-go/pipeline"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/data"
	"github.com/khaledhikmat/objrec-go/service/inference"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/khaledhikmat/objrec-go/service/tracing"
	"github.com/khaledhikmat/objrec-go/service/watcher"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

var modeProcessors = map[string]mode.Processor{
	"live":    mode.Live,
	"console": mode.Console,
	"probe":   mode.Probe,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		err := godotenv.Load()
		if err != nil {
			// Defaults cover everything, a missing .env is not fatal
			lgr.Logger.Warn("error loading .env file", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	modeType := "live"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	// Create the services needed for the mode processor
	// Config service
	cfgSvc := config.NewEnv()
	lgr.SetLevel(cfgSvc.GetLogLevel())

	// Tracing
	shutdownTracing, err := tracing.Start(cfgSvc.GetTraceParameters())
	if err != nil {
		lgr.Logger.Error("error starting tracing", slog.Any("error", xerrors.Errorf("tracing: %w", err)))
		panic("error starting tracing")
	}
	defer func() {
		flushCtx, flushCanx := context.WithTimeout(rootCtx, 2*time.Second)
		defer flushCanx()
		if err := shutdownTracing(flushCtx); err != nil {
			lgr.Logger.Warn("error flushing traces", slog.Any("error", err))
		}
	}()

	// Data service
	dataSvc, err := newDataService(cfgSvc)
	if err != nil {
		lgr.Logger.Error("error creating data service", slog.Any("error", xerrors.Errorf("data store %s: %w", cfgSvc.GetDataStore(), err)))
		panic("error creating data service")
	}
	defer dataSvc.Close()

	// inference service
	inferenceSvc := inference.NewDNN(cfgSvc)
	defer inferenceSvc.Close()

	// watcher service
	watcherSvc := watcher.NewFSNotify()

	svcs := pipeline.ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      dataSvc,
		InferenceSvc: inferenceSvc,
		WatcherSvc:   watcherSvc,
	}

	// Create mode processor result
	modeProcResult := make(chan error)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"objrec context cancelled",
			)
			goto resume

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Info(
					"objrec mode processor exited",
					slog.String("mode", modeType),
					slog.Any("error", xerrors.New(err.Error())),
				)
			}
			// The mode is done, nothing is left to wait for
			canxFn()
			return
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for all the go routines to exit
	// This is needed because the go routines may need to report errors as they are existing
resume:
	lgr.Logger.Info(
		"objrec is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		// Timer expired, proceed with shutdown
		lgr.Logger.Info(
			"objrec shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"objrec mode processor exited",
				slog.String("mode", modeType),
				slog.Any("error", xerrors.New(err.Error())),
			)
		}
	}
}

func newDataService(cfgSvc config.IService) (data.IService, error) {
	if cfgSvc.GetDataStore() == config.StoreSQLite {
		return data.NewSQLite(cfgSvc)
	}
	return data.NewFilesDB(cfgSvc), nil
}
