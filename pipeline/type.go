package pipeline

import (
	"log/slog"
	"time"

	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/data"
	"github.com/khaledhikmat/objrec-go/service/inference"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"github.com/khaledhikmat/objrec-go/service/watcher"
	"gocv.io/x/gocv"
)

const (
	// How long a stats or error report waits for the mode loop before it is dropped
	publishTimeout = 2 * time.Second
)

// FrameData is one captured frame. Whoever holds it owns the Mat and must close it.
type FrameData struct {
	Mat       gocv.Mat
	Seq       int64
	Session   string
	Timestamp time.Time
}

type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	InferenceSvc inference.IService
	WatcherSvc   watcher.IService
}

// publish hands v to a stats or error stream without blocking forever when
// nobody is draining it.
func publish(stream chan interface{}, v interface{}) {
	if stream == nil {
		return
	}

	select {
	case stream <- v:
	case <-time.After(publishTimeout):
		lgr.Logger.Warn("stream not drained, dropping report", slog.Any("report", v))
	}
}
