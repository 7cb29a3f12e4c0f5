package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/objrec-go/service/lgr"
	"gocv.io/x/gocv"
)

// PreviewSink receives encoded preview frames.
type PreviewSink interface {
	BroadcastPreview(jpeg []byte)
	PreviewViewers() int
}

// Previewer JPEG-encodes the latest frame from its slot at most fps times a
// second and hands it to sink. Encoding is skipped while nobody watches.
func Previewer(canxCtx context.Context, fps int, quality int, sink PreviewSink) *FrameSlot {
	slot := NewFrameSlot()
	if fps <= 0 {
		fps = 5
	}
	interval := time.Second / time.Duration(fps)

	go func() {
		defer slot.Close()

		var last time.Time
		for {
			frame, ok := slot.Take(canxCtx)
			if !ok {
				lgr.Logger.Info("previewer context cancelled")
				return
			}

			if time.Since(last) < interval || sink.PreviewViewers() == 0 {
				frame.Mat.Close()
				continue
			}
			last = time.Now()

			buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame.Mat, []int{int(gocv.IMWriteJpegQuality), quality})
			frame.Mat.Close()
			if err != nil {
				lgr.Logger.Debug("error encoding preview frame", slog.Any("error", err))
				continue
			}

			// GetBytes aliases native memory, copy before closing
			data := buf.GetBytes()
			jpeg := make([]byte, len(data))
			copy(jpeg, data)
			buf.Close()

			sink.BroadcastPreview(jpeg)
		}
	}()

	return slot
}
