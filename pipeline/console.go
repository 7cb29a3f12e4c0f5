package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

var (
	captionColor = color.New(color.FgHiBlack)
	valueColor   = color.New(color.FgHiWhite, color.Bold)
)

// ConsoleRenderer prints the display state to w every time it changes.
// It blocks until canxCtx is done or the display stops.
func ConsoleRenderer(canxCtx context.Context, display *Display, w io.Writer) {
	if w == nil {
		w = color.Output
	}

	states, unsubscribe, err := display.Subscribe(canxCtx)
	if err != nil {
		lgr.Logger.Debug("console renderer could not subscribe", slog.Any("error", err))
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-canxCtx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			// The initial empty state has nothing to show
			if state.Seq == 0 {
				continue
			}
			RenderState(w, state)
		}
	}
}

// RenderState writes one captioned line for state.
func RenderState(w io.Writer, state model.DisplayState) {
	captionColor.Fprint(w, "Object ")
	valueColor.Fprint(w, state.Label)
	captionColor.Fprint(w, "  Confidence ")
	valueColor.Fprint(w, state.Confidence)
	fmt.Fprintln(w)
}
