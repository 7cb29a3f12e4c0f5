package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

const (
	displayUpdateBuffer = 16
)

var ErrDisplayStopped = errors.New("display stopped")

type subscription struct {
	ch chan model.DisplayState
}

// Display owns the DisplayState. Its Run goroutine is the only code that
// reads or writes the state; everybody else talks to it through channels.
type Display struct {
	precision int

	updates     chan model.Observation
	queries     chan chan model.DisplayState
	subscribe   chan *subscription
	unsubscribe chan *subscription
	done        chan struct{}
}

// NewDisplay creates the actor. precision is forwarded to FormatConfidence.
// Nothing is applied until Run is started.
func NewDisplay(precision int) *Display {
	return &Display{
		precision:   precision,
		updates:     make(chan model.Observation, displayUpdateBuffer),
		queries:     make(chan chan model.DisplayState),
		subscribe:   make(chan *subscription),
		unsubscribe: make(chan *subscription),
		done:        make(chan struct{}),
	}
}

// Updates is where the classification sink posts observations.
func (d *Display) Updates() chan<- model.Observation {
	return d.updates
}

// Done is closed once Run has returned.
func (d *Display) Done() <-chan struct{} {
	return d.done
}

// Snapshot returns a copy of the current state.
func (d *Display) Snapshot(ctx context.Context) (model.DisplayState, error) {
	reply := make(chan model.DisplayState, 1)
	select {
	case d.queries <- reply:
	case <-d.done:
		return model.DisplayState{}, ErrDisplayStopped
	case <-ctx.Done():
		return model.DisplayState{}, ctx.Err()
	}

	select {
	case state := <-reply:
		return state, nil
	case <-ctx.Done():
		return model.DisplayState{}, ctx.Err()
	}
}

// Subscribe returns a channel that receives the current state right away and
// then the latest state after every change. Slow readers only miss
// intermediate states. The returned func unsubscribes and closes the channel.
func (d *Display) Subscribe(ctx context.Context) (<-chan model.DisplayState, func(), error) {
	sub := &subscription{ch: make(chan model.DisplayState, 1)}
	select {
	case d.subscribe <- sub:
	case <-d.done:
		return nil, func() {}, ErrDisplayStopped
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	}

	cancel := func() {
		select {
		case d.unsubscribe <- sub:
		case <-d.done:
		}
	}
	return sub.ch, cancel, nil
}

func (d *Display) Run(canxCtx context.Context, statsStream chan interface{}) {
	var state model.DisplayState
	var startTime = time.Now()
	var subs = map[*subscription]bool{}

	defer func() {
		close(d.done)
		for sub := range subs {
			close(sub.ch)
		}
		publish(statsStream, model.DisplayStats{
			Name:        "display",
			Updates:     state.Seq,
			Subscribers: len(subs),
			Uptime:      int64(time.Since(startTime).Seconds()),
		})
	}()

	notify := func(sub *subscription) {
		// Only this goroutine sends on sub.ch, so drain-then-send never blocks
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- state
	}

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info("display context cancelled")
			return

		case obs := <-d.updates:
			state = apply(state, obs, d.precision)
			lgr.Logger.Debug("display updated",
				slog.String("label", state.Label),
				slog.String("confidence", state.Confidence),
				slog.Int64("frame", obs.Frame),
			)
			for sub := range subs {
				notify(sub)
			}

		case reply := <-d.queries:
			reply <- state

		case sub := <-d.subscribe:
			subs[sub] = true
			notify(sub)

		case sub := <-d.unsubscribe:
			if subs[sub] {
				delete(subs, sub)
				close(sub.ch)
			}
		}
	}
}

// apply is last-write-wins: nothing from the previous state survives except
// the update counter.
func apply(state model.DisplayState, obs model.Observation, precision int) model.DisplayState {
	updated := obs.Timestamp
	if updated.IsZero() {
		updated = time.Now()
	}

	return model.DisplayState{
		Label:      obs.Label,
		Confidence: FormatConfidence(obs.Confidence, precision),
		Updated:    updated,
		Seq:        state.Seq + 1,
	}
}
