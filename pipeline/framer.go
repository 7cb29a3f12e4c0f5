package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
	"gocv.io/x/gocv"
)

const (
	readRetryDelay = 10 * time.Millisecond
	// Consecutive failed reads before the source is reported as failing
	readFailureReport = 100
)

// Source yields frames one at a time. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	Close() error
}

type Preset struct {
	Width  int
	Height int
}

// Named like capture-session presets. "photo" asks the device for its
// largest 4:3 still-oriented resolution rather than a video mode.
var capturePresets = map[string]Preset{
	config.PresetPhoto:  {Width: 4032, Height: 3024},
	config.PresetHigh:   {Width: 1920, Height: 1080},
	config.PresetMedium: {Width: 1280, Height: 720},
	config.PresetLow:    {Width: 640, Height: 480},
}

func PresetSize(name string) (Preset, bool) {
	p, ok := capturePresets[name]
	return p, ok
}

// OpenSource acquires the configured frame source.
func OpenSource(params config.CaptureParameters) (Source, error) {
	preset, ok := PresetSize(params.Preset)
	if !ok {
		return nil, fmt.Errorf("unknown capture preset %q", params.Preset)
	}

	switch params.Source {
	case config.SourceDevice:
		webcam, err := gocv.VideoCaptureDevice(params.Device)
		if err != nil {
			return nil, fmt.Errorf("opening video device %d: %w", params.Device, err)
		}
		return configureCapture(webcam, preset)

	case config.SourceURL:
		if params.URL == "" {
			return nil, fmt.Errorf("capture url is empty")
		}
		webcam, err := gocv.OpenVideoCapture(params.URL)
		if err != nil {
			return nil, fmt.Errorf("opening video url: %w", err)
		}
		return configureCapture(webcam, preset)

	case config.SourceRandom:
		return newRandomSource(preset, params.FPS), nil
	}

	return nil, fmt.Errorf("unknown capture source %q", params.Source)
}

func configureCapture(webcam *gocv.VideoCapture, preset Preset) (Source, error) {
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("video capture is not opened")
	}

	// The device picks the closest mode it supports
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(preset.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(preset.Height))

	return webcam, nil
}

// randomSource produces blank frames at a fixed rate.
type randomSource struct {
	mu       sync.Mutex
	base     gocv.Mat
	interval time.Duration
	next     time.Time
	closed   bool
}

func newRandomSource(preset Preset, fps int) *randomSource {
	if fps <= 0 {
		fps = 15
	}

	return &randomSource{
		base:     gocv.NewMatWithSize(preset.Height, preset.Width, gocv.MatTypeCV8UC3),
		interval: time.Second / time.Duration(fps),
		next:     time.Now(),
	}
}

func (s *randomSource) Read(m *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if wait := time.Until(s.next); wait > 0 {
		time.Sleep(wait)
	}
	s.next = time.Now().Add(s.interval)

	s.base.CopyTo(m)
	return true
}

func (s *randomSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.base.Close()
}

// framer reads frames in capture order and hands a copy to every slot.
// It returns when canxCtx is done.
func framer(canxCtx context.Context, session string, sourceName string, src Source, errorStream chan interface{}, statsStream chan interface{}, slots []*FrameSlot) {
	var startTime = time.Now()
	var frames = 0
	var errors = 0
	var failedReads = 0
	var seq int64

	defer func() {
		uptime := time.Since(startTime)
		fps := 0
		if uptime >= time.Second {
			fps = int(float64(frames) / uptime.Seconds())
		}
		publish(statsStream, model.FramerStats{
			Name:    "framer",
			Session: session,
			Source:  sourceName,
			Frames:  frames,
			Errors:  errors,
			Uptime:  int64(uptime.Seconds()),
			FPS:     fps,
		})
	}()

	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"framer context cancelled",
				slog.String("session", session),
			)
			return

		default:
			img := gocv.NewMat()
			if ok := src.Read(&img); !ok || img.Empty() {
				errors++
				failedReads++
				img.Close() // Crucial to close the image to avoid memory leaks
				if failedReads == readFailureReport {
					publish(errorStream, model.GenError("framer",
						fmt.Errorf("%d consecutive empty reads", failedReads),
						map[string]interface{}{
							"session": session,
							"source":  sourceName,
						},
						"capture source is not producing frames"))
				}
				time.Sleep(readRetryDelay)
				continue
			}

			failedReads = 0
			frames++
			seq++
			now := time.Now()
			for _, slot := range slots {
				slot.Put(FrameData{Mat: img.Clone(), Seq: seq, Session: session, Timestamp: now})
			}

			img.Close() // Crucial to close the image to avoid memory leaks
		}
	}
}
