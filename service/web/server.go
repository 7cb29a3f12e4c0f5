// Package web serves the display state and a live preview to browsers.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/khaledhikmat/objrec-go/model"
	"github.com/khaledhikmat/objrec-go/service/config"
	"github.com/khaledhikmat/objrec-go/service/lgr"
)

//go:embed static/index.html
var indexHTML []byte

const (
	snapshotTimeout = 2 * time.Second
	clientBuffer    = 4
)

// StateSource is the display the server mirrors.
type StateSource interface {
	Snapshot(ctx context.Context) (model.DisplayState, error)
	Subscribe(ctx context.Context) (<-chan model.DisplayState, func(), error)
}

type Server struct {
	canxCtx    context.Context
	app        *fiber.App
	port       int
	source     StateSource
	displayHub *hub
	previewHub *hub
	visibility chan bool
}

func NewServer(canxCtx context.Context, cfgSvc config.IService, source StateSource) *Server {
	s := &Server{
		canxCtx:    canxCtx,
		port:       cfgSvc.GetWebParameters().Port,
		source:     source,
		visibility: make(chan bool, 1),
	}

	visible := false
	s.displayHub = newHub("display", func(count int) {
		now := count > 0
		if now == visible {
			return
		}
		visible = now
		// latest wins, only this hub sends
		select {
		case <-s.visibility:
		default:
		}
		s.visibility <- now
	})
	s.previewHub = newHub("preview", nil)

	app := fiber.New(fiber.Config{
		AppName:               "Object Recognition",
		DisableStartupMessage: true,
	})

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/display", s.handleDisplay)
	api.Get("/health", s.handleHealth)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/display", websocket.New(s.handleDisplayWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// Start runs the hubs and serves until canxCtx is done.
func (s *Server) Start() error {
	go s.displayHub.run(s.canxCtx)
	go s.previewHub.run(s.canxCtx)
	go s.forward()

	go func() {
		<-s.canxCtx.Done()
		if err := s.app.Shutdown(); err != nil {
			lgr.Logger.Warn("web server shutdown error", slog.Any("error", err))
		}
	}()

	lgr.Logger.Info("web dashboard listening", slog.String("url", fmt.Sprintf("http://localhost:%d", s.port)))
	return s.app.Listen(fmt.Sprintf(":%d", s.port))
}

// Visibility emits true when the first display viewer connects and false when
// the last one leaves.
func (s *Server) Visibility() <-chan bool {
	return s.visibility
}

func (s *Server) BroadcastPreview(jpeg []byte) {
	s.previewHub.publish(jpeg)
}

func (s *Server) PreviewViewers() int {
	return s.previewHub.clientCount()
}

func (s *Server) DisplayViewers() int {
	return s.displayHub.clientCount()
}

// forward mirrors display changes to websocket viewers.
func (s *Server) forward() {
	states, unsubscribe, err := s.source.Subscribe(s.canxCtx)
	if err != nil {
		lgr.Logger.Warn("web server could not subscribe to display", slog.Any("error", err))
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-s.canxCtx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			data, err := json.Marshal(state)
			if err != nil {
				continue
			}
			s.displayHub.publish(data)
		}
	}
}
