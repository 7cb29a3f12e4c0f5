package web

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

// handleDisplay returns the current display state
func (s *Server) handleDisplay(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), snapshotTimeout)
	defer cancel()

	state, err := s.source.Snapshot(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(state)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"displayViewers": s.DisplayViewers(),
		"previewViewers": s.PreviewViewers(),
	})
}

// handleDisplayWS sends the current state, then every change
func (s *Server) handleDisplayWS(c *websocket.Conn) {
	cl := &client{send: make(chan []byte, clientBuffer), messageType: websocket.TextMessage}

	first, ok := s.admitDisplayViewer(cl)
	if !ok {
		return
	}

	s.serve(c, s.displayHub, cl, first)
}

func (s *Server) handlePreviewWS(c *websocket.Conn) {
	cl := &client{send: make(chan []byte, clientBuffer), messageType: websocket.BinaryMessage}
	if !s.previewHub.join(cl) {
		return
	}

	s.serve(c, s.previewHub, cl, nil)
}

// admitDisplayViewer registers cl and then encodes the current state. Changes
// made while the snapshot is taken reach cl through the hub; the page drops
// anything older than what it already shows.
func (s *Server) admitDisplayViewer(cl *client) ([]byte, bool) {
	if !s.displayHub.join(cl) {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(s.canxCtx, snapshotTimeout)
	defer cancel()

	state, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, true
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, true
	}
	return data, true
}

// serve pumps messages to a joined client until either side goes away. first,
// when set, is written before anything queued by the hub.
func (s *Server) serve(c *websocket.Conn, h *hub, cl *client, first []byte) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if first != nil {
			if err := c.WriteMessage(cl.messageType, first); err != nil {
				return
			}
		}
		for msg := range cl.send {
			if err := c.WriteMessage(cl.messageType, msg); err != nil {
				return
			}
		}
	}()

	// Keep connection alive until the viewer leaves
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	h.leave(cl)
	c.Close()
	<-writerDone
}
