package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/khaledhikmat/objrec-go/service/lgr"
)

type client struct {
	send        chan []byte
	messageType int
}

// hub fans messages out to websocket clients. Only Run touches the client set.
type hub struct {
	name       string
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	onCount    func(count int)
	done       chan struct{}

	mu    sync.RWMutex
	count int
}

func newHub(name string, onCount func(count int)) *hub {
	return &hub{
		name:       name,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *client),
		unregister: make(chan *client),
		onCount:    onCount,
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			lgr.Logger.Debug("websocket client connected", slog.String("hub", h.name), slog.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.setCount(len(h.clients))
				lgr.Logger.Debug("websocket client disconnected", slog.String("hub", h.name), slog.Int("clients", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client's buffer is full, drop this message for it
					lgr.Logger.Debug("slow websocket client, dropping message", slog.String("hub", h.name))
				}
			}
		}
	}
}

// join returns false when the hub is no longer running.
func (h *hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()

	if h.onCount != nil {
		h.onCount(n)
	}
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// publish never blocks; when the hub is behind the message is dropped.
func (h *hub) publish(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		lgr.Logger.Debug("hub broadcast channel full, dropping message", slog.String("hub", h.name))
	}
}
