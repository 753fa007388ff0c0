package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans console lines of one server out to its websocket clients and keeps
// a bounded replay history for late joiners.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	Commands   chan []byte
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	history    [][]byte
	maxHistory int

	mu sync.RWMutex
}

func NewHub(maxHistory int) *Hub {
	if maxHistory < 0 {
		maxHistory = 0
	}
	h := &Hub{
		broadcast:  make(chan []byte, 4096),
		Commands:   make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		stop:       make(chan struct{}),
		maxHistory: maxHistory,
	}
	if maxHistory > 0 {
		h.history = make([][]byte, 0, maxHistory)
	}
	return h
}

func (h *Hub) HistorySnapshot() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return nil
	}
	copyHist := make([][]byte, len(h.history))
	copy(copyHist, h.history)
	return copyHist
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if hist := h.HistorySnapshot(); len(hist) > 0 {
				client.replay = make(chan []byte, len(hist))
				for _, msg := range hist {
					client.replay <- msg
				}
				close(client.replay)
			}
			h.clients[client] = true
			close(client.ready)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			msgCopy := append([]byte(nil), message...)
			if h.maxHistory > 0 {
				h.mu.Lock()
				h.history = append(h.history, msgCopy)
				if len(h.history) > h.maxHistory {
					h.history = h.history[1:]
				}
				h.mu.Unlock()
			}

			for client := range h.clients {
				select {
				case client.send <- msgCopy:
				default:
					// too slow to keep up
					close(client.send)
					delete(h.clients, client)
				}
			}

		case <-h.stop:
			for client := range h.clients {
				close(client.send)
			}
			h.mu.Lock()
			h.history = nil
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) ClearLogs() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.history != nil {
		h.history = h.history[:0]
	}
}

func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.stop:
	}
}

// ServeWs upgrades the request and registers the connection. The history
// replay is queued before the client is visible to broadcasts, so nothing is
// lost or sent twice.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), ready: make(chan struct{})}

	select {
	case h.register <- client:
		<-client.ready
	case <-h.stop:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()
	return nil
}
