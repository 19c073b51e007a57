package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jupark12/go-transcription-queue/logger"
	"github.com/jupark12/go-transcription-queue/models"
)

const (
	writeWait       = 5 * time.Second
	broadcastBuffer = 64
)

// Message is the envelope pushed to every websocket client.
type Message struct {
	Type string               `json:"type"`
	Job  *models.JobResponse  `json:"job,omitempty"`
	Jobs []models.JobResponse `json:"jobs,omitempty"`
}

// WebSocketManager fans job updates out to connected clients.
type WebSocketManager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.Mutex
	log        logger.AppLogger
}

func NewWebSocketManager(log logger.AppLogger) *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log.With(slog.String("service", "websocket")),
	}
}

// Start runs the fan-out loop until ctx ends, then closes every client.
func (wsm *WebSocketManager) Start(ctx context.Context) {
	go func() {
		defer close(wsm.done)
		for {
			select {
			case <-ctx.Done():
				wsm.mu.Lock()
				for client := range wsm.clients {
					client.Close()
					delete(wsm.clients, client)
				}
				wsm.mu.Unlock()
				return
			case client := <-wsm.register:
				wsm.mu.Lock()
				wsm.clients[client] = true
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug("websocket client connected", slog.Int("clients", total))
			case client := <-wsm.unregister:
				wsm.mu.Lock()
				if _, ok := wsm.clients[client]; ok {
					delete(wsm.clients, client)
					client.Close()
				}
				total := len(wsm.clients)
				wsm.mu.Unlock()
				wsm.log.Debug("websocket client disconnected", slog.Int("clients", total))
			case message := <-wsm.broadcast:
				wsm.mu.Lock()
				for client := range wsm.clients {
					_ = client.SetWriteDeadline(time.Now().Add(writeWait))
					if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
						wsm.log.Warn("dropping websocket client", slog.String("error", err.Error()))
						client.Close()
						delete(wsm.clients, client)
					}
				}
				wsm.mu.Unlock()
			}
		}
	}()
}

// Done is closed once the loop started by Start has exited.
func (wsm *WebSocketManager) Done() <-chan struct{} {
	return wsm.done
}

// BroadcastJobUpdate never blocks the caller. Updates are dropped when the buffer is full.
func (wsm *WebSocketManager) BroadcastJobUpdate(job *models.TranscriptionJob) {
	resp := models.NewJobResponse(job)
	data, err := json.Marshal(Message{Type: "job_update", Job: &resp})
	if err != nil {
		wsm.log.Error("failed to marshal job update", err, slog.String("job_id", job.ID))
		return
	}

	select {
	case wsm.broadcast <- data:
	default:
		wsm.log.Warn("websocket broadcast buffer full, update dropped", slog.String("job_id", job.ID))
	}
}

// ClientCount reports how many clients are currently registered.
func (wsm *WebSocketManager) ClientCount() int {
	wsm.mu.Lock()
	defer wsm.mu.Unlock()
	return len(wsm.clients)
}

func (wsm *WebSocketManager) RegisterClient(conn *websocket.Conn) {
	select {
	case wsm.register <- conn:
	case <-wsm.done:
		conn.Close()
	}
}

func (wsm *WebSocketManager) UnregisterClient(conn *websocket.Conn) {
	select {
	case wsm.unregister <- conn:
	case <-wsm.done:
	}
}
