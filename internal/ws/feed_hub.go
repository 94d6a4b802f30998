package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// ScanPayload is pushed to admin/teacher dashboards for every processed scan.
type ScanPayload struct {
	EventID       uint      `json:"event_id"`
	SchoolID      uint      `json:"school_id"`
	ReaderID      uint      `json:"reader_id"`
	ReaderName    string    `json:"reader_name"`
	CardUID       string    `json:"card_uid"`
	StudentName   string    `json:"student_name,omitempty"`
	StudentTag    string    `json:"student_tag,omitempty"`
	AccessGranted bool      `json:"access_granted"`
	DenialReason  string    `json:"denial_reason,omitempty"`
	EventTime     time.Time `json:"event_time"`
}

type feedMessage struct {
	schoolID uint
	payload  []byte
}

// FeedHub fans processed access events out to websocket clients. Clients are
// school-scoped unless they connected with admin rights.
type FeedHub struct {
	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan feedMessage
	clients    map[*feedClient]struct{}
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan feedMessage, 256),
		clients:    make(map[*feedClient]struct{}),
	}
}

func (h *FeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.allowAll && client.schoolID != msg.schoolID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					delete(h.clients, client)
					close(client.send)
					client.conn.Close()
				}
			}
		}
	}
}

// Broadcast pushes a scan to all clients watching its school.
func (h *FeedHub) Broadcast(payload ScanPayload) {
	if h == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: failed to marshal payload: %v", err)
		return
	}
	h.broadcast <- feedMessage{
		schoolID: payload.SchoolID,
		payload:  data,
	}
}

type feedClient struct {
	hub      *FeedHub
	conn     *websocket.Conn
	send     chan []byte
	schoolID uint
	allowAll bool
}

func newFeedClient(hub *FeedHub, conn *websocket.Conn, schoolID uint, allowAll bool) *feedClient {
	return &feedClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		schoolID: schoolID,
		allowAll: allowAll,
	}
}

func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
