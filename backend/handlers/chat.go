// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/realtime"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 64 * 1024
	defaultBacklog = 64
)

type ChatHandler struct {
	deps           realtime.Deps
	upgrader       websocket.Upgrader
	outboundBuffer int
	log            *slog.Logger
}

// NewChatHandler serves the chat socket. An empty allowedOrigins list accepts
// any origin.
func NewChatHandler(deps realtime.Deps, outboundBuffer int, allowedOrigins []string) *ChatHandler {
	if outboundBuffer < 1 {
		outboundBuffer = defaultBacklog
	}
	return &ChatHandler{
		deps:           deps,
		outboundBuffer: outboundBuffer,
		log:            deps.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 || lo.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ServeWS upgrades /ws/chat/{room_name}/ and runs one session until the
// client goes away. Frames are handled one at a time in arrival order.
func (h *ChatHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participant, ok := middleware.GetUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	room := mux.Vars(r)["room_name"]

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "participant", participant, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	conn := newWSConn(ws, h.outboundBuffer)
	go conn.writePump()
	defer conn.close()

	session := realtime.NewSession(h.deps, conn, participant, room)
	if err := session.Open(ctx); err != nil {
		return
	}
	defer session.Close()

	ws.SetReadLimit(maxFrameSize)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Socket read ended", "conn_id", conn.ID(), "error", err)
			}
			return
		}
		// errors are already reported to the client as error frames
		_ = session.Handle(ctx, data)
	}
}

// wsConn adapts a websocket to realtime.Conn. Deliver only queues; a single
// writer goroutine owns the socket's write side.
type wsConn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, backlog int) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, backlog),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Deliver(payload []byte) error {
	select {
	case <-c.done:
		return realtime.ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.close()
		return realtime.ErrSlowConsumer
	}
}

// close stops the writer, which flushes what is queued and closes the socket.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *wsConn) writePump() {
	defer c.ws.Close()
	for {
		select {
		case payload := <-c.send:
			if err := c.write(payload); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (c *wsConn) flush() {
	for {
		select {
		case payload := <-c.send:
			if err := c.write(payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}
