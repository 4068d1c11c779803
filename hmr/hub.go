/*
Copyright © 2025 esmdev contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package hmr implements the HMR propagator (C6): the graph boundary walk
// from a changed module and the /__hmr WebSocket transport that pushes the
// resulting update messages to connected clients.
package hmr

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxWebSocketReadSize bounds client->server message size; clients aren't
// expected to send anything on this channel beyond the initial page query.
const maxWebSocketReadSize = 64 * 1024

// Logger is the narrow logging surface the hub needs.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     isLocalOrigin,
}

// isLocalOrigin allows same-origin and localhost WebSocket upgrades only,
// rejecting cross-origin connections from untrusted pages.
func isLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := originURL.Hostname()

	requestHost := r.Host
	if idx := strings.IndexByte(requestHost, ':'); idx != -1 {
		requestHost = requestHost[:idx]
	}
	if originHost == requestHost {
		return true
	}

	if originHost == "localhost" || originHost == "127.0.0.1" || originHost == "::1" || originHost == "[::1]" {
		return true
	}
	if strings.HasSuffix(originHost, ".localhost") {
		return true
	}
	if strings.HasPrefix(originHost, "127.") {
		parts := strings.Split(originHost, ".")
		if len(parts) == 4 && parts[0] == "127" {
			return true
		}
	}

	return false
}

type connWrapper struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	pageURL string
}

// Hub manages connected HMR clients and broadcasts update messages,
// adapted from serve/websocket.go's websocketManager: per-connection write
// mutex, snapshot-then-broadcast so a slow client can't block
// connect/disconnect, targeted page broadcast, and graceful shutdown with
// write deadlines.
type Hub struct {
	mu          sync.RWMutex
	connections map[*websocket.Conn]*connWrapper
	logger      Logger
}

func NewHub(logger Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]*connWrapper),
		logger:      logger,
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast sends message to every connected client.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	snapshot := make([]*connWrapper, 0, len(h.connections))
	for _, w := range h.connections {
		snapshot = append(snapshot, w)
	}
	h.mu.RUnlock()

	var dead []*websocket.Conn
	for _, w := range snapshot {
		w.mu.Lock()
		err := w.conn.WriteMessage(websocket.TextMessage, message)
		w.mu.Unlock()
		if err != nil {
			dead = append(dead, w.conn)
		}
	}
	h.reap(dead)
}

// BroadcastToPages sends message only to clients whose page URL exactly or
// partially matches one of pageURLs.
func (h *Hub) BroadcastToPages(message []byte, pageURLs []string) {
	if len(pageURLs) == 0 {
		return
	}
	h.mu.RLock()
	snapshot := make([]*connWrapper, 0)
	for _, w := range h.connections {
		for _, target := range pageURLs {
			if w.pageURL == target || strings.Contains(w.pageURL, target) {
				snapshot = append(snapshot, w)
				break
			}
		}
	}
	h.mu.RUnlock()

	var dead []*websocket.Conn
	for _, w := range snapshot {
		w.mu.Lock()
		err := w.conn.WriteMessage(websocket.TextMessage, message)
		w.mu.Unlock()
		if err != nil {
			dead = append(dead, w.conn)
		}
	}
	h.reap(dead)
}

func (h *Hub) reap(dead []*websocket.Conn) {
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range dead {
		delete(h.connections, c)
		_ = c.Close()
	}
}

// BroadcastShutdown notifies clients the server is going away, bounding
// each write with a deadline so an unresponsive client can't hang shutdown.
func (h *Hub) BroadcastShutdown() {
	msg := []byte(`{"type":"shutdown"}`)
	h.mu.RLock()
	snapshot := make([]*connWrapper, 0, len(h.connections))
	for _, w := range h.connections {
		snapshot = append(snapshot, w)
	}
	h.mu.RUnlock()

	for _, w := range snapshot {
		w.mu.Lock()
		_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = w.conn.WriteMessage(websocket.TextMessage, msg)
		w.mu.Unlock()
	}
}

// CloseAll sends a close frame to every client and clears the connection
// set, used during graceful server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, w := range h.connections {
		w.mu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"))
		w.mu.Unlock()
		_ = conn.Close()
	}
	h.connections = make(map[*websocket.Conn]*connWrapper)
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection until it disconnects. Mounted at the /__hmr path.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("HMR websocket upgrade failed: %v", err)
		}
		return
	}
	conn.SetReadLimit(maxWebSocketReadSize)
	_ = conn.UnderlyingConn().SetDeadline(time.Time{})

	pageURL := r.URL.Query().Get("page")
	if pageURL == "" {
		pageURL = r.URL.Path
	}

	wrapper := &connWrapper{conn: conn, pageURL: pageURL}
	h.mu.Lock()
	h.connections[conn] = wrapper
	count := len(h.connections)
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Debug("HMR client connected from %s (total: %d)", pageURL, count)
	}

	defer func() {
		h.mu.Lock()
		delete(h.connections, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
