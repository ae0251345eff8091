// Package realtime exposes the two protocol surfaces around the session
// core: the WebSocket terminal channel for human operators and the REST
// control API for the agent side.
package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"shellbridge/internal/profiles"
	"shellbridge/internal/protocol"
	"shellbridge/internal/session"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server routes control API requests and WebSocket terminal connections to
// the session registry.
type Server struct {
	registry *session.Registry
	profiles *profiles.Store // may be nil

	clientsMu sync.Mutex
	clients   map[*client]bool
}

// client is one WebSocket terminal connection, bound to a single session.
type client struct {
	conn       *websocket.Conn
	send       chan []byte
	server     *Server
	sess       *session.Session
	listenerID string

	// sendMu orders broadcast callbacks against channel teardown: a
	// listener snapshotted just before removal must not write to a
	// closed send channel.
	sendMu     sync.Mutex
	sendClosed bool
}

// New creates a realtime server. store may be nil when no profile directory
// is configured.
func New(registry *session.Registry, store *profiles.Store) *Server {
	return &Server{
		registry: registry,
		profiles: store,
		clients:  make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleConnect).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{name}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{name}", s.handleDisconnect).Methods("DELETE")
	api.HandleFunc("/sessions/{name}/execute", s.handleExecute).Methods("POST")
	api.HandleFunc("/sessions/{name}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/sessions/{name}/ws", s.handleWebSocket).Methods("GET")
	api.HandleFunc("/profiles", s.handleListProfiles).Methods("GET")

	r.Use(corsMiddleware)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades a terminal connection bound to one session and
// registers it as an output listener. Every broadcast entry is forwarded
// verbatim; the client only ever sees remote output, never internal errors
// for commands it did not issue.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sess, err := s.registry.Get(name)
	if err != nil {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		server: s,
		sess:   sess,
	}

	c.listenerID = sess.AddListener(func(entry session.OutputEntry) {
		msg, err := protocol.NewMessage(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{
			SessionName:   entry.SessionName,
			Output:        entry.Output,
			CommandID:     entry.CommandID,
			Source:        string(entry.Source),
			UserInitiated: entry.UserInitiated,
		})
		if err != nil {
			return
		}
		c.enqueueMessage(msg)
	})

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	c.sendSessionUpdate()

	go c.writePump()
	go c.readPump()
}

// sendSessionUpdate pushes the current session metadata to this client.
func (c *client) sendSessionUpdate() {
	info := c.sess.Info()
	msg, err := protocol.NewMessage(protocol.TypeSessionUpdate, protocol.SessionUpdatePayload{
		Name:         info.Name,
		Host:         info.Host,
		Username:     info.Username,
		Status:       string(info.Status),
		LastActivity: info.LastActivity.Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	c.enqueueMessage(msg)
}

// enqueueMessage queues a message for the write pump, dropping it if the
// client buffer is full. Slow clients do not block the broadcast path.
func (c *client) enqueueMessage(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient unregisters a disconnected client and its output listener.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	if !s.clients[c] {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, c)
	s.clientsMu.Unlock()

	c.sess.RemoveListener(c.listenerID)

	c.sendMu.Lock()
	c.sendClosed = true
	c.sendMu.Unlock()
	close(c.send)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeTerminalInput:
		s.handleTerminalInput(c, msg)
	}
}

// handleTerminalInput enqueues a human-submitted command. Admission errors
// surface only on this client's socket, never to broadcast listeners.
func (s *Server) handleTerminalInput(c *client, msg *protocol.Message) {
	var payload protocol.TerminalInputPayload
	json.Unmarshal(msg.Payload, &payload)

	done, err := c.sess.Enqueue(payload.Command, session.CommandOptions{
		Source:    session.SourceUser,
		CommandID: payload.CommandID,
	})
	if err != nil {
		s.sendError(c, errorCode(err), err.Error())
		return
	}

	go func() {
		outcome := <-done
		if outcome.Err != nil {
			s.sendError(c, errorCode(outcome.Err), outcome.Err.Error())
			return
		}
		resp, err := protocol.NewMessage(protocol.TypeCommandDone, protocol.CommandDonePayload{
			SessionName: c.sess.Name(),
			CommandID:   payload.CommandID,
			Stdout:      outcome.Result.Stdout,
			Stderr:      outcome.Result.Stderr,
			ExitCode:    outcome.Result.ExitCode,
		})
		if err != nil {
			return
		}
		c.enqueueMessage(resp)
	}()
}

func (s *Server) sendError(c *client, code, message string) {
	msg, _ := protocol.NewErrorMessage(code, message)
	c.enqueueMessage(msg)
}
