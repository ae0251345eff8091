package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"shellbridge/internal/protocol"
	"shellbridge/internal/remote"
	"shellbridge/internal/session"
)

type connectRequest struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Profile   string `json:"profile"`
	TimeoutMs int    `json:"timeoutMs"`
}

type executeRequest struct {
	Command   string `json:"command"`
	TimeoutMs int    `json:"timeoutMs"`
	PTY       bool   `json:"pty"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	// Kind classifies connect failures: credential, unreachable, timeout.
	Kind string `json:"kind,omitempty"`
	// Commands carries the drained browser buffer for
	// BROWSER_COMMANDS_EXECUTED responses.
	Commands []session.BufferedCommand `json:"commands,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// errorCode maps core errors onto wire error codes.
func errorCode(err error) string {
	var (
		notFound     *session.NotFoundError
		disconnected *session.DisconnectedError
		busy         *session.BusyError
		browser      *session.BrowserCommandsError
		queueFull    *session.QueueFullError
		validation   *session.ValidationError
		duplicate    *session.DuplicateError
		limit        *session.LimitError
	)
	switch {
	case errors.As(err, &notFound):
		return protocol.ErrSessionNotFound
	case errors.As(err, &disconnected):
		return protocol.ErrSessionDisconnected
	case errors.As(err, &busy):
		return protocol.ErrSessionBusy
	case errors.As(err, &browser):
		return protocol.ErrBrowserCommands
	case errors.As(err, &queueFull):
		return protocol.ErrQueueFull
	case errors.As(err, &validation):
		return protocol.ErrInvalidCommand
	case errors.As(err, &duplicate):
		return protocol.ErrDuplicateSession
	case errors.As(err, &limit):
		return protocol.ErrMaxSessions
	default:
		return protocol.ErrExecutionFailed
	}
}

// handleConnect establishes a new session, either from inline credentials or
// a named profile. The session is registered only after the dial succeeds.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: "name is required"})
		return
	}

	var cfg remote.Config
	switch {
	case req.Profile != "":
		if s.profiles == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: "no profile directory configured"})
			return
		}
		resolved, err := s.profiles.Resolve(req.Profile)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: err.Error()})
			return
		}
		cfg = resolved
	default:
		if req.Host == "" || req.Username == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: "host and username are required"})
			return
		}
		cfg = remote.Config{
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
			Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}

	sess, err := s.registry.Connect(req.Name, cfg)
	if err != nil {
		var connErr *remote.ConnectError
		switch {
		case errors.As(err, &connErr):
			writeJSON(w, http.StatusBadGateway, errorResponse{
				Code:  protocol.ErrConnectFailed,
				Error: err.Error(),
				Kind:  string(connErr.Kind),
			})
		case errorCode(err) == protocol.ErrDuplicateSession:
			writeJSON(w, http.StatusConflict, errorResponse{Code: protocol.ErrDuplicateSession, Error: err.Error()})
		case errorCode(err) == protocol.ErrMaxSessions:
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: protocol.ErrMaxSessions, Error: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sess, err := s.registry.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: protocol.ErrSessionNotFound, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.registry.Disconnect(name); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: protocol.ErrSessionNotFound, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// handleExecute runs an agent-sourced command. The three outcomes the agent
// must distinguish map onto distinct responses: success, SESSION_BUSY
// (retry-soon, no payload), and BROWSER_COMMANDS_EXECUTED (carries the
// drained browser buffer; a retry only sees newer human activity).
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sess, err := s.registry.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: protocol.ErrSessionNotFound, Error: err.Error()})
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: protocol.ErrInvalidMessage, Error: "invalid request body"})
		return
	}

	done, err := sess.Enqueue(req.Command, session.CommandOptions{
		Source:    session.SourceClaude,
		TimeoutMs: req.TimeoutMs,
		PTY:       req.PTY,
	})
	if err != nil {
		var browser *session.BrowserCommandsError
		code := errorCode(err)
		switch code {
		case protocol.ErrSessionBusy:
			writeJSON(w, http.StatusConflict, errorResponse{Code: code, Error: err.Error()})
		case protocol.ErrBrowserCommands:
			errors.As(err, &browser)
			writeJSON(w, http.StatusConflict, errorResponse{Code: code, Error: err.Error(), Commands: browser.Commands})
		case protocol.ErrQueueFull:
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: code, Error: err.Error()})
		case protocol.ErrSessionDisconnected:
			writeJSON(w, http.StatusGone, errorResponse{Code: code, Error: err.Error()})
		default:
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: code, Error: err.Error()})
		}
		return
	}

	outcome := <-done
	if outcome.Err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Code: errorCode(outcome.Err), Error: outcome.Err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, outcome.Result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sess, err := s.registry.Get(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: protocol.ErrSessionNotFound, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sess.History())
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.profiles.Names())
}
