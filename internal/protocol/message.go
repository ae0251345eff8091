package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeSessionUpdate  = "session.update"
	TypeTerminalOutput = "terminal.output"
	TypeCommandDone    = "command.done"
	TypeError          = "error"
)

// Client → Server message types.
const (
	TypeTerminalInput = "terminal.input"
)

// Error codes shared by the WebSocket channel and the control API.
const (
	ErrSessionNotFound     = "SESSION_NOT_FOUND"
	ErrSessionDisconnected = "SESSION_DISCONNECTED"
	ErrSessionBusy         = "SESSION_BUSY"
	ErrBrowserCommands     = "BROWSER_COMMANDS_EXECUTED"
	ErrInvalidCommand      = "INVALID_COMMAND"
	ErrQueueFull           = "QUEUE_FULL"
	ErrInvalidMessage      = "INVALID_MESSAGE"
	ErrDuplicateSession    = "DUPLICATE_SESSION"
	ErrConnectFailed       = "CONNECT_FAILED"
	ErrMaxSessions         = "MAX_SESSIONS"
	ErrExecutionFailed     = "EXECUTION_FAILED"
)

// Server → Client payloads.

type SessionUpdatePayload struct {
	Name         string `json:"name"`
	Host         string `json:"host"`
	Username     string `json:"username"`
	Status       string `json:"status"`
	LastActivity string `json:"lastActivity"`
}

// TerminalOutputPayload carries one broadcast unit verbatim: content, source,
// commandId, and the user-initiated flag are forwarded without reformatting.
type TerminalOutputPayload struct {
	SessionName   string `json:"sessionName"`
	Output        string `json:"output"`
	CommandID     string `json:"commandId,omitempty"`
	Source        string `json:"source"`
	UserInitiated bool   `json:"userInitiated"`
}

// CommandDonePayload reports the final result of a terminal-submitted command
// back to the client that issued it.
type CommandDonePayload struct {
	SessionName string `json:"sessionName"`
	CommandID   string `json:"commandId"`
	Stdout      string `json:"stdout"`
	Stderr      string `json:"stderr"`
	ExitCode    int    `json:"exitCode"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client → Server payloads.

// TerminalInputPayload submits one command on the session bound to the
// WebSocket connection. CommandID is caller-assigned and must be unique
// within the session's browser buffer.
type TerminalInputPayload struct {
	Command   string `json:"command"`
	CommandID string `json:"commandId"`
}
