package session

import "time"

// Source tags the provenance of a command. It controls echo formatting and
// browser-buffer population, so every switch over it must handle all three.
type Source string

const (
	SourceUser   Source = "user"   // streamed terminal (human)
	SourceClaude Source = "claude" // control protocol (agent)
	SourceSystem Source = "system" // internal housekeeping
)

// Status is the connection state of a session.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// PendingExitCode marks a buffered command whose execution has not finished.
const PendingExitCode = -1

// CommandResult is the resolved outcome of one remote command. A non-zero
// ExitCode is a normal result, not an error.
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

func pendingResult() CommandResult {
	return CommandResult{ExitCode: PendingExitCode}
}

// CommandOptions qualify an enqueued command.
type CommandOptions struct {
	Source    Source
	CommandID string // caller-supplied for user commands; generated otherwise
	TimeoutMs int    // advisory only; commands are never cancelled by age
	PTY       bool   // recorded; the persistent channel runs without a pty
}

// Outcome resolves an enqueued command's future: either a result or a
// transport/lifecycle error, never both.
type Outcome struct {
	Result CommandResult
	Err    error
}

// HistoryEntry is an immutable record of a finished command.
type HistoryEntry struct {
	Command     string    `json:"command"`
	StartedAt   time.Time `json:"startedAt"`
	DurationMs  int64     `json:"durationMs"`
	ExitCode    int       `json:"exitCode"`
	Status      string    `json:"status"` // "success" | "failure"
	SessionName string    `json:"sessionName"`
	Source      Source    `json:"source"`
}

// BufferedCommand records a human-issued command pending agent
// acknowledgement. Result holds the pending sentinel until the command
// completes, then is updated in place.
type BufferedCommand struct {
	Command   string        `json:"command"`
	CommandID string        `json:"commandId"`
	Timestamp time.Time     `json:"timestamp"`
	Source    Source        `json:"source"`
	Result    CommandResult `json:"result"`
}

// OutputEntry is one broadcast unit of session output. Output is already
// CRLF-terminated. Entries are delivered synchronously to registered
// listeners and never persisted.
type OutputEntry struct {
	SessionName   string `json:"sessionName"`
	Output        string `json:"output"`
	CommandID     string `json:"commandId,omitempty"`
	Source        Source `json:"source"`
	UserInitiated bool   `json:"userInitiated"`
}

// OutputListener receives broadcast output entries.
type OutputListener func(entry OutputEntry)

// Info is the externally visible session metadata.
type Info struct {
	Name         string    `json:"name"`
	Host         string    `json:"host"`
	Username     string    `json:"username"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	LastError    string    `json:"lastError,omitempty"`
	LastErrorAt  time.Time `json:"lastErrorAt,omitzero"`
}
