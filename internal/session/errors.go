package session

import (
	"fmt"
	"regexp"
	"strings"
)

// NotFoundError is returned when no session is registered under a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.Name)
}

// DuplicateError is returned when connecting under a name already in use.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("session already exists: %s", e.Name)
}

// DisconnectedError rejects commands on a session that has been disconnected,
// including queued and in-flight commands at disconnect time.
type DisconnectedError struct {
	Name string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("session disconnected: %s", e.Name)
}

// BusyError signals a transient collision: the session is mid-flight on a
// command from the other protocol side. The rejected command was not queued;
// the caller may retry.
type BusyError struct {
	Name string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session %s is busy executing a command", e.Name)
}

// BrowserCommandsError rejects an agent command because the human side issued
// commands the agent has not yet seen. Commands holds the entire drained
// buffer; the drain already happened, so a retry only sees newer activity.
type BrowserCommandsError struct {
	Name     string
	Commands []BufferedCommand
}

func (e *BrowserCommandsError) Error() string {
	return fmt.Sprintf("session %s has %d unacknowledged browser command(s)", e.Name, len(e.Commands))
}

// LimitError rejects a connect when the registry is at its session cap.
type LimitError struct {
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("maximum session limit reached (%d)", e.Max)
}

// QueueFullError rejects admission when the pending queue is at capacity.
type QueueFullError struct {
	Name string
	Max  int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("command queue full for session %s (max %d)", e.Name, e.Max)
}

// ValidationError rejects a command at admission before it is queued.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s", e.Reason)
}

// terminatingCommand matches commands that would tear down the shared shell
// and with it the session-local state every other queued command depends on.
var terminatingCommand = regexp.MustCompile(`^\s*(exit|logout)(\s+\d+)?\s*$`)

// validateCommandText enforces the admission rules on raw command text.
func validateCommandText(command string) error {
	if strings.TrimSpace(command) == "" {
		return &ValidationError{Reason: "command text is empty"}
	}
	if terminatingCommand.MatchString(command) {
		return &ValidationError{Reason: "command would terminate the shared session"}
	}
	return nil
}
