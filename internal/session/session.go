// Package session implements the shared command-execution core: a registry of
// named remote sessions, a per-session FIFO command queue with single
// in-flight execution, the cross-protocol gate between the agent and human
// sides, and the output broadcast layer feeding live observers.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"shellbridge/internal/remote"
)

const (
	// MaxQueuedCommands bounds the number of admitted-but-not-started
	// commands per session. The cap is the only defense against unbounded
	// growth; admitted commands are never expired by age.
	MaxQueuedCommands = 100

	// HistoryCapacity bounds the per-session command history.
	HistoryCapacity = 100
)

// queuedCommand is one pending queue entry together with its completion
// handle. It is mutated only through the session's mutex.
type queuedCommand struct {
	command    string
	opts       CommandOptions
	enqueuedAt time.Time
	done       chan Outcome
}

// Session is one remote command-execution context. All queue, gate, and
// buffer mutation is serialized through its single mutex; exactly one
// command is in flight at any instant.
type Session struct {
	name     string
	host     string
	username string
	shell    remote.Shell

	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	lastError    string
	lastErrorAt  time.Time
	queue        []*queuedCommand
	inFlight     *queuedCommand
	browserBuf   []BufferedCommand
	listeners    map[string]OutputListener
	closed       bool

	history *historyRing
	running sync.WaitGroup
}

func newSession(name string, cfg remote.Config, shell remote.Shell) *Session {
	s := &Session{
		name:         name,
		host:         cfg.Host,
		username:     cfg.Username,
		shell:        shell,
		status:       StatusConnected,
		lastActivity: time.Now().UTC(),
		listeners:    make(map[string]OutputListener),
		history:      newHistoryRing(HistoryCapacity),
	}
	go s.watchTransport()
	return s
}

// Name returns the session's registry key.
func (s *Session) Name() string { return s.name }

// Info returns a snapshot of the session's metadata.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Name:         s.name,
		Host:         s.host,
		Username:     s.username,
		Status:       s.status,
		LastActivity: s.lastActivity,
		LastError:    s.lastError,
		LastErrorAt:  s.lastErrorAt,
	}
}

// SetStatus records a connectivity transition reported by the transport.
// The session does not retry on its own behalf. A no-op once the session
// is closed; DISCONNECTED is terminal.
func (s *Session) SetStatus(status Status, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.setStatusLocked(status, detail)
}

func (s *Session) setStatusLocked(status Status, detail string) {
	s.status = status
	if detail != "" {
		s.lastError = detail
		s.lastErrorAt = time.Now().UTC()
	}
}

// watchTransport records the transport's own connectivity signal. An
// unexpected drop marks the session RECONNECTING; if a command was in
// flight, its failure then marks ERROR.
func (s *Session) watchTransport() {
	err := s.shell.Wait()
	detail := "connection closed by remote"
	if err != nil {
		detail = err.Error()
	}
	s.SetStatus(StatusReconnecting, detail)
}

// Enqueue admits a command to the session's queue and returns its future.
// Admission and gating errors are synchronous; the returned channel resolves
// exactly once when the command completes or the session disconnects.
//
// Gating applies to agent-sourced commands only: a mid-flight human command
// raises BusyError, an unacknowledged browser buffer raises
// BrowserCommandsError and drains the buffer atomically. Human-sourced
// commands populate the browser buffer at submission time, whether or not
// they are admitted to the queue.
func (s *Session) Enqueue(command string, opts CommandOptions) (<-chan Outcome, error) {
	if err := validateCommandText(command); err != nil {
		return nil, err
	}
	if opts.CommandID == "" {
		opts.CommandID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &DisconnectedError{Name: s.name}
	}

	if opts.Source == SourceClaude {
		if s.inFlight != nil && s.inFlight.opts.Source == SourceUser {
			return nil, &BusyError{Name: s.name}
		}
		if len(s.browserBuf) > 0 {
			drained := s.browserBuf
			s.browserBuf = nil
			return nil, &BrowserCommandsError{Name: s.name, Commands: drained}
		}
	}

	if opts.Source == SourceUser {
		s.browserBuf = append(s.browserBuf, BufferedCommand{
			Command:   command,
			CommandID: opts.CommandID,
			Timestamp: time.Now().UTC(),
			Source:    SourceUser,
			Result:    pendingResult(),
		})
	}

	if len(s.queue) >= MaxQueuedCommands {
		return nil, &QueueFullError{Name: s.name, Max: MaxQueuedCommands}
	}

	qc := &queuedCommand{
		command:    command,
		opts:       opts,
		enqueuedAt: time.Now().UTC(),
		done:       make(chan Outcome, 1),
	}
	s.queue = append(s.queue, qc)

	if s.inFlight == nil {
		s.startNextLocked()
	}

	return qc.done, nil
}

// startNextLocked pops the queue head and starts its execution.
// Caller must hold s.mu; the queue must be non-empty and nothing in flight.
func (s *Session) startNextLocked() {
	qc := s.queue[0]
	s.queue = s.queue[1:]
	s.inFlight = qc
	s.running.Add(1)
	go s.execute(qc)
}

// execute runs one command against the remote shell, streams its output, and
// resolves the command's future. On completion it immediately starts the next
// queued command, if any.
func (s *Session) execute(qc *queuedCommand) {
	defer s.running.Done()

	s.echoCommand(qc)

	started := time.Now().UTC()
	res, runErr := s.shell.Run(qc.command, func(line string, stderr bool) {
		s.broadcast(OutputEntry{
			SessionName:   s.name,
			Output:        line + "\r\n",
			CommandID:     qc.opts.CommandID,
			Source:        qc.opts.Source,
			UserInitiated: qc.opts.Source == SourceUser,
		})
	})

	s.mu.Lock()
	s.lastActivity = time.Now().UTC()

	if runErr != nil {
		if s.closed {
			runErr = &DisconnectedError{Name: s.name}
		} else {
			s.setStatusLocked(StatusError, runErr.Error())
			runErr = fmt.Errorf("session %s: transport failure: %w", s.name, runErr)
		}
		qc.done <- Outcome{Err: runErr}
	} else {
		result := CommandResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}

		if qc.opts.Source == SourceUser {
			s.fillBufferResultLocked(qc.opts.CommandID, result)
		}

		status := "success"
		if res.ExitCode != 0 {
			status = "failure"
		}
		s.history.Append(HistoryEntry{
			Command:     qc.command,
			StartedAt:   started,
			DurationMs:  time.Since(started).Milliseconds(),
			ExitCode:    res.ExitCode,
			Status:      status,
			SessionName: s.name,
			Source:      qc.opts.Source,
		})

		qc.done <- Outcome{Result: result}
	}

	s.inFlight = nil
	if !s.closed && len(s.queue) > 0 {
		s.startNextLocked()
	}
	s.mu.Unlock()
}

// echoCommand broadcasts the synthesized prompt+command line ahead of the
// command's output. System commands are internal housekeeping and get no
// echo; their raw output is still broadcast.
func (s *Session) echoCommand(qc *queuedCommand) {
	switch qc.opts.Source {
	case SourceUser, SourceClaude:
		prompt := fmt.Sprintf("[%s@%s %s]$ %s\r\n", s.username, s.host, s.shell.WorkingDir(), qc.command)
		s.broadcast(OutputEntry{
			SessionName:   s.name,
			Output:        prompt,
			CommandID:     qc.opts.CommandID,
			Source:        qc.opts.Source,
			UserInitiated: qc.opts.Source == SourceUser,
		})
	case SourceSystem:
	}
}

// fillBufferResultLocked updates a buffered browser command's result slot in
// place. A no-op if the buffer was already drained. Caller must hold s.mu.
func (s *Session) fillBufferResultLocked(commandID string, result CommandResult) {
	for i := range s.browserBuf {
		if s.browserBuf[i].CommandID == commandID {
			s.browserBuf[i].Result = result
			return
		}
	}
}

// AddListener registers an output listener and returns its ID.
func (s *Session) AddListener(fn OutputListener) string {
	id := uuid.New().String()
	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()
	return id
}

// RemoveListener unregisters a listener by ID.
func (s *Session) RemoveListener(id string) {
	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
}

// broadcast delivers an entry synchronously to all current listeners. Slow
// listeners are the transport's problem; nothing is buffered here.
func (s *Session) broadcast(entry OutputEntry) {
	s.mu.Lock()
	fns := make([]OutputListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(entry)
	}
}

// History returns the retained command history in completion order.
func (s *Session) History() []HistoryEntry {
	return s.history.Entries()
}

// close tears down the session: the in-flight command is unblocked by the
// shell teardown and rejected first, then every queued command is rejected
// in FIFO order. Idempotent.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.status = StatusDisconnected
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	s.shell.Close()
	s.running.Wait()

	for _, qc := range queued {
		qc.done <- Outcome{Err: &DisconnectedError{Name: s.name}}
	}
}
