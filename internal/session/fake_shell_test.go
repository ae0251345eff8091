package session

import (
	"errors"
	"sync"

	"shellbridge/internal/remote"
)

// fakeShell is a scripted remote.Shell so engine tests need no network.
// By default every command succeeds and emits one stdout line. A gate
// channel, when set, blocks Run until released or the shell is closed.
type fakeShell struct {
	mu     sync.Mutex
	cwd    string
	closed bool
	runs   []string
	gate   chan struct{}
	done   chan struct{}
	drop   chan struct{}
	script func(command string, out remote.OutputFunc) (remote.Result, error)
}

func newFakeShell() *fakeShell {
	return &fakeShell{
		cwd:  "/home/alice",
		done: make(chan struct{}),
		drop: make(chan struct{}),
	}
}

// dropTransport simulates the connection dying underneath the shell.
func (f *fakeShell) dropTransport() {
	close(f.drop)
}

// block makes subsequent Run calls wait; the returned func releases them all.
func (f *fakeShell) block() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeShell) Run(command string, out remote.OutputFunc) (remote.Result, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return remote.Result{}, remote.ErrShellClosed
	}
	f.runs = append(f.runs, command)
	gate := f.gate
	script := f.script
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-f.done:
			return remote.Result{}, remote.ErrShellClosed
		}
	}

	if script != nil {
		return script(command, out)
	}

	if out != nil {
		out("ran:"+command, false)
	}
	return remote.Result{Stdout: "ran:" + command + "\n"}, nil
}

func (f *fakeShell) WorkingDir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cwd
}

func (f *fakeShell) Wait() error {
	select {
	case <-f.drop:
		return errors.New("connection reset by peer")
	case <-f.done:
		return nil
	}
}

func (f *fakeShell) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeShell) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

func newTestSession(shell remote.Shell) *Session {
	return newSession("web-1", remote.Config{Host: "host-a", Username: "alice"}, shell)
}
