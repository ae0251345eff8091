// Package remote provides the SSH execution primitive: a persistent remote
// shell channel that runs one command at a time while preserving shell state
// (working directory, environment) between commands.
package remote

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

const scannerBufSize = 1024 * 1024 // 1 MB

// Result is the outcome of one remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OutputFunc receives one line of remote output as it arrives.
// stderr is true when the line came from the remote stderr stream.
type OutputFunc func(line string, stderr bool)

// Shell is a stateful remote command channel. Run submits one command and
// blocks until the remote reports its exit status; implementations must keep
// working directory and environment mutations visible to subsequent Run
// calls. Run is not safe for concurrent use; the session engine serializes
// all calls. Wait blocks until the transport itself drops, returning the
// cause, so owners can record connectivity transitions.
type Shell interface {
	Run(command string, out OutputFunc) (Result, error)
	WorkingDir() string
	Wait() error
	Close() error
}

// DialFunc opens a Shell for a config. Injectable so the session layer can
// be tested without a network.
type DialFunc func(cfg Config) (Shell, error)

// sshShell runs commands through a single long-lived shell on an ssh channel.
// Each command is followed by a marker line carrying the exit status and the
// current working directory, which delimits that command's output on both
// streams.
type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	stdoutLines chan string
	stderrLines chan string
	stdoutErr   chan error
	stderrErr   chan error

	mu     sync.Mutex
	cwd    string
	closed bool
}

// Dial connects to the configured host and starts the persistent shell.
// Failures are returned as *ConnectError classified as credential,
// unreachable, or timeout.
func Dial(cfg Config) (Shell, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            cfg.authMethods(),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.dialTimeout(),
	}

	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, classifyConnectError(err)
	}

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}

	// No PTY: a pty would echo input back into stdout, and the transcript
	// layer synthesizes its own prompt/echo lines.
	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}

	sh := &sshShell{
		client:      client,
		session:     sess,
		stdin:       stdin,
		stdoutLines: make(chan string, 64),
		stderrLines: make(chan string, 64),
		stdoutErr:   make(chan error, 1),
		stderrErr:   make(chan error, 1),
	}

	go scanLines(stdout, sh.stdoutLines, sh.stdoutErr)
	go scanLines(stderr, sh.stderrLines, sh.stderrErr)

	// Prime the working directory with a no-op command.
	if _, err := sh.Run(":", nil); err != nil {
		sh.Close()
		return nil, &ConnectError{Kind: KindUnreachable, Err: err}
	}

	return sh, nil
}

// scanLines pumps a stream into a line channel, closing it on EOF. The scan
// error, if any, is published before the close so the consumer can report
// the cause instead of a bare closed-stream failure.
func scanLines(r io.Reader, lines chan<- string, scanErr chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerBufSize), scannerBufSize)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	scanErr <- scanner.Err()
	close(lines)
}

// Run submits a command to the shell and streams its output until the marker
// reports the exit status. A closed transport surfaces as an error; a
// non-zero remote exit does not.
func (s *sshShell) Run(command string, out OutputFunc) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrShellClosed
	}

	token := "__SB_" + strings.ReplaceAll(uuid.New().String(), "-", "") + "__"

	// The marker line prints token:<exit>:<cwd> on stdout and the bare token
	// on stderr so both stream readers know where this command's output ends.
	script := command + "\n" +
		fmt.Sprintf("printf '%s:%%d:%%s\\n' \"$?\" \"$PWD\"; printf '%s\\n' 1>&2\n", token, token)

	if _, err := io.WriteString(s.stdin, script); err != nil {
		s.closed = true
		return Result{}, fmt.Errorf("write command: %w", err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var exitCode int
	stdoutDone, stderrDone := false, false

	for !stdoutDone || !stderrDone {
		select {
		case line, ok := <-s.stdoutLines:
			if !ok {
				s.closed = true
				return Result{}, s.streamError("stdout", s.stdoutErr)
			}
			// The marker may share a line with unterminated command output
			// (a command whose last write carries no trailing newline), so
			// it is matched anywhere in the line, not just at the start.
			if code, cwd, tail, found := parseMarker(line, token); found {
				if tail != "" {
					stdoutBuf.WriteString(tail)
					stdoutBuf.WriteByte('\n')
					if out != nil {
						out(tail, false)
					}
				}
				exitCode = code
				s.cwd = cwd
				stdoutDone = true
				continue
			}
			stdoutBuf.WriteString(line)
			stdoutBuf.WriteByte('\n')
			if out != nil {
				out(line, false)
			}

		case line, ok := <-s.stderrLines:
			if !ok {
				s.closed = true
				return Result{}, s.streamError("stderr", s.stderrErr)
			}
			if tail, found := strings.CutSuffix(line, token); found {
				if tail != "" {
					stderrBuf.WriteString(tail)
					stderrBuf.WriteByte('\n')
					if out != nil {
						out(tail, true)
					}
				}
				stderrDone = true
				continue
			}
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			if out != nil {
				out(line, true)
			}
		}
	}

	return Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
	}, nil
}

// streamError reports why a line channel closed: the scanner's own error
// when there is one (an over-long line, a read failure), otherwise the
// generic closed-transport error.
func (s *sshShell) streamError(stream string, scanErr <-chan error) error {
	if err := <-scanErr; err != nil {
		return fmt.Errorf("remote %s: %w", stream, err)
	}
	return fmt.Errorf("remote %s closed: %w", stream, ErrShellClosed)
}

// parseMarker extracts exit code and working directory from a marker line.
// tail is any command output preceding the marker on the same line.
func parseMarker(line, token string) (exitCode int, cwd string, tail string, found bool) {
	idx := strings.Index(line, token+":")
	if idx < 0 {
		return 0, "", "", false
	}
	rest := line[idx+len(token)+1:]
	codeStr, cwd, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, "", "", false
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return 0, "", "", false
	}
	return code, cwd, line[:idx], true
}

func (s *sshShell) WorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Wait blocks until the underlying connection drops, for any reason.
func (s *sshShell) Wait() error {
	return s.client.Wait()
}

// Close tears down the channel. An in-flight Run observes the closed streams
// and returns a transport error.
func (s *sshShell) Close() error {
	s.session.Close()
	return s.client.Close()
}
