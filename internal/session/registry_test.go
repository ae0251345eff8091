package session

import (
	"errors"
	"fmt"
	"testing"

	"shellbridge/internal/remote"
)

func fakeDial(cfg remote.Config) (remote.Shell, error) {
	return newFakeShell(), nil
}

func testConfig() remote.Config {
	return remote.Config{Host: "host-a", Port: 22, Username: "alice", Password: "secret"}
}

func TestRegistry_ConnectAndGet(t *testing.T) {
	reg := NewRegistry(10, fakeDial)

	sess, err := reg.Connect("web-1", testConfig())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if sess.Name() != "web-1" {
		t.Errorf("expected name web-1, got %s", sess.Name())
	}

	if !reg.Has("web-1") {
		t.Error("expected Has to report the session")
	}
	got, err := reg.Get("web-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != sess {
		t.Error("Get returned a different session")
	}

	info := sess.Info()
	if info.Status != StatusConnected || info.Host != "host-a" || info.Username != "alice" {
		t.Errorf("unexpected session info: %+v", info)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry(10, fakeDial)

	if _, err := reg.Connect("web-1", testConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := reg.Connect("web-1", testConfig())
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestRegistry_EmptyName(t *testing.T) {
	reg := NewRegistry(10, fakeDial)
	if _, err := reg.Connect("  ", testConfig()); err == nil {
		t.Fatal("expected error for blank session name")
	}
}

func TestRegistry_ConnectFailureNotRegistered(t *testing.T) {
	dialErr := &remote.ConnectError{Kind: remote.KindCredential, Err: errors.New("auth failed")}
	reg := NewRegistry(10, func(cfg remote.Config) (remote.Shell, error) {
		return nil, dialErr
	})

	_, err := reg.Connect("web-1", testConfig())
	var connErr *remote.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if connErr.Kind != remote.KindCredential {
		t.Errorf("expected credential kind, got %s", connErr.Kind)
	}
	if reg.Has("web-1") {
		t.Error("failed connect must not register a session")
	}

	// The name and slot are free for a retry.
	if _, err := NewRegistry(10, fakeDial).Connect("web-1", testConfig()); err != nil {
		t.Errorf("retry after failure should work: %v", err)
	}
}

func TestRegistry_GetNotFound(t *testing.T) {
	reg := NewRegistry(10, fakeDial)
	_, err := reg.Get("nonexistent")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRegistry_DisconnectRemovesSession(t *testing.T) {
	reg := NewRegistry(10, fakeDial)
	if _, err := reg.Connect("web-1", testConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := reg.Disconnect("web-1"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if reg.Has("web-1") {
		t.Error("expected Has to be false after disconnect")
	}
	if err := reg.Disconnect("web-1"); err == nil {
		t.Error("expected error for double disconnect")
	}
}

func TestRegistry_DisconnectRejectsQueued(t *testing.T) {
	shell := newFakeShell()
	shell.block()
	reg := NewRegistry(10, func(cfg remote.Config) (remote.Shell, error) {
		return shell, nil
	})

	sess, err := reg.Connect("web-1", testConfig())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	const n = 4
	dones := make([]<-chan Outcome, 0, n)
	for i := 0; i < n; i++ {
		done, err := sess.Enqueue(fmt.Sprintf("cmd-%d", i), CommandOptions{Source: SourceClaude})
		if err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		dones = append(dones, done)
	}

	if err := reg.Disconnect("web-1"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	var dErr *DisconnectedError
	for i, done := range dones {
		out := waitOutcome(t, done)
		if !errors.As(out.Err, &dErr) {
			t.Errorf("command %d: expected DisconnectedError, got %v", i, out.Err)
		}
	}
	if reg.Has("web-1") {
		t.Error("expected Has to be false after disconnect")
	}
}

func TestRegistry_SessionLimit(t *testing.T) {
	reg := NewRegistry(1, fakeDial)

	if _, err := reg.Connect("web-1", testConfig()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := reg.Connect("web-2", testConfig())
	var limit *LimitError
	if !errors.As(err, &limit) {
		t.Fatalf("expected LimitError, got %v", err)
	}

	// Disconnecting frees the slot.
	if err := reg.Disconnect("web-1"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if _, err := reg.Connect("web-2", testConfig()); err != nil {
		t.Errorf("expected connect to succeed after slot freed, got %v", err)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	reg := NewRegistry(10, fakeDial)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := reg.Connect(name, testConfig()); err != nil {
			t.Fatalf("Connect %s failed: %v", name, err)
		}
	}

	infos := reg.List()
	if len(infos) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(infos))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, info := range infos {
		if info.Name != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], info.Name)
		}
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry(10, fakeDial)
	for _, name := range []string{"a", "b"} {
		if _, err := reg.Connect(name, testConfig()); err != nil {
			t.Fatalf("Connect %s failed: %v", name, err)
		}
	}

	reg.Shutdown()

	if reg.Has("a") || reg.Has("b") {
		t.Error("expected all sessions removed after shutdown")
	}
}
