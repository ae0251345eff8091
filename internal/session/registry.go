package session

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"shellbridge/internal/remote"
)

// DefaultMaxSessions caps concurrent sessions when no limit is configured.
const DefaultMaxSessions = 32

// Registry owns the set of live sessions. It is the single entry point for
// session lifecycle; components receive it by reference, there is no ambient
// instance.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	pending     map[string]bool
	slots       *semaphore.Weighted
	maxSessions int
	dial        remote.DialFunc
}

// NewRegistry creates a registry. dial may be nil, in which case remote.Dial
// is used; tests inject a fake.
func NewRegistry(maxSessions int, dial remote.DialFunc) *Registry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if dial == nil {
		dial = remote.Dial
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		pending:     make(map[string]bool),
		slots:       semaphore.NewWeighted(int64(maxSessions)),
		maxSessions: maxSessions,
		dial:        dial,
	}
}

// Connect establishes a remote connection and registers the session under
// name. The name is reserved for the duration of the dial so concurrent
// connects cannot race the same key; a failed dial never registers anything.
func (r *Registry) Connect(name string, cfg remote.Config) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("session name is required")
	}

	r.mu.Lock()
	if _, exists := r.sessions[name]; exists {
		r.mu.Unlock()
		return nil, &DuplicateError{Name: name}
	}
	if r.pending[name] {
		r.mu.Unlock()
		return nil, &DuplicateError{Name: name}
	}
	if !r.slots.TryAcquire(1) {
		r.mu.Unlock()
		return nil, &LimitError{Max: r.maxSessions}
	}
	r.pending[name] = true
	r.mu.Unlock()

	shell, err := r.dial(cfg)
	if err != nil {
		r.mu.Lock()
		delete(r.pending, name)
		r.mu.Unlock()
		r.slots.Release(1)
		return nil, err
	}

	sess := newSession(name, cfg, shell)

	r.mu.Lock()
	delete(r.pending, name)
	r.sessions[name] = sess
	r.mu.Unlock()

	log.Printf("session %s connected (%s@%s)", name, cfg.Username, cfg.Host)
	return sess, nil
}

// Disconnect fails every queued and in-flight command for the session,
// releases the remote handle, then removes the session from the registry.
func (r *Registry) Disconnect(name string) error {
	r.mu.RLock()
	sess, ok := r.sessions[name]
	r.mu.RUnlock()
	if !ok {
		return &NotFoundError{Name: name}
	}

	sess.close()

	r.mu.Lock()
	_, present := r.sessions[name]
	delete(r.sessions, name)
	r.mu.Unlock()

	// Guard against a concurrent Disconnect releasing the slot twice.
	if present {
		r.slots.Release(1)
		log.Printf("session %s disconnected", name)
	}
	return nil
}

// Has reports whether a session is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[name]
	return ok
}

// Get returns the session registered under name.
func (r *Registry) Get(name string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return sess, nil
}

// List returns metadata for all registered sessions, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Shutdown disconnects every session. Sessions are independent; a failure on
// one does not affect the others.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	r.mu.RUnlock()

	for _, name := range names {
		if err := r.Disconnect(name); err != nil {
			log.Printf("shutdown: disconnect %s: %v", name, err)
		}
	}
}
