// Package profiles loads connection profiles from a directory of JSON files
// and resolves them into fully-dialed-ready remote configs: path expansion,
// key file reading, and passphrase decryption all happen here, never in the
// session core.
package profiles

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"shellbridge/internal/remote"
)

// Profile is one on-disk connection profile.
type Profile struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	KeyPath    string `json:"keyPath,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
}

func (p Profile) validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile missing name")
	}
	if p.Host == "" {
		return fmt.Errorf("profile %s: missing host", p.Name)
	}
	if p.Username == "" {
		return fmt.Errorf("profile %s: missing username", p.Name)
	}
	if p.Password == "" && p.KeyPath == "" {
		return fmt.Errorf("profile %s: needs a password or keyPath", p.Name)
	}
	return nil
}

// Store holds the loaded profile set and keeps it current with the
// directory contents.
type Store struct {
	mu       sync.RWMutex
	dir      string
	profiles map[string]Profile

	watchState
}

// Load reads every *.json profile in dir. Invalid profiles are logged and
// skipped; a missing directory is an error.
func Load(dir string) (*Store, error) {
	s := &Store{dir: dir, profiles: make(map[string]Profile)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read profile directory: %w", err)
	}

	loaded := make(map[string]Profile)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("profiles: read %s: %v", path, err)
			continue
		}
		var p Profile
		if err := json.Unmarshal(data, &p); err != nil {
			log.Printf("profiles: parse %s: %v", path, err)
			continue
		}
		if err := p.validate(); err != nil {
			log.Printf("profiles: skip %s: %v", path, err)
			continue
		}
		loaded[p.Name] = p
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()
	return nil
}

// Get returns a profile by name.
func (s *Store) Get(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Names returns the loaded profile names, unordered.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	return names
}

// Resolve turns a profile into a dial-ready config: tilde expansion, key
// file parsing, and passphrase decryption.
func (s *Store) Resolve(name string) (remote.Config, error) {
	p, ok := s.Get(name)
	if !ok {
		return remote.Config{}, fmt.Errorf("profile not found: %s", name)
	}

	cfg := remote.Config{
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
		Password: p.Password,
		Timeout:  time.Duration(p.TimeoutMs) * time.Millisecond,
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}

	if p.KeyPath != "" {
		keyPath, err := ExpandPath(p.KeyPath)
		if err != nil {
			return remote.Config{}, fmt.Errorf("profile %s: %w", name, err)
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return remote.Config{}, fmt.Errorf("profile %s: read key: %w", name, err)
		}
		signer, err := parseKey(pem, p.Passphrase)
		if err != nil {
			return remote.Config{}, fmt.Errorf("profile %s: %w", name, err)
		}
		cfg.Signer = signer
	}

	return cfg, nil
}

func parseKey(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return signer, nil
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

// ExpandPath resolves a leading ~ against the current user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
