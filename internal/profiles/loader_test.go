package profiles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProfile(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_ValidAndInvalidProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "web.json", `{"name":"web","host":"10.0.0.5","username":"deploy","password":"s3cret"}`)
	writeProfile(t, dir, "broken.json", `{"name":"broken","username":"nobody"}`) // missing host
	writeProfile(t, dir, "garbage.json", `{not json`)
	writeProfile(t, dir, "notes.txt", `ignored`)

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if names := store.Names(); len(names) != 1 || names[0] != "web" {
		t.Errorf("expected only the valid profile, got %v", names)
	}

	p, ok := store.Get("web")
	if !ok {
		t.Fatal("expected profile 'web'")
	}
	if p.Host != "10.0.0.5" || p.Username != "deploy" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestLoad_MissingDirectory(t *testing.T) {
	if _, err := Load("/nonexistent/profiles/xyz"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestResolve_PasswordProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "web.json", `{"name":"web","host":"10.0.0.5","username":"deploy","password":"s3cret"}`)

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg, err := store.Resolve("web")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cfg.Port != 22 {
		t.Errorf("expected default port 22, got %d", cfg.Port)
	}
	if cfg.Password != "s3cret" || cfg.Host != "10.0.0.5" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestResolve_NotFound(t *testing.T) {
	store, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := store.Resolve("ghost"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestResolve_BadKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key")
	if err := os.WriteFile(keyPath, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	writeProfile(t, dir, "web.json",
		`{"name":"web","host":"10.0.0.5","username":"deploy","keyPath":"`+keyPath+`"}`)

	store, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := store.Resolve("web"); err == nil {
		t.Fatal("expected error for unparseable key")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := ExpandPath("~/keys/id_ed25519")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if !strings.HasPrefix(got, home) {
		t.Errorf("expected path under %s, got %s", home, got)
	}

	plain := "/etc/keys/id_rsa"
	if got, _ := ExpandPath(plain); got != plain {
		t.Errorf("expected unchanged path, got %s", got)
	}
}
