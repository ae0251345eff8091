package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"shellbridge/internal/profiles"
	"shellbridge/internal/realtime"
	"shellbridge/internal/session"
)

// Config holds server configuration, loaded from environment variables.
type Config struct {
	Port        int
	ProfilesDir string
	MaxSessions int
}

func loadConfig() Config {
	cfg := Config{
		Port:        8440,
		ProfilesDir: "",
		MaxSessions: session.DefaultMaxSessions,
	}

	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("PROFILES_DIR"); v != "" {
		cfg.ProfilesDir = v
	}
	if v := os.Getenv("MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}

	return cfg
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	cfg := loadConfig()

	// Session registry with the real SSH dialer.
	registry := session.NewRegistry(cfg.MaxSessions, nil)

	// Connection profiles are optional; without a directory, sessions are
	// created from inline credentials only.
	var store *profiles.Store
	if cfg.ProfilesDir != "" {
		expanded, err := profiles.ExpandPath(cfg.ProfilesDir)
		if err != nil {
			log.Fatalf("resolve profiles dir: %v", err)
		}
		store, err = profiles.Load(expanded)
		if err != nil {
			log.Fatalf("load profiles: %v", err)
		}
		if err := store.Watch(); err != nil {
			log.Printf("profiles: watch disabled: %v", err)
		}
		log.Printf("loaded %d connection profile(s) from %s", len(store.Names()), expanded)
	}

	rtServer := realtime.New(registry, store)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: rtServer.Handler(),
	}

	// Graceful shutdown on signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("shutting down...")
		if store != nil {
			store.Close()
		}
		registry.Shutdown()
		httpServer.Close()
	}()

	log.Printf("shellbridge server running on http://localhost:%d", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
