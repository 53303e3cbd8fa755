package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Setenv("REALM_JWT_SECRET", "s3cret")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatalf("env override not applied: %q", cfg.JWTSecret)
	}
	if cfg.Port != 8080 || cfg.Store != StoreMemory || cfg.Backpressure != "kick" {
		t.Fatalf("unexpected defaults port=%d store=%q", cfg.Port, cfg.Store)
	}
	if cfg.RingTimeout != 30*time.Second || cfg.PongWait != time.Minute {
		t.Fatalf("unexpected durations ring=%v pong=%v", cfg.RingTimeout, cfg.PongWait)
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("expected no ice servers, got %v", cfg.ICEServers)
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
port: 9000
jwt_secret: from-file
ring_timeout: 10s
send_buffer: 8
ice_servers:
  - urls: ["stun:stun.example.org:3478"]
  - urls: ["turn:turn.example.org:3478"]
    username: u
    credential: p
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 || cfg.JWTSecret != "from-file" || cfg.SendBuffer != 8 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.RingTimeout != 10*time.Second {
		t.Fatalf("ring timeout %v", cfg.RingTimeout)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1].Username != "u" || cfg.ICEServers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Fatalf("unexpected ice servers %+v", cfg.ICEServers)
	}
}

func TestLoadFileRequiresJWTSecret(t *testing.T) {
	t.Setenv("REALM_JWT_SECRET", "")
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrNoJWTSecret) {
		t.Fatalf("want ErrNoJWTSecret, got %v", err)
	}
}

func TestLoadFileRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("REALM_JWT_SECRET", "x")
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("broken file accepted")
	}
}

func TestValidate(t *testing.T) {
	ok := Config{JWTSecret: "x", Store: StoreMongo, Port: 80}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	bad := ok
	bad.Store = "sqlite"
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown store accepted")
	}
	bad = ok
	bad.Backpressure = "shrug"
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown backpressure policy accepted")
	}
	bad = ok
	bad.Port = 70000
	if err := bad.Validate(); err == nil {
		t.Fatalf("bad port accepted")
	}
}
