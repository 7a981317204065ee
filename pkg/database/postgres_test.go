package database

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/retry"
)

func TestPostgresConfigDefaults(t *testing.T) {
	cfg := defaultPostgresConfig()
	if cfg.Port != 5432 {
		t.Errorf("Port = %d, want 5432", cfg.Port)
	}
	if cfg.MaxConns != 25 {
		t.Errorf("MaxConns = %d, want 25", cfg.MaxConns)
	}
	if cfg.Connect.MaxAttempts != retry.DefaultPolicy().MaxAttempts {
		t.Errorf("Connect.MaxAttempts = %d", cfg.Connect.MaxAttempts)
	}
}

func TestFromConfig(t *testing.T) {
	pc := FromConfig(&config.DatabaseConfig{
		Host:     "db",
		Port:     6543,
		User:     "inv",
		Password: "secret",
		DBName:   "tickets",
		SSLMode:  "require",
		MaxConns: 80,
	}, true)

	if pc.MaxConns != 80 {
		t.Errorf("MaxConns = %d, want 80", pc.MaxConns)
	}
	if pc.MinConns != 2 {
		t.Errorf("MinConns = %d, want default 2", pc.MinConns)
	}
	if !pc.EnableTracing {
		t.Error("EnableTracing should be true")
	}
	want := "host=db port=6543 user=inv password=secret dbname=tickets sslmode=require"
	if pc.DSN() != want {
		t.Errorf("DSN() = %q, want %q", pc.DSN(), want)
	}
}

func TestNewPostgres_Unreachable(t *testing.T) {
	cfg := defaultPostgresConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 1
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.Connect = retry.Policy{MaxAttempts: 2, InitialInterval: 10 * time.Millisecond}

	attempts := 0
	_, err := NewPostgres(context.Background(), cfg, func(int, error, time.Duration) { attempts++ })
	if err == nil {
		t.Fatal("expected an error for an unreachable database")
	}
	if attempts != 1 {
		t.Errorf("notify called %d times, want 1", attempts)
	}
}
