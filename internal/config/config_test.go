package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	clearPulseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ChannelCapacity != 131072 {
		t.Errorf("ChannelCapacity = %d, want 131072", cfg.ChannelCapacity)
	}
	if !cfg.AutoCreateChannels || !cfg.AutoDeleteEmptyChannels {
		t.Error("expected auto create/delete channels to default true")
	}
	if cfg.RequireAuth {
		t.Error("expected RequireAuth to default false")
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearPulseEnv(t)
	t.Setenv("PULSE_PORT", "9999")
	t.Setenv("PULSE_MAX_CHANNELS", "42")
	t.Setenv("PULSE_REQUIRE_AUTH", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.MaxChannels != 42 {
		t.Errorf("MaxChannels = %d, want 42", cfg.MaxChannels)
	}
	if !cfg.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
}

func TestBindAddr(t *testing.T) {
	cfg := Config{Host: "0.0.0.0", Port: 1234}
	if got, want := cfg.BindAddr(), "0.0.0.0:1234"; got != want {
		t.Errorf("BindAddr() = %q, want %q", got, want)
	}
}

// clearPulseEnv removes every PULSE_-prefixed variable for the duration
// of the test so it doesn't inherit state from the process environment
// or from a previous test, restoring each one on cleanup.
func clearPulseEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] != '=' {
				continue
			}
			key := kv[:i]
			if len(key) > 6 && key[:6] == "PULSE_" {
				original := kv[i+1:]
				t.Cleanup(func() { os.Setenv(key, original) })
				os.Unsetenv(key)
			}
			break
		}
	}
}
