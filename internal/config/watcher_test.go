package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherReloadsOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, zerolog.Nop(), func(old, new *Config) {
		reloaded <- new
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}

	if w.Get().Beep.Volume != 0.8 {
		t.Fatalf("initial Get() volume = %v, want 0.8", w.Get().Beep.Volume)
	}

	updated := `{
		"insim": {"host": "127.0.0.1", "port": 29999, "admin_password": "secret", "interval_ms": 100},
		"outsim": {"port": 4000},
		"beep": {"mode": "calm", "volume": 0.2, "base_frequency_hz": 440, "intervals_ms": [500]},
		"telemetry_ws": {"enabled": false},
		"sp": {"radar_enabled": true, "beeps_enabled": false},
		"mp": {"radar_enabled": false, "beeps_enabled": true}
	}`

	// Force a distinct mtime: some filesystems only have 1s resolution.
	future := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	w.Start()
	defer w.Stop()

	select {
	case cfg := <-reloaded:
		if cfg.Beep.Mode != BeepModeCalm {
			t.Fatalf("reloaded config mode = %q, want calm", cfg.Beep.Mode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload callback")
	}

	if w.Get().Beep.Mode != BeepModeCalm {
		t.Fatalf("Get() after reload = %q, want calm", w.Get().Beep.Mode)
	}
}

func TestWatcherKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)

	w, err := NewWatcher(path, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}

	future := time.Now().Add(2 * time.Second)
	os.WriteFile(path, []byte("not json"), 0o644)
	os.Chtimes(path, future, future)

	w.checkAndReload()

	if w.Get().Beep.Mode != BeepModeStandard {
		t.Fatalf("Get() after failed reload = %q, want standard (unchanged)", w.Get().Beep.Mode)
	}
}

func TestWatcherSkipsReloadWhenMtimeUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validConfig)
	w, err := NewWatcher(path, zerolog.Nop(), func(old, new *Config) {
		t.Fatal("onReload should not fire when mtime is unchanged")
	})
	if err != nil {
		t.Fatalf("NewWatcher() error: %v", err)
	}
	w.checkAndReload()
}
