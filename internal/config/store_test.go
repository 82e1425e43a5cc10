package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.OutputFormat != domain.FormatWAV {
		t.Fatalf("format = %q, want wav", cfg.OutputFormat)
	}
	if cfg.OutputDir == "" {
		t.Fatal("expected non-empty output dir")
	}
	if cfg.Speed != 1.0 {
		t.Fatalf("speed = %v, want 1.0", cfg.Speed)
	}
	if cfg.MaxChunkLength != 5000 {
		t.Fatalf("maxChunkLength = %d, want 5000", cfg.MaxChunkLength)
	}
}

// TestNormalizeClampsOutOfRangeValues checks settings sanitization.
func TestNormalizeClampsOutOfRangeValues(t *testing.T) {
	got := Normalize(domain.Settings{
		OutputFormat:   "ogg",
		Speed:          9.9,
		MaxChunkLength: 50,
	})
	if got.OutputFormat != domain.FormatWAV {
		t.Fatalf("format = %q, want wav", got.OutputFormat)
	}
	if got.Speed != domain.MaxSpeed {
		t.Fatalf("speed = %v, want %v", got.Speed, domain.MaxSpeed)
	}
	if got.MaxChunkLength != domain.MinChunkLength {
		t.Fatalf("maxChunkLength = %d, want %d", got.MaxChunkLength, domain.MinChunkLength)
	}
	if got.OutputDir == "" {
		t.Fatal("expected default output dir")
	}

	low := Normalize(domain.Settings{Speed: 0.1, MaxChunkLength: 99999})
	if low.Speed != domain.MinSpeed {
		t.Fatalf("speed = %v, want %v", low.Speed, domain.MinSpeed)
	}
	if low.MaxChunkLength != domain.MaxChunkLength {
		t.Fatalf("maxChunkLength = %d, want %d", low.MaxChunkLength, domain.MaxChunkLength)
	}
}

// TestViperStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestViperStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewViperStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != Normalize(DefaultSettings()) {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestViperStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestViperStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	want := domain.Settings{
		VoiceID:        "voiceA",
		OutputFormat:   domain.FormatMP3,
		OutputDir:      "/out",
		Speed:          1.5,
		MaxChunkLength: 3000,
	}

	if err := NewViperStore(path).Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Reload through a fresh store to prove the file round-trips.
	got, err := NewViperStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestViperStoreSaveNormalizes checks that bad values never hit disk.
func TestViperStoreSaveNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := NewViperStore(path).Save(domain.Settings{OutputFormat: "flac", Speed: 0.01}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := NewViperStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputFormat != domain.FormatWAV {
		t.Fatalf("format = %q, want wav", got.OutputFormat)
	}
	if got.Speed != domain.MinSpeed {
		t.Fatalf("speed = %v, want %v", got.Speed, domain.MinSpeed)
	}
}

// TestViperStoreLoadInvalidJSON checks parse error handling.
func TestViperStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewViperStore(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}
