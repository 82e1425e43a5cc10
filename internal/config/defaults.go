package config

import (
	"os"
	"path/filepath"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/text"
)

// DefaultSettings returns baseline local configuration for first launch.
// The voice id is left empty so the UI can pick the platform default.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputFormat:   domain.FormatWAV,
		OutputDir:      filepath.Join(homeDir, "Documents", "Speech"),
		Speed:          1.0,
		MaxChunkLength: text.DefaultMaxLength,
	}
}

// Normalize replaces unsupported values so stored or hand-edited settings
// never leak out of range.
func Normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	switch cfg.OutputFormat {
	case domain.FormatWAV, domain.FormatMP3:
	default:
		cfg.OutputFormat = defaults.OutputFormat
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}

	if cfg.Speed == 0 {
		cfg.Speed = defaults.Speed
	}
	if cfg.Speed < domain.MinSpeed {
		cfg.Speed = domain.MinSpeed
	}
	if cfg.Speed > domain.MaxSpeed {
		cfg.Speed = domain.MaxSpeed
	}

	if cfg.MaxChunkLength == 0 {
		cfg.MaxChunkLength = defaults.MaxChunkLength
	}
	if cfg.MaxChunkLength < domain.MinChunkLength {
		cfg.MaxChunkLength = domain.MinChunkLength
	}
	if cfg.MaxChunkLength > domain.MaxChunkLength {
		cfg.MaxChunkLength = domain.MaxChunkLength
	}

	return cfg
}
