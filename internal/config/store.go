// Package config persists user settings between sessions.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// Settings keys in the persisted config file.
const (
	keyVoiceID        = "voiceId"
	keyOutputFormat   = "outputFormat"
	keyOutputDir      = "outputDir"
	keySpeed          = "speed"
	keyMaxChunkLength = "maxChunkLength"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// ViperStore persists settings in a single JSON file on disk.
type ViperStore struct {
	path string
	v    *viper.Viper
}

// NewViperStore creates a file-backed settings store with defaults applied
// for any key the file does not carry.
func NewViperStore(path string) *ViperStore {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	defaults := DefaultSettings()
	v.SetDefault(keyVoiceID, defaults.VoiceID)
	v.SetDefault(keyOutputFormat, defaults.OutputFormat)
	v.SetDefault(keyOutputDir, defaults.OutputDir)
	v.SetDefault(keySpeed, defaults.Speed)
	v.SetDefault(keyMaxChunkLength, defaults.MaxChunkLength)

	return &ViperStore{path: path, v: v}
}

// Load reads settings from disk or returns defaults when missing. Values
// are normalized so callers never see out-of-range settings.
func (s *ViperStore) Load() (domain.Settings, error) {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return domain.Settings{}, err
		}
	}

	return Normalize(domain.Settings{
		VoiceID:        s.v.GetString(keyVoiceID),
		OutputFormat:   s.v.GetString(keyOutputFormat),
		OutputDir:      s.v.GetString(keyOutputDir),
		Speed:          s.v.GetFloat64(keySpeed),
		MaxChunkLength: s.v.GetInt(keyMaxChunkLength),
	}), nil
}

// Save normalizes and writes settings, creating parent directories.
func (s *ViperStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	cfg = Normalize(cfg)
	s.v.Set(keyVoiceID, cfg.VoiceID)
	s.v.Set(keyOutputFormat, cfg.OutputFormat)
	s.v.Set(keyOutputDir, cfg.OutputDir)
	s.v.Set(keySpeed, cfg.Speed)
	s.v.Set(keyMaxChunkLength, cfg.MaxChunkLength)

	return s.v.WriteConfigAs(s.path)
}
