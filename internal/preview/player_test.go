package preview

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

func fakeOpen(name string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("audio")), nil
}

// TestPlayFileCompletesWhenStreamEnds checks the normal playback path.
func TestPlayFileCompletesWhenStreamEnds(t *testing.T) {
	done := make(chan struct{})
	close(done)

	var gotFormat string
	player := NewPlayerForTests(zap.NewNop().Sugar(), time.Second, fakeOpen,
		func(format string, r io.ReadCloser) (<-chan struct{}, error) {
			gotFormat = format
			return done, nil
		})

	if err := player.PlayFile(context.Background(), "/tmp/sample.wav"); err != nil {
		t.Fatalf("PlayFile failed: %v", err)
	}
	if gotFormat != domain.FormatWAV {
		t.Fatalf("format = %q, want wav", gotFormat)
	}
}

// TestPlayFileTimeoutResolvesSuccessfully checks that a hung stream is not
// reported as an error.
func TestPlayFileTimeoutResolvesSuccessfully(t *testing.T) {
	player := NewPlayerForTests(zap.NewNop().Sugar(), 10*time.Millisecond, fakeOpen,
		func(format string, r io.ReadCloser) (<-chan struct{}, error) {
			return make(chan struct{}), nil
		})

	start := time.Now()
	if err := player.PlayFile(context.Background(), "/tmp/sample.mp3"); err != nil {
		t.Fatalf("PlayFile failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout did not fire, elapsed %v", elapsed)
	}
}

// TestPlayFileRejectsUnsupportedFormat checks the extension gate.
func TestPlayFileRejectsUnsupportedFormat(t *testing.T) {
	player := NewPlayerForTests(zap.NewNop().Sugar(), time.Second, fakeOpen,
		func(format string, r io.ReadCloser) (<-chan struct{}, error) {
			t.Fatal("playback started for unsupported format")
			return nil, nil
		})

	err := player.PlayFile(context.Background(), "/tmp/sample.ogg")
	if domain.KindOf(err) != domain.ErrInput {
		t.Fatalf("error kind = %s, want input", domain.KindOf(err))
	}
}

// TestPlayFileReportsPlaybackSetupFailure checks decode error handling.
func TestPlayFileReportsPlaybackSetupFailure(t *testing.T) {
	player := NewPlayerForTests(zap.NewNop().Sugar(), time.Second, fakeOpen,
		func(format string, r io.ReadCloser) (<-chan struct{}, error) {
			return nil, errors.New("bad header")
		})

	err := player.PlayFile(context.Background(), "/tmp/sample.wav")
	if domain.KindOf(err) != domain.ErrExternal {
		t.Fatalf("error kind = %s, want external", domain.KindOf(err))
	}
}

// TestPlayFileMissingFile checks filesystem error classification.
func TestPlayFileMissingFile(t *testing.T) {
	player := NewPlayer(zap.NewNop().Sugar())
	err := player.PlayFile(context.Background(), "/nonexistent/sample.wav")
	if domain.KindOf(err) != domain.ErrFilesystem {
		t.Fatalf("error kind = %s, want filesystem", domain.KindOf(err))
	}
}
