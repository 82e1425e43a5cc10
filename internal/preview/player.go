// Package preview plays short voice samples through the system audio device.
package preview

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// defaultTimeout bounds one preview playback. A sample still playing when
// it expires is treated as finished, never as an error.
const defaultTimeout = 10 * time.Second

// Player decodes and plays a synthesized sample file.
type Player struct {
	logger  *zap.SugaredLogger
	timeout time.Duration

	open  func(name string) (io.ReadCloser, error)
	start func(format string, r io.ReadCloser) (<-chan struct{}, error)
}

// NewPlayer constructs the production player backed by the system speaker.
func NewPlayer(logger *zap.SugaredLogger) *Player {
	return &Player{
		logger:  logger,
		timeout: defaultTimeout,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
		start: startSpeaker,
	}
}

// NewPlayerForTests constructs a player with injectable playback.
func NewPlayerForTests(logger *zap.SugaredLogger, timeout time.Duration,
	open func(name string) (io.ReadCloser, error),
	start func(format string, r io.ReadCloser) (<-chan struct{}, error)) *Player {
	return &Player{logger: logger, timeout: timeout, open: open, start: start}
}

// PlayFile plays one wav or mp3 file to completion, the playback timeout,
// or context cancellation, whichever comes first. Only setup failures are
// reported as errors.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != domain.FormatWAV && format != domain.FormatMP3 {
		return domain.NewError(domain.ErrInput, "preview",
			fmt.Sprintf("unsupported preview format %q", format), nil)
	}

	file, err := p.open(path)
	if err != nil {
		return domain.ClassifyFilesystem("preview", path, err)
	}
	defer file.Close()

	done, err := p.start(format, file)
	if err != nil {
		return domain.NewError(domain.ErrExternal, "preview", "audio playback failed", err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.logger.Debugw("preview playback timed out", "path", path, "timeout", p.timeout)
	case <-ctx.Done():
		p.logger.Debugw("preview playback cancelled", "path", path)
	}
	return nil
}

// startSpeaker decodes the sample and plays it asynchronously, closing the
// returned channel when the stream ends.
func startSpeaker(format string, r io.ReadCloser) (<-chan struct{}, error) {
	var (
		streamer beep.StreamSeekCloser
		bufFmt   beep.Format
		err      error
	)
	switch format {
	case domain.FormatMP3:
		streamer, bufFmt, err = mp3.Decode(r)
	default:
		streamer, bufFmt, err = wav.Decode(r)
	}
	if err != nil {
		return nil, err
	}

	if err := speaker.Init(bufFmt.SampleRate, bufFmt.SampleRate.N(time.Second/10)); err != nil {
		streamer.Close()
		return nil, err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		streamer.Close()
		close(done)
	})))
	return done, nil
}
