// Package convert orchestrates the full text-to-speech pipeline: chunking,
// batched synthesis, ordered merge, and optional MP3 re-encode.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/audio"
	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/retry"
	"github.com/akosiraffytot/speechmaker-sub000/internal/text"
)

// synthesisBatchSize caps the number of chunks synthesized concurrently.
const synthesisBatchSize = 3

// Progress milestones. Synthesis advances linearly between its start and
// end values as chunks complete.
const (
	progressSplitting      = 10
	progressSynthesisStart = 20
	progressSynthesisEnd   = 80
	progressMerging        = 85
	progressTranscoding    = 95
	progressDone           = 100
)

// Request contains the text, voice parameters, and callbacks for one run.
type Request struct {
	JobID          string
	Text           string
	VoiceID        string
	Speed          float64
	OutputFormat   string
	OutputPath     string
	MaxChunkLength int
	OnStage        func(status domain.JobStatus)
	OnProgress     func(progress int)
}

// Result describes the artifact produced by a run.
type Result struct {
	OutputPath   string
	SegmentCount int
	// WavPreserved is set when an MP3 re-encode could not run and the
	// merged WAV was kept at OutputPath instead.
	WavPreserved bool
}

// Synthesizer renders one text segment to a WAV file.
type Synthesizer interface {
	Synthesize(ctx context.Context, segment text.Segment, voiceID string, speed float64, outputPath string) (string, error)
}

// AudioProcessor merges synthesized units and re-encodes the final artifact.
type AudioProcessor interface {
	Merge(ctx context.Context, inputs []string, outputPath string) (string, error)
	Transcode(ctx context.Context, inputPath, outputPath string, opts audio.TranscodeOptions) (string, error)
}

// Pipeline runs conversions end to end. It holds no per-job state and is
// safe for sequential reuse across jobs.
type Pipeline struct {
	synth  Synthesizer
	audio  AudioProcessor
	logger *zap.SugaredLogger
	policy retry.Policy

	mkdirAll  func(path string, perm os.FileMode) error
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	remove    func(name string) error
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(synth Synthesizer, audio AudioProcessor, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		synth:     synth,
		audio:     audio,
		logger:    logger,
		policy:    retry.NewPolicy(retry.DefaultMaxAttempts, time.Second),
		mkdirAll:  os.MkdirAll,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		remove:    os.Remove,
	}
}

// NewPipelineForTests constructs a pipeline with an injectable retry policy.
func NewPipelineForTests(synth Synthesizer, audio AudioProcessor, logger *zap.SugaredLogger, policy retry.Policy) *Pipeline {
	p := NewPipeline(synth, audio, logger)
	p.policy = policy
	return p
}

// RunWithRetry reruns a failed conversion with exponential backoff. Input,
// internal, and cancellation failures stop immediately, as does a run that
// already produced a preserved WAV fallback.
func (p *Pipeline) RunWithRetry(ctx context.Context, req Request) (Result, error) {
	var result Result
	err := p.policy.Do(ctx, func(attempt int) error {
		var runErr error
		result, runErr = p.Run(ctx, req)
		return runErr
	}, func(err error) bool {
		if result.WavPreserved {
			return false
		}
		return domain.IsRetryable(err)
	}, func(attempt int, wait time.Duration, err error) {
		p.logger.Warnw("conversion failed, retrying",
			"jobId", req.JobID, "attempt", attempt, "wait", wait, "error", err)
	})
	return result, err
}

// Run performs one conversion attempt: split, synthesize, merge, and
// optionally transcode. Cancellation is honored between batches and stages.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	outputDir := filepath.Dir(req.OutputPath)
	if err := p.mkdirAll(outputDir, 0o755); err != nil {
		return Result{}, domain.ClassifyFilesystem("convert", outputDir, err)
	}

	emitStage(req.OnStage, domain.JobStatusSplitting)
	emitProgress(req.OnProgress, progressSplitting)

	maxLength := req.MaxChunkLength
	if maxLength == 0 {
		maxLength = text.DefaultMaxLength
	}
	segments, err := text.Split(req.Text, maxLength)
	if err != nil {
		return Result{}, err
	}
	if len(segments) == 0 {
		return Result{}, domain.NewError(domain.ErrInternal, "convert",
			"chunking produced no segments for non-empty text", nil)
	}
	p.logger.Infow("text split", "jobId", req.JobID, "segments", len(segments))

	tempDir, err := p.mkdirTemp(outputDir, ".speechmaker-chunks-*")
	if err != nil {
		return Result{}, domain.ClassifyFilesystem("convert", outputDir, err)
	}
	defer func() {
		if cleanupErr := p.removeAll(tempDir); cleanupErr != nil {
			p.logger.Warnw("chunk workspace cleanup failed", "dir", tempDir, "error", cleanupErr)
		}
	}()

	emitStage(req.OnStage, domain.JobStatusSynthesizing)
	unitPaths, err := p.synthesizeAll(ctx, req, segments, tempDir)
	if err != nil {
		return Result{}, err
	}

	if err := checkCancelled(ctx, "merge"); err != nil {
		return Result{}, err
	}
	emitStage(req.OnStage, domain.JobStatusMerging)
	emitProgress(req.OnProgress, progressMerging)

	wavPath := req.OutputPath
	wantMP3 := req.OutputFormat == domain.FormatMP3
	if wantMP3 {
		wavPath = replaceExt(req.OutputPath, ".wav")
	}
	if _, err := p.audio.Merge(ctx, unitPaths, wavPath); err != nil {
		return Result{}, err
	}

	if !wantMP3 {
		emitProgress(req.OnProgress, progressDone)
		return Result{OutputPath: wavPath, SegmentCount: len(segments)}, nil
	}

	if err := checkCancelled(ctx, "transcode"); err != nil {
		p.discard(wavPath)
		return Result{}, err
	}
	emitStage(req.OnStage, domain.JobStatusTranscoding)
	emitProgress(req.OnProgress, progressTranscoding)

	if _, err := p.audio.Transcode(ctx, wavPath, req.OutputPath, audio.DefaultTranscodeOptions()); err != nil {
		if domain.KindOf(err) == domain.ErrCapability {
			p.logger.Warnw("mp3 re-encode unavailable, keeping wav",
				"jobId", req.JobID, "path", wavPath, "error", err)
			return Result{OutputPath: wavPath, SegmentCount: len(segments), WavPreserved: true}, err
		}
		p.discard(wavPath)
		p.discard(req.OutputPath)
		return Result{}, err
	}

	if err := p.remove(wavPath); err != nil {
		p.logger.Warnw("intermediate wav cleanup failed", "path", wavPath, "error", err)
	}

	emitProgress(req.OnProgress, progressDone)
	return Result{OutputPath: req.OutputPath, SegmentCount: len(segments)}, nil
}

// synthesizeAll renders every segment in fixed-size concurrent batches and
// returns the unit paths in segment order.
func (p *Pipeline) synthesizeAll(ctx context.Context, req Request, segments []text.Segment, tempDir string) ([]string, error) {
	unitPaths := make([]string, len(segments))
	unitErrs := make([]error, len(segments))
	completed := 0

	for start := 0; start < len(segments); start += synthesisBatchSize {
		if err := checkCancelled(ctx, "synthesize"); err != nil {
			return nil, err
		}

		end := start + synthesisBatchSize
		if end > len(segments) {
			end = len(segments)
		}

		done := make(chan int, end-start)
		for i := start; i < end; i++ {
			go func(i int) {
				unitPath := filepath.Join(tempDir, fmt.Sprintf("chunk-%03d.wav", segments[i].Index))
				path, err := p.synth.Synthesize(ctx, segments[i], req.VoiceID, req.Speed, unitPath)
				unitPaths[i] = path
				unitErrs[i] = err
				done <- i
			}(i)
		}
		// Progress advances once per finished segment, not per batch.
		for i := start; i < end; i++ {
			<-done
			completed++
			progress := progressSynthesisStart +
				(progressSynthesisEnd-progressSynthesisStart)*completed/len(segments)
			emitProgress(req.OnProgress, progress)
		}

		for i := start; i < end; i++ {
			if unitErrs[i] == nil {
				continue
			}
			if ctx.Err() != nil {
				return nil, checkCancelled(ctx, "synthesize")
			}
			return nil, unitErrs[i]
		}
	}

	return unitPaths, nil
}

// discard removes a partial artifact, logging instead of failing.
func (p *Pipeline) discard(path string) {
	if err := p.remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warnw("partial artifact cleanup failed", "path", path, "error", err)
	}
}

// validateRequest rejects malformed input before any work begins.
func validateRequest(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return domain.NewError(domain.ErrInput, "convert", "text is required", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return domain.NewError(domain.ErrInput, "convert", "output path is required", nil)
	}
	switch req.OutputFormat {
	case domain.FormatWAV, domain.FormatMP3:
	default:
		return domain.NewError(domain.ErrInput, "convert",
			fmt.Sprintf("unsupported output format %q", req.OutputFormat), nil)
	}
	return nil
}

// checkCancelled converts context cancellation into the cancelled error kind.
func checkCancelled(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewError(domain.ErrCancelled, op, "conversion cancelled", err)
	}
	return nil
}

// replaceExt swaps the path extension.
func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// emitStage forwards stage updates when the callback is configured.
func emitStage(cb func(domain.JobStatus), status domain.JobStatus) {
	if cb != nil {
		cb(status)
	}
}

// emitProgress forwards progress updates when the callback is configured.
func emitProgress(cb func(int), progress int) {
	if cb != nil {
		cb(progress)
	}
}
