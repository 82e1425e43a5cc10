// Package audio invokes ffmpeg to merge synthesized units and re-encode
// the final artifact.
package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/run"
)

const (
	// singlePassLimit is the largest input count merged in one invocation.
	singlePassLimit = 10
	// mergeBatchSize caps inputs per batch invocation to stay clear of
	// argument-count limits. Batches are merged in exactly one extra pass.
	mergeBatchSize = 20
)

// TranscodeOptions enumerates every recognized re-encode option.
type TranscodeOptions struct {
	Bitrate    string `json:"bitrate"`
	SampleRate int    `json:"sampleRate"`
}

// DefaultTranscodeOptions returns the baseline MP3 encode settings.
func DefaultTranscodeOptions() TranscodeOptions {
	return TranscodeOptions{Bitrate: "128k", SampleRate: 44100}
}

// ToolProvider supplies the latest transcode-tool probe snapshot.
type ToolProvider interface {
	Status() domain.CapabilityStatus
}

// Gateway merges and re-encodes audio files through ffmpeg.
type Gateway struct {
	tool   ToolProvider
	runner run.Runner
	logger *zap.SugaredLogger

	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	createT   func(dir, pattern string) (*os.File, error)
}

// NewGateway constructs the production gateway.
func NewGateway(tool ToolProvider, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		tool:      tool,
		runner:    run.NewExecRunner(),
		logger:    logger,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		createT:   os.CreateTemp,
	}
}

// NewGatewayForTests constructs a gateway with an injectable runner.
func NewGatewayForTests(tool ToolProvider, runner run.Runner, logger *zap.SugaredLogger) *Gateway {
	g := NewGateway(tool, logger)
	g.runner = runner
	return g
}

// Merge concatenates the given files, already ordered by segment index, into
// outputPath. A single input is copied directly without invoking ffmpeg, and
// when no ffmpeg is available the uniform WAV units are concatenated natively
// so WAV output keeps working without the tool.
func (g *Gateway) Merge(ctx context.Context, inputs []string, outputPath string) (string, error) {
	switch {
	case len(inputs) == 0:
		return "", domain.NewError(domain.ErrInternal, "merge", "no audio units to merge", nil)
	case len(inputs) == 1:
		if err := copyFile(inputs[0], outputPath); err != nil {
			return "", domain.ClassifyFilesystem("merge", outputPath, err)
		}
		return outputPath, nil
	}

	status := g.tool.Status()
	if !status.Available || status.Path == "" {
		g.logger.Infow("merging without ffmpeg", "inputs", len(inputs), "output", outputPath)
		if err := concatWAV(inputs, outputPath); err != nil {
			return "", err
		}
		return outputPath, nil
	}
	toolPath := status.Path

	if len(inputs) <= singlePassLimit {
		if err := g.mergeOnce(ctx, toolPath, inputs, outputPath); err != nil {
			return "", err
		}
		return outputPath, nil
	}

	// Batched merge: fixed-size batches to intermediates, then one final
	// pass over the intermediates. Never re-batched.
	tempDir, err := g.mkdirTemp(filepath.Dir(outputPath), ".speechmaker-merge-*")
	if err != nil {
		return "", domain.ClassifyFilesystem("merge", filepath.Dir(outputPath), err)
	}
	defer func() {
		_ = g.removeAll(tempDir)
	}()

	var intermediates []string
	for start := 0; start < len(inputs); start += mergeBatchSize {
		end := start + mergeBatchSize
		if end > len(inputs) {
			end = len(inputs)
		}

		batchPath := filepath.Join(tempDir, fmt.Sprintf("batch-%03d.wav", len(intermediates)))
		if err := g.mergeOnce(ctx, toolPath, inputs[start:end], batchPath); err != nil {
			return "", err
		}
		intermediates = append(intermediates, batchPath)
	}

	g.logger.Infow("merging batch intermediates", "batches", len(intermediates), "inputs", len(inputs))
	if len(intermediates) == 1 {
		if err := copyFile(intermediates[0], outputPath); err != nil {
			return "", domain.ClassifyFilesystem("merge", outputPath, err)
		}
		return outputPath, nil
	}
	if err := g.mergeOnce(ctx, toolPath, intermediates, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Transcode re-encodes inputPath into outputPath using the given options.
func (g *Gateway) Transcode(ctx context.Context, inputPath, outputPath string, opts TranscodeOptions) (string, error) {
	toolPath, err := g.toolPath()
	if err != nil {
		return "", err
	}

	if opts.Bitrate == "" {
		opts.Bitrate = DefaultTranscodeOptions().Bitrate
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultTranscodeOptions().SampleRate
	}

	args := buildTranscodeArgs(inputPath, outputPath, opts)
	g.logger.Infow("transcoding audio", "input", inputPath, "output", outputPath, "bitrate", opts.Bitrate)
	result, runErr := g.runner.Run(ctx, nil, toolPath, args...)
	if runErr != nil {
		return "", externalError("transcode", toolPath, result, runErr)
	}
	return outputPath, nil
}

// mergeOnce performs a single concat-demuxer invocation over inputs.
func (g *Gateway) mergeOnce(ctx context.Context, toolPath string, inputs []string, outputPath string) error {
	listFile, err := g.writeConcatList(filepath.Dir(outputPath), inputs)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(listFile)
	}()

	args := buildMergeArgs(listFile, outputPath)
	result, runErr := g.runner.Run(ctx, nil, toolPath, args...)
	if runErr != nil {
		return externalError("merge", toolPath, result, runErr)
	}
	return nil
}

// toolPath reads the latest capability snapshot before a transcode. Merging
// does not go through this gate; it degrades to native WAV concat instead.
func (g *Gateway) toolPath() (string, error) {
	status := g.tool.Status()
	if !status.Available || status.Path == "" {
		return "", domain.NewError(domain.ErrCapability, "audio",
			"audio processing tool (ffmpeg) is not available", nil).WithSteps(
			"Install ffmpeg and make sure it is on the system PATH.",
			"Use the WAV output format, which does not require ffmpeg.",
			"Retry detection after installing the tool.",
		)
	}
	return status.Path, nil
}

// writeConcatList writes an ffmpeg concat-demuxer list file next to output.
func (g *Gateway) writeConcatList(dir string, inputs []string) (string, error) {
	file, err := g.createT(dir, ".concat-*.txt")
	if err != nil {
		return "", domain.ClassifyFilesystem("merge", dir, err)
	}

	var b strings.Builder
	for _, input := range inputs {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(input, "'", `'\''`))
		b.WriteString("'\n")
	}

	if _, err := io.WriteString(file, b.String()); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())
		return "", domain.ClassifyFilesystem("merge", file.Name(), err)
	}
	if err := file.Close(); err != nil {
		return "", domain.ClassifyFilesystem("merge", file.Name(), err)
	}
	return file.Name(), nil
}

// buildMergeArgs builds stream-copy concat args for ordered WAV inputs.
func buildMergeArgs(listFile, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outputPath,
	}
}

// buildTranscodeArgs builds MP3 encode args for one input file.
func buildTranscodeArgs(inputPath, outputPath string, opts TranscodeOptions) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-b:a", opts.Bitrate,
		"-codec:a", "libmp3lame",
		outputPath,
	}
}

// externalError wraps a failed tool invocation with its captured output.
func externalError(op, tool string, result run.Result, err error) *domain.ConvertError {
	message := fmt.Sprintf("%s failed (exit=%d)", tool, result.ExitCode)
	if trimmed := strings.TrimSpace(result.Stderr); trimmed != "" {
		message = fmt.Sprintf("%s: %s", message, lastLine(trimmed))
	}
	return domain.NewError(domain.ErrExternal, op, message, err).WithSteps(
		"Check that the installed ffmpeg build supports WAV concat and MP3 encoding.",
		"Retry the conversion; transient tool failures are retried automatically.",
	)
}

// lastLine returns the final non-empty stderr line for compact messages.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return s
}

// copyFile copies src to dst, creating the parent directory when missing.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
