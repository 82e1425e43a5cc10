package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/run"
	"github.com/akosiraffytot/speechmaker-sub000/internal/text"
)

// VoiceSnapshot checks voice ids against the registry's current collection.
type VoiceSnapshot interface {
	Has(id string) bool
}

// Catalog discovers installed voices from the platform speech engine.
// It is the low-level source consumed by the voice registry.
type Catalog struct {
	runner   run.Runner
	goos     string
	lookPath func(string) (string, error)
}

// NewCatalog constructs the production catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		runner:   run.NewExecRunner(),
		goos:     goruntime.GOOS,
		lookPath: exec.LookPath,
	}
}

// NewCatalogForTests constructs a catalog with injectable dependencies.
func NewCatalogForTests(runner run.Runner, goos string, lookPath func(string) (string, error)) *Catalog {
	return &Catalog{runner: runner, goos: goos, lookPath: lookPath}
}

// ListVoices queries the speech engine and maps its output to voices.
func (c *Catalog) ListVoices(ctx context.Context) ([]domain.Voice, error) {
	cmd := voicesCommand(c.goos)
	name, err := c.resolveTool(cmd.name)
	if err != nil {
		return nil, err
	}

	result, runErr := c.runner.Run(ctx, nil, name, cmd.args...)
	if runErr != nil {
		return nil, domain.NewError(domain.ErrExternal, "voices",
			fmt.Sprintf("voice discovery failed (exit=%d)", result.ExitCode), runErr)
	}

	voices, err := parseVoices(c.goos, result.Stdout)
	if err != nil {
		return nil, domain.NewError(domain.ErrExternal, "voices", "voice discovery returned malformed output", err)
	}
	return voices, nil
}

// resolveTool locates the speech binary, trying the platform fallback name
// before giving up.
func (c *Catalog) resolveTool(name string) (string, error) {
	if path, err := c.lookPath(name); err == nil {
		return path, nil
	}
	if fallback := fallbackTool(c.goos); fallback != "" {
		if path, err := c.lookPath(fallback); err == nil {
			return path, nil
		}
	}
	return "", domain.NewError(domain.ErrCapability, "voices",
		fmt.Sprintf("speech engine not found: %s", name), nil).WithSteps(
		"Verify the platform speech subsystem is installed and enabled.",
		"Install the speech engine ("+name+") and ensure it is on PATH.",
	)
}

// Gateway renders one text segment to a WAV file.
type Gateway struct {
	catalog *Catalog
	voices  VoiceSnapshot
	logger  *zap.SugaredLogger

	mkdirAll func(string, os.FileMode) error
	stat     func(string) (os.FileInfo, error)
}

// NewGateway constructs the production synthesis gateway.
func NewGateway(catalog *Catalog, voices VoiceSnapshot, logger *zap.SugaredLogger) *Gateway {
	return &Gateway{
		catalog:  catalog,
		voices:   voices,
		logger:   logger,
		mkdirAll: os.MkdirAll,
		stat:     os.Stat,
	}
}

// NewGatewayForTests constructs a gateway with injectable dependencies.
func NewGatewayForTests(catalog *Catalog, voices VoiceSnapshot, logger *zap.SugaredLogger,
	mkdirAll func(string, os.FileMode) error, stat func(string) (os.FileInfo, error)) *Gateway {
	return &Gateway{catalog: catalog, voices: voices, logger: logger, mkdirAll: mkdirAll, stat: stat}
}

// Synthesize validates parameters, invokes the speech engine, and returns
// the rendered audio-unit path.
func (g *Gateway) Synthesize(ctx context.Context, segment text.Segment, voiceID string, speed float64, outputPath string) (string, error) {
	if strings.TrimSpace(segment.Content) == "" {
		return "", domain.NewError(domain.ErrInput, "synthesize",
			fmt.Sprintf("segment %d has no content", segment.Index), nil)
	}
	if speed < domain.MinSpeed || speed > domain.MaxSpeed {
		return "", domain.NewError(domain.ErrInput, "synthesize",
			fmt.Sprintf("speed %.2f is outside [%.1f, %.1f]", speed, domain.MinSpeed, domain.MaxSpeed), nil)
	}
	if voiceID == "" || (g.voices != nil && !g.voices.Has(voiceID)) {
		return "", domain.NewError(domain.ErrInput, "synthesize",
			fmt.Sprintf("unknown voice: %q", voiceID), nil).WithSteps(
			"Reload the voice list and pick an installed voice.",
		)
	}
	if err := g.mkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", domain.ClassifyFilesystem("synthesize", filepath.Dir(outputPath), err)
	}

	cmd := synthesisCommand(g.catalog.goos, voiceID, speed, segment.Content, outputPath)
	name, err := g.catalog.resolveTool(cmd.name)
	if err != nil {
		return "", err
	}

	g.logger.Debugw("synthesizing segment", "segment", segment.Index, "voice", voiceID, "chars", len(segment.Content))
	result, runErr := g.catalog.runner.Run(ctx, strings.NewReader(cmd.stdin), name, cmd.args...)
	if runErr != nil {
		message := fmt.Sprintf("speech synthesis failed for segment %d (exit=%d)", segment.Index, result.ExitCode)
		if trimmed := strings.TrimSpace(result.Stderr); trimmed != "" {
			message = fmt.Sprintf("%s: %s", message, firstLine(trimmed))
		}
		return "", domain.NewError(domain.ErrExternal, "synthesize", message, runErr).WithSteps(
			"Verify the selected voice still exists in the platform speech settings.",
			"Retry the conversion; transient engine failures are retried automatically.",
		)
	}

	if _, err := g.stat(outputPath); err != nil {
		return "", domain.NewError(domain.ErrExternal, "synthesize",
			fmt.Sprintf("speech engine completed but produced no audio for segment %d", segment.Index), err)
	}
	return outputPath, nil
}

// firstLine returns the first non-empty line of captured stderr.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return s
}
