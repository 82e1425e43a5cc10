// Package capability probes the external audio-processing tool and caches
// the latest availability snapshot for the pipeline.
package capability

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/retry"
	"github.com/akosiraffytot/speechmaker-sub000/internal/run"
)

// toolName is the audio-processing binary this detector probes.
const toolName = "ffmpeg"

// versionPattern extracts the version token from `ffmpeg -version` output.
var versionPattern = regexp.MustCompile(`ffmpeg version (\S+)`)

// strategy is one ordered probe source. Locate returns candidate binary
// paths; each candidate is validated with a version query before acceptance.
type strategy struct {
	source domain.CapabilitySource
	locate func() []string
}

// Detector evaluates probe strategies in order and keeps the last snapshot.
type Detector struct {
	runner  run.Runner
	logger  *zap.SugaredLogger
	goos    string
	exePath func() (string, error)

	mu     sync.RWMutex
	status domain.CapabilityStatus
}

// NewDetector constructs the production detector.
func NewDetector(logger *zap.SugaredLogger) *Detector {
	return &Detector{
		runner:  run.NewExecRunner(),
		logger:  logger,
		goos:    goruntime.GOOS,
		exePath: os.Executable,
		status:  domain.CapabilityStatus{Source: domain.CapabilitySourceNone},
	}
}

// NewDetectorForTests constructs a detector with injectable dependencies.
func NewDetectorForTests(runner run.Runner, logger *zap.SugaredLogger, goos string, exePath func() (string, error)) *Detector {
	return &Detector{
		runner:  runner,
		logger:  logger,
		goos:    goos,
		exePath: exePath,
		status:  domain.CapabilityStatus{Source: domain.CapabilitySourceNone},
	}
}

// Status returns the latest probe snapshot without spawning processes.
func (d *Detector) Status() domain.CapabilityStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Probe evaluates bundled-then-system strategies and stores the snapshot.
// Safe to call repeatedly; it has no side effects beyond process spawning.
func (d *Detector) Probe(ctx context.Context) domain.CapabilityStatus {
	var failures []string
	for _, s := range d.strategies() {
		for _, candidate := range s.locate() {
			version, err := d.validate(ctx, candidate)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s (%s): %v", candidate, s.source, err))
				continue
			}

			status := domain.CapabilityStatus{
				Available: true,
				Source:    s.source,
				Path:      candidate,
				Version:   version,
				Validated: true,
			}
			d.logger.Infow("audio tool detected", "source", s.source, "path", candidate, "version", version)
			return d.store(status)
		}
	}

	reason := fmt.Sprintf("%s was not found bundled with the application or on the system", toolName)
	if len(failures) > 0 {
		reason = fmt.Sprintf("%s; tried: %s", reason, strings.Join(failures, "; "))
	}
	d.logger.Warnw("audio tool unavailable", "reason", reason)
	return d.store(domain.CapabilityStatus{
		Available: false,
		Source:    domain.CapabilitySourceNone,
		Error:     reason,
	})
}

// ProbeWithRetry reruns the probe with exponential backoff until the tool is
// found or attempts are exhausted, returning the final snapshot.
func (d *Detector) ProbeWithRetry(ctx context.Context, maxAttempts int) domain.CapabilityStatus {
	policy := retry.NewPolicy(maxAttempts, time.Second)
	_ = policy.Do(ctx, func(attempt int) error {
		status := d.Probe(ctx)
		if !status.Available {
			return fmt.Errorf("probe attempt %d: %s", attempt, status.Error)
		}
		return nil
	}, nil, func(attempt int, wait time.Duration, err error) {
		d.logger.Infow("audio tool probe retry scheduled", "attempt", attempt, "wait", wait)
	})
	return d.Status()
}

// strategies returns the ordered probe sources: bundled binary first, then
// system lookup, then invoking the bare name through the search path.
func (d *Detector) strategies() []strategy {
	return []strategy{
		{source: domain.CapabilitySourceBundled, locate: d.bundledCandidates},
		{source: domain.CapabilitySourceSystem, locate: d.systemCandidates},
	}
}

// bundledCandidates lists platform-specific bundled binary locations
// relative to the running executable.
func (d *Detector) bundledCandidates() []string {
	exe, err := d.exePath()
	if err != nil {
		return nil
	}
	exeDir := filepath.Dir(exe)

	binary := toolName
	if d.goos == "windows" {
		binary += ".exe"
	}

	candidates := []string{
		filepath.Join(exeDir, "resources", "bin", binary),
		filepath.Join(exeDir, "bin", binary),
	}
	if d.goos == "darwin" {
		candidates = append(candidates, filepath.Join(exeDir, "..", "Resources", "bin", binary))
	}

	var existing []string
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			existing = append(existing, candidate)
		}
	}
	return existing
}

// systemCandidates resolves the tool via PATH lookup, falling back to the
// bare name so shells with unusual resolution still work.
func (d *Detector) systemCandidates() []string {
	if path, err := exec.LookPath(toolName); err == nil {
		return []string{path}
	}
	return []string{toolName}
}

// validate runs a version query and parses the reported version string.
func (d *Detector) validate(ctx context.Context, path string) (string, error) {
	result, err := d.runner.Run(ctx, nil, path, "-version")
	if err != nil {
		return "", fmt.Errorf("version query failed: %w", err)
	}

	match := versionPattern.FindStringSubmatch(result.Stdout)
	if match == nil {
		return "", fmt.Errorf("unrecognized version output")
	}
	return match[1], nil
}

// store saves and returns the snapshot under the detector lock.
func (d *Detector) store(status domain.CapabilityStatus) domain.CapabilityStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
	return status
}
