// Package bootstrap wires settings, voices, capability detection, the
// conversion pipeline, and the Wails UI runtime into one application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/audio"
	"github.com/akosiraffytot/speechmaker-sub000/internal/capability"
	"github.com/akosiraffytot/speechmaker-sub000/internal/config"
	"github.com/akosiraffytot/speechmaker-sub000/internal/convert"
	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/jobs"
	"github.com/akosiraffytot/speechmaker-sub000/internal/preview"
	"github.com/akosiraffytot/speechmaker-sub000/internal/synth"
	"github.com/akosiraffytot/speechmaker-sub000/internal/text"
	"github.com/akosiraffytot/speechmaker-sub000/internal/voices"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// previewSampleText is the phrase synthesized for voice previews.
const previewSampleText = "This is a preview of the selected voice."

// App wires configuration, voices, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings domain.Settings
	Store    config.Store
	Jobs     *jobs.Manager

	logger   *zap.SugaredLogger
	registry *voices.Registry
	detector *capability.Detector
	pipeline conversionRunner
	sampler  sampleSynthesizer
	player   samplePlayer
	assets   fs.FS
	events   *jobs.EventBus

	mu          sync.Mutex
	activeJobID string
	cancel      context.CancelFunc
	runtimeCtx  context.Context
}

// conversionRunner isolates the conversion pipeline behind an interface.
type conversionRunner interface {
	RunWithRetry(ctx context.Context, req convert.Request) (convert.Result, error)
}

// sampleSynthesizer renders the short preview phrase.
type sampleSynthesizer interface {
	Synthesize(ctx context.Context, segment text.Segment, voiceID string, speed float64, outputPath string) (string, error)
}

// samplePlayer plays one synthesized sample file.
type samplePlayer interface {
	PlayFile(ctx context.Context, path string) error
}

// New builds the application with persisted settings and background probes.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	zlog, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := zlog.Sugar()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewViperStore(filepath.Join(homeDir, ".speechmaker", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	app := &App{
		Settings: settings,
		Store:    store,
		Jobs:     jobs.NewManager(),
		logger:   logger,
		assets:   assets,
		events:   jobs.NewEventBus(1000),
	}

	catalog := synth.NewCatalog()
	app.registry = voices.NewRegistry(catalog, logger, app.publishVoiceNotification)
	app.detector = capability.NewDetector(logger)

	synthGateway := synth.NewGateway(catalog, app.registry, logger)
	audioGateway := audio.NewGateway(app.detector, logger)
	app.pipeline = convert.NewPipeline(synthGateway, audioGateway, logger)
	app.sampler = synthGateway
	app.player = preview.NewPlayer(logger)

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "SpeechMaker",
		Width:       1080,
		Height:      760,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the Wails runtime context and launches the background
// voice load and tool probe.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	go a.registry.LoadWithRetry(context.Background(), 0)
	go a.detector.ProbeWithRetry(context.Background(), 3)
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()

	return normalized, nil
}

// GetVoices returns the cached voice collection, loading it when needed.
func (a *App) GetVoices() ([]domain.Voice, error) {
	return a.registry.Voices(context.Background())
}

// ReloadVoices forces a fresh discovery cycle and returns the result.
func (a *App) ReloadVoices() ([]domain.Voice, error) {
	result := a.registry.LoadWithRetry(context.Background(), 0)
	if !result.Success {
		return nil, result.Err
	}
	return result.Voices, nil
}

// GetVoiceLoadState reports the registry's current load/retry cycle.
func (a *App) GetVoiceLoadState() domain.VoiceLoadState {
	return a.registry.State()
}

// GetCapability returns the latest transcode-tool probe snapshot.
func (a *App) GetCapability() domain.CapabilityStatus {
	return a.detector.Status()
}

// RefreshCapability reruns the tool probe and returns the new snapshot.
func (a *App) RefreshCapability() domain.CapabilityStatus {
	return a.detector.Probe(context.Background())
}

// PreviewVoice synthesizes a short sample with the given voice and plays it.
func (a *App) PreviewVoice(voiceID string, speed float64) error {
	ctx := context.Background()
	samplePath := filepath.Join(os.TempDir(), fmt.Sprintf("speechmaker-preview-%s.wav", uuid.NewString()))
	defer os.Remove(samplePath)

	segment := text.Segment{Content: previewSampleText}
	if _, err := a.sampler.Synthesize(ctx, segment, voiceID, speed, samplePath); err != nil {
		return err
	}
	return a.player.PlayFile(ctx, samplePath)
}

// PickOutputDirectory opens a native directory picker for audio exports.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in the
// platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartConversion creates a job for the given text and runs it asynchronously.
func (a *App) StartConversion(inputText string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	jobID := uuid.NewString()
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusSplitting, "Job started")

	go a.runConversionJob(ctx, jobID, inputText, settings)
	return a.Jobs.Current(), nil
}

// CancelConversion cancels the currently running job, if any.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	// Acknowledge without a terminal status; the job goroutine publishes
	// the single cancelled status event once the pipeline has settled.
	if activeJobID != "" {
		a.publishEvent(jobs.Event{
			JobID:   activeJobID,
			Type:    jobs.EventTypeStatus,
			Message: "Cancellation requested",
		})
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runConversionJob executes the pipeline and maps outcomes to job events.
func (a *App) runConversionJob(ctx context.Context, jobID, inputText string, settings domain.Settings) {
	req := convert.Request{
		JobID:          jobID,
		Text:           inputText,
		VoiceID:        settings.VoiceID,
		Speed:          settings.Speed,
		OutputFormat:   settings.OutputFormat,
		OutputPath:     outputFilePath(settings),
		MaxChunkLength: settings.MaxChunkLength,
		OnStage: func(status domain.JobStatus) {
			if err := a.Jobs.Transition(status); err == nil {
				a.publishStatus(jobID, status, "Running "+string(status)+" stage")
			}
		},
		OnProgress: func(progress int) {
			a.Jobs.SetProgress(progress)
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeProgress,
				Progress: progress,
			})
		},
	}

	result, err := a.pipeline.RunWithRetry(ctx, req)
	if err != nil && result.WavPreserved {
		a.logger.Warnw("conversion finished with wav fallback", "jobId", jobID, "path", result.OutputPath)
		// The merged WAV survived a failed MP3 re-encode; report success
		// with the fallback artifact and surface the warning.
		a.publishConvertError(jobID, err)
		if terr := a.Jobs.Transition(domain.JobStatusDone); terr == nil {
			a.publishStatus(jobID, domain.JobStatusDone, "Job completed with WAV fallback")
		}
		a.publishResult(jobID, result, domain.FormatWAV)
		a.clearActiveJob(jobID)
		return
	}
	if err != nil {
		if domain.KindOf(err) == domain.ErrCancelled || errors.Is(err, context.Canceled) {
			_ = a.Jobs.Transition(domain.JobStatusCancelled)
			a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
			a.clearActiveJob(jobID)
			return
		}

		a.logger.Errorw("conversion failed", "jobId", jobID, "kind", domain.KindOf(err), "error", err)
		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
		a.publishConvertError(jobID, err)
		a.clearActiveJob(jobID)
		return
	}

	a.logger.Infow("conversion finished", "jobId", jobID, "path", result.OutputPath, "segments", result.SegmentCount)
	if terr := a.Jobs.Transition(domain.JobStatusDone); terr == nil {
		a.Jobs.SetProgress(100)
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}
	a.publishResult(jobID, result, settings.OutputFormat)
	a.clearActiveJob(jobID)
}

// publishResult sends the final artifact event.
func (a *App) publishResult(jobID string, result convert.Result, format string) {
	a.publishEvent(jobs.Event{
		JobID:        jobID,
		Type:         jobs.EventTypeResult,
		Status:       domain.JobStatusDone,
		Message:      "Audio exported",
		OutputPath:   result.OutputPath,
		Format:       format,
		WavPreserved: result.WavPreserved,
	})
}

// publishConvertError sends a kind-tagged error event with guidance.
func (a *App) publishConvertError(jobID string, err error) {
	event := jobs.Event{
		JobID:     jobID,
		Type:      jobs.EventTypeError,
		Message:   err.Error(),
		ErrorKind: string(domain.KindOf(err)),
	}
	var cerr *domain.ConvertError
	if errors.As(err, &cerr) {
		event.Troubleshooting = cerr.Troubleshooting
	}
	a.publishEvent(event)
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// publishVoiceNotification forwards registry lifecycle events to the UI.
func (a *App) publishVoiceNotification(n voices.Notification) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "voices:event", n)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// outputFilePath builds a timestamped artifact path in the output dir.
func outputFilePath(settings domain.Settings) string {
	name := fmt.Sprintf("speech-%s.%s", time.Now().Format("20060102-150405"), settings.OutputFormat)
	return filepath.Join(settings.OutputDir, name)
}

// openInFileManager launches the platform file explorer for the given path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
