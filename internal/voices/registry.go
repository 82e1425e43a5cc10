// Package voices loads and caches the installed synthesis voices with
// retrying discovery and lifecycle notifications.
package voices

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/retry"
)

// Discoverer queries the speech engine for its installed voices.
type Discoverer interface {
	ListVoices(ctx context.Context) ([]domain.Voice, error)
}

// Phase identifies one lifecycle notification during a load cycle.
type Phase string

const (
	PhaseStarted        Phase = "started"
	PhaseAttempt        Phase = "attempt"
	PhaseRetryScheduled Phase = "retryScheduled"
	PhaseSuccess        Phase = "success"
	PhaseFailed         Phase = "failed"
)

// Notification is one lifecycle event pushed to the observer so a caller
// can drive UI without polling.
type Notification struct {
	Phase       Phase         `json:"phase"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"maxAttempts"`
	Wait        time.Duration `json:"wait,omitempty"`
	VoiceCount  int           `json:"voiceCount,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// LoadResult is the outcome of one load/retry cycle.
type LoadResult struct {
	Success         bool
	Voices          []domain.Voice
	Attempt         int
	Err             error
	Troubleshooting []string
}

// errNoVoices marks a discovery that succeeded but returned nothing; it is
// treated as a failure for retry purposes.
var errNoVoices = errors.New("speech engine reported zero voices")

// troubleshootingSteps is the fixed guidance returned after exhausting all
// discovery attempts.
var troubleshootingSteps = []string{
	"Verify the platform speech subsystem is enabled and at least one voice is installed.",
	"Windows: check Settings > Time & Language > Speech. macOS: check Spoken Content voices. Linux: install espeak-ng.",
	"Check network connectivity if your voices are provided by an online service.",
	"Restart the application after installing new voices, then retry loading.",
}

// Registry is the process-wide voice collection. The set is replaced
// wholesale on each successful load, never merged incrementally.
type Registry struct {
	discoverer Discoverer
	logger     *zap.SugaredLogger
	policy     retry.Policy
	observer   func(Notification)

	mu       sync.Mutex
	voices   []domain.Voice
	state    domain.VoiceLoadState
	loaded   bool
	inflight chan struct{}
	last     LoadResult
}

// NewRegistry constructs a registry with the default 3-attempt policy.
func NewRegistry(discoverer Discoverer, logger *zap.SugaredLogger, observer func(Notification)) *Registry {
	return NewRegistryForTests(discoverer, logger, observer, retry.NewPolicy(retry.DefaultMaxAttempts, time.Second))
}

// NewRegistryForTests constructs a registry with an injectable retry policy.
func NewRegistryForTests(discoverer Discoverer, logger *zap.SugaredLogger, observer func(Notification), policy retry.Policy) *Registry {
	return &Registry{
		discoverer: discoverer,
		logger:     logger,
		policy:     policy,
		observer:   observer,
	}
}

// LoadWithRetry discovers voices with exponential backoff between failed
// attempts. Overlapping calls coalesce: a load already in flight is awaited
// rather than started again.
func (r *Registry) LoadWithRetry(ctx context.Context, maxAttempts int) LoadResult {
	if maxAttempts <= 0 {
		maxAttempts = r.policy.MaxAttempts
	}

	r.mu.Lock()
	if r.inflight != nil {
		wait := r.inflight
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return LoadResult{Err: ctx.Err()}
		}
		r.mu.Lock()
		result := r.last
		r.mu.Unlock()
		return result
	}

	done := make(chan struct{})
	r.inflight = done
	r.state = domain.VoiceLoadState{Loading: true, MaxAttempts: maxAttempts}
	r.mu.Unlock()

	result := r.doLoad(ctx, maxAttempts)

	r.mu.Lock()
	if result.Success {
		r.voices = result.Voices
		r.loaded = true
		r.state = domain.VoiceLoadState{Attempt: result.Attempt, MaxAttempts: maxAttempts}
	} else {
		r.state = domain.VoiceLoadState{Attempt: result.Attempt, MaxAttempts: maxAttempts, LastError: errText(result.Err)}
	}
	r.last = result
	r.inflight = nil
	r.mu.Unlock()
	close(done)

	return result
}

// doLoad runs the discovery attempts and emits lifecycle notifications.
func (r *Registry) doLoad(ctx context.Context, maxAttempts int) LoadResult {
	policy := r.policy
	policy.MaxAttempts = maxAttempts
	r.notify(Notification{Phase: PhaseStarted, MaxAttempts: maxAttempts})

	var voices []domain.Voice
	attempts := 0
	err := policy.Do(ctx, func(attempt int) error {
		attempts = attempt
		r.setAttempt(attempt)
		r.notify(Notification{Phase: PhaseAttempt, Attempt: attempt, MaxAttempts: maxAttempts})

		found, discoverErr := r.discoverer.ListVoices(ctx)
		if discoverErr != nil {
			return discoverErr
		}
		if len(found) == 0 {
			return errNoVoices
		}
		voices = found
		return nil
	}, nil, func(attempt int, wait time.Duration, attemptErr error) {
		r.logger.Warnw("voice discovery failed, retrying", "attempt", attempt, "wait", wait, "error", attemptErr)
		r.notify(Notification{
			Phase:       PhaseRetryScheduled,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Wait:        wait,
			Error:       errText(attemptErr),
		})
	})

	if err != nil {
		r.logger.Errorw("voice discovery exhausted all attempts", "attempts", attempts, "error", err)
		r.notify(Notification{Phase: PhaseFailed, Attempt: attempts, MaxAttempts: maxAttempts, Error: errText(err)})
		return LoadResult{Attempt: attempts, Err: err, Troubleshooting: troubleshootingSteps}
	}

	r.logger.Infow("voices loaded", "count", len(voices), "attempt", attempts)
	r.notify(Notification{Phase: PhaseSuccess, Attempt: attempts, MaxAttempts: maxAttempts, VoiceCount: len(voices)})
	return LoadResult{Success: true, Voices: voices, Attempt: attempts}
}

// Voices returns the cached collection, lazily triggering a load when none
// has succeeded yet.
func (r *Registry) Voices(ctx context.Context) ([]domain.Voice, error) {
	r.mu.Lock()
	if r.loaded {
		voices := snapshot(r.voices)
		r.mu.Unlock()
		return voices, nil
	}
	r.mu.Unlock()

	result := r.LoadWithRetry(ctx, 0)
	if !result.Success {
		return nil, result.Err
	}
	return snapshot(result.Voices), nil
}

// Has reports whether a voice id exists in the current snapshot.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, voice := range r.voices {
		if voice.ID == id {
			return true
		}
	}
	return false
}

// State returns the current load state for UI display.
func (r *Registry) State() domain.VoiceLoadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// setAttempt records the in-progress attempt number.
func (r *Registry) setAttempt(attempt int) {
	r.mu.Lock()
	r.state.Attempt = attempt
	r.mu.Unlock()
}

// notify forwards one lifecycle event when an observer is configured.
func (r *Registry) notify(n Notification) {
	if r.observer != nil {
		r.observer(n)
	}
}

// snapshot copies the voice slice so callers cannot mutate the cache.
func snapshot(voices []domain.Voice) []domain.Voice {
	out := make([]domain.Voice, len(voices))
	copy(out, voices)
	return out
}

// errText renders an error for notification payloads.
func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
