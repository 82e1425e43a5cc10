package voices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
	"github.com/akosiraffytot/speechmaker-sub000/internal/retry"
)

// fakeDiscoverer scripts per-attempt discovery outcomes.
type fakeDiscoverer struct {
	mu      sync.Mutex
	calls   int
	outcome func(call int) ([]domain.Voice, error)
}

// ListVoices replays the scripted outcome for the current call number.
func (f *fakeDiscoverer) ListVoices(ctx context.Context) ([]domain.Voice, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.outcome(call)
}

func testVoices() []domain.Voice {
	return []domain.Voice{
		{ID: "voiceA", DisplayName: "Voice A", Locale: "en-US", IsDefault: true},
		{ID: "voiceB", DisplayName: "Voice B", Locale: "en-GB"},
	}
}

// recordedSleepPolicy returns a policy that records waits without sleeping.
func recordedSleepPolicy(maxAttempts int, waits *[]time.Duration) retry.Policy {
	return retry.NewPolicyForTests(maxAttempts, time.Second, func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

// TestLoadWithRetryBackoffTiming checks waits of 2s then 4s and attempt 3
// when discovery fails twice before succeeding.
func TestLoadWithRetryBackoffTiming(t *testing.T) {
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		if call < 3 {
			return nil, errors.New("speech engine busy")
		}
		return testVoices(), nil
	}}

	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), nil, recordedSleepPolicy(3, &waits))

	result := registry.LoadWithRetry(context.Background(), 3)
	if !result.Success {
		t.Fatalf("LoadWithRetry failed: %v", result.Err)
	}
	if result.Attempt != 3 {
		t.Fatalf("attempt = %d, want 3", result.Attempt)
	}
	if len(result.Voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(result.Voices))
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d = %v, want %v", i, waits[i], want[i])
		}
	}
}

// TestLoadWithRetryZeroVoicesIsFailure checks the empty-set retry rule.
func TestLoadWithRetryZeroVoicesIsFailure(t *testing.T) {
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		return nil, nil
	}}

	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), nil, recordedSleepPolicy(3, &waits))

	result := registry.LoadWithRetry(context.Background(), 3)
	if result.Success {
		t.Fatal("expected failure for zero voices")
	}
	if discoverer.calls != 3 {
		t.Fatalf("discovery calls = %d, want 3", discoverer.calls)
	}
	if !errors.Is(result.Err, errNoVoices) {
		t.Fatalf("error = %v, want errNoVoices", result.Err)
	}
	if len(result.Troubleshooting) == 0 {
		t.Fatal("expected troubleshooting steps after exhausting attempts")
	}
}

// TestLoadWithRetryLifecycleNotifications checks observer event ordering.
func TestLoadWithRetryLifecycleNotifications(t *testing.T) {
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		if call == 1 {
			return nil, errors.New("transient")
		}
		return testVoices(), nil
	}}

	var phases []Phase
	observer := func(n Notification) { phases = append(phases, n.Phase) }
	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), observer, recordedSleepPolicy(3, &waits))

	result := registry.LoadWithRetry(context.Background(), 3)
	if !result.Success {
		t.Fatalf("LoadWithRetry failed: %v", result.Err)
	}

	want := []Phase{PhaseStarted, PhaseAttempt, PhaseRetryScheduled, PhaseAttempt, PhaseSuccess}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phase %d = %s, want %s", i, phases[i], want[i])
		}
	}
}

// TestVoicesLazilyTriggersLoad checks the lazy load path and caching.
func TestVoicesLazilyTriggersLoad(t *testing.T) {
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		return testVoices(), nil
	}}
	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), nil, recordedSleepPolicy(3, &waits))

	got, err := registry.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("voices = %d, want 2", len(got))
	}
	if discoverer.calls != 1 {
		t.Fatalf("discovery calls = %d, want 1", discoverer.calls)
	}

	// Second read uses the cache.
	if _, err := registry.Voices(context.Background()); err != nil {
		t.Fatalf("Voices() cached error = %v", err)
	}
	if discoverer.calls != 1 {
		t.Fatalf("discovery calls after cache hit = %d, want 1", discoverer.calls)
	}

	if !registry.Has("voiceA") || registry.Has("nope") {
		t.Fatal("Has() does not match the loaded snapshot")
	}
}

// TestLoadWithRetryCoalescesOverlappingLoads checks single-flight gating.
func TestLoadWithRetryCoalescesOverlappingLoads(t *testing.T) {
	release := make(chan struct{})
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		<-release
		return testVoices(), nil
	}}
	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), nil, recordedSleepPolicy(3, &waits))

	results := make(chan LoadResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- registry.LoadWithRetry(context.Background(), 3)
		}()
	}

	// Let both goroutines reach the registry before releasing discovery.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		result := <-results
		if !result.Success {
			t.Fatalf("result %d failed: %v", i, result.Err)
		}
	}
	if discoverer.calls != 1 {
		t.Fatalf("discovery calls = %d, want 1 for coalesced loads", discoverer.calls)
	}
}

// TestStateTracksLoadCycle checks the externally visible load state.
func TestStateTracksLoadCycle(t *testing.T) {
	discoverer := &fakeDiscoverer{outcome: func(call int) ([]domain.Voice, error) {
		return nil, errors.New("down")
	}}
	var waits []time.Duration
	registry := NewRegistryForTests(discoverer, zap.NewNop().Sugar(), nil, recordedSleepPolicy(2, &waits))

	result := registry.LoadWithRetry(context.Background(), 2)
	if result.Success {
		t.Fatal("expected failure")
	}

	state := registry.State()
	if state.Loading {
		t.Fatal("state still loading after terminal failure")
	}
	if state.Attempt != 2 || state.MaxAttempts != 2 {
		t.Fatalf("state = %+v, want attempt 2/2", state)
	}
	if state.LastError == "" {
		t.Fatal("state missing last error")
	}
}
