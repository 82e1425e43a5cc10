package jobs

import (
	"testing"

	"github.com/akosiraffytot/speechmaker-sub000/internal/domain"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Status: domain.JobStatusSplitting})
	bus.Publish(Event{Type: EventTypeProgress, Progress: 20})
	bus.Publish(Event{Type: EventTypeStatus, Status: domain.JobStatusSynthesizing})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
	if events[0].Progress != 20 {
		t.Fatalf("progress = %d, want 20", events[0].Progress)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusResultPayload verifies artifact fields survive publishing.
func TestEventBusResultPayload(t *testing.T) {
	bus := NewEventBus(10)
	published := bus.Publish(Event{
		Type:         EventTypeResult,
		JobID:        "job-9",
		OutputPath:   "/tmp/speech.wav",
		Format:       domain.FormatWAV,
		WavPreserved: true,
	})
	if published.Seq != 1 || published.Timestamp.IsZero() {
		t.Fatalf("publish did not assign seq/timestamp: %+v", published)
	}

	events := bus.Since(0)
	if len(events) != 1 {
		t.Fatalf("len = %d, want 1", len(events))
	}
	if events[0].OutputPath != "/tmp/speech.wav" || !events[0].WavPreserved {
		t.Fatalf("unexpected payload: %+v", events[0])
	}
}
