package domain

// JobStatus tracks each pipeline stage for a single conversion job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusSplitting    JobStatus = "splitting"
	JobStatusSynthesizing JobStatus = "synthesizing"
	JobStatusMerging      JobStatus = "merging"
	JobStatusTranscoding  JobStatus = "transcoding"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Output container formats supported for the final artifact.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// Speed and chunk-length bounds enforced at the gateway boundary.
const (
	MinSpeed       = 0.5
	MaxSpeed       = 2.0
	MinChunkLength = 1000
	MaxChunkLength = 10000
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	VoiceID        string  `json:"voiceId"`
	OutputFormat   string  `json:"outputFormat"`
	OutputDir      string  `json:"outputDir"`
	Speed          float64 `json:"speed"`
	MaxChunkLength int     `json:"maxChunkLength"`
}

// Job stores the current job identity, lifecycle status, and progress.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
}

// Voice is one installed synthesis voice reported by the speech backend.
type Voice struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
	Locale      string `json:"locale"`
	IsDefault   bool   `json:"isDefault"`
}

// VoiceLoadState describes the registry's current load/retry cycle.
type VoiceLoadState struct {
	Loading     bool   `json:"loading"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	LastError   string `json:"lastError,omitempty"`
}

// CapabilitySource identifies where the transcode tool was found.
type CapabilitySource string

const (
	CapabilitySourceBundled CapabilitySource = "bundled"
	CapabilitySourceSystem  CapabilitySource = "system"
	CapabilitySourceNone    CapabilitySource = "none"
)

// CapabilityStatus is the latest probe snapshot for the transcode tool.
type CapabilityStatus struct {
	Available bool             `json:"available"`
	Source    CapabilitySource `json:"source"`
	Path      string           `json:"path,omitempty"`
	Version   string           `json:"version,omitempty"`
	Validated bool             `json:"validated"`
	Error     string           `json:"error,omitempty"`
}
