package types

// ------------------------
// Sensor kinds
// ------------------------

// Kind names one sensor subsystem. Each kind has exactly one supervisor.
type Kind string

const (
	KindEEG      Kind = "eeg" // ADS1299 analog front-end
	KindIMU      Kind = "imu"
	KindLight    Kind = "light"
	KindHaptic   Kind = "haptic"
	KindMic      Kind = "mic"
	KindRecorder Kind = "recorder"
)

// ------------------------
// Data frames
// ------------------------

// Frame is one acquisition result published on "sensor/<kind>/frames".
type Frame struct {
	Kind    Kind   `json:"kind"`
	Seq     uint32 `json:"seq"`
	TsMs    int64  `json:"ts_ms"`
	Payload any    `json:"payload"` // kind-specific sample batch
}

// ------------------------
// Stream status (retained)
// ------------------------

type StreamStatus struct {
	Streaming bool   `json:"streaming"`
	TsMs      int64  `json:"ts_ms"`
	Error     string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
