package domain

// MessageType identifies an outbound protocol message.
type MessageType string

const (
	MessageProgress         MessageType = "progress"
	MessageLog              MessageType = "log"
	MessageThresholdRequest MessageType = "threshold_request"
	MessageResult           MessageType = "result"
	MessageComplete         MessageType = "complete"
)

// LogLevel is the severity carried by a protocol log message.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Progress reports stage advancement. Percent is non-decreasing across a run.
type Progress struct {
	Type    MessageType `json:"type"`
	Stage   string      `json:"stage"`
	Percent int         `json:"percent"`
	Message string      `json:"message"`
}

// Log is an operator-visible log line routed over the protocol channel.
type Log struct {
	Type    MessageType `json:"type"`
	Level   LogLevel    `json:"level"`
	Message string      `json:"message"`
}

// ThresholdRequest asks the host to confirm or override the calculated
// clonal distance threshold. The run blocks until the host answers or
// closes its end of the channel.
type ThresholdRequest struct {
	Type       MessageType `json:"type"`
	Calculated float64     `json:"calculated"`
}

// Result announces an artifact, either by path, inline data, or both.
type Result struct {
	Type     MessageType    `json:"type"`
	Artifact string         `json:"artifact"`
	Path     string         `json:"path,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Complete terminates the run. Exactly one Complete is emitted per run.
type Complete struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
}

// HostMessageKind classifies inbound host messages.
type HostMessageKind string

const (
	// HostRun carries the run envelope ({"action":"run","config":{...}}).
	HostRun HostMessageKind = "run"
	// HostThresholdResponse answers a ThresholdRequest.
	HostThresholdResponse HostMessageKind = "threshold_response"
	// HostCancel requests cooperative cancellation.
	HostCancel HostMessageKind = "cancel"
	// HostUnknown marks a line that did not decode to a recognized message.
	// It is never an error: the consumer decides how to react.
	HostUnknown HostMessageKind = "unknown"
)

// HostMessage is a decoded inbound line.
type HostMessage struct {
	Kind HostMessageKind

	// Value is the threshold for HostThresholdResponse messages.
	Value float64

	// Config is the raw run configuration for HostRun messages.
	Config map[string]any
}
