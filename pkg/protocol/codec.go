// Package protocol implements the line-oriented message channel between the
// pipeline controller and its host: one UTF-8 JSON object per line, flushed
// immediately after each write. The codec is stateless and symmetric; a line
// that fails to decode is reported as an unknown message, never as a channel
// error, so the caller decides how to react.
package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// Flusher is implemented by writers that buffer output.
type Flusher interface {
	Flush() error
}

// Encoder writes protocol messages. It is not safe for concurrent use; the
// controller is single-threaded by design.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps a writer, typically os.Stdout.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Emit marshals any message as a single line and flushes.
func (e *Encoder) Emit(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if f, ok := e.w.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing message: %w", err)
		}
	}
	return nil
}

// Progress emits a progress update for a named stage.
func (e *Encoder) Progress(stage string, percent int, message string) error {
	return e.Emit(domain.Progress{Type: domain.MessageProgress, Stage: stage, Percent: percent, Message: message})
}

// Log emits a protocol-level log line.
func (e *Encoder) Log(level domain.LogLevel, message string) error {
	return e.Emit(domain.Log{Type: domain.MessageLog, Level: level, Message: message})
}

// Logf emits a formatted protocol-level log line.
func (e *Encoder) Logf(level domain.LogLevel, format string, args ...any) error {
	return e.Log(level, fmt.Sprintf(format, args...))
}

// ThresholdRequest asks the host to confirm the calculated threshold.
func (e *Encoder) ThresholdRequest(calculated float64) error {
	return e.Emit(domain.ThresholdRequest{Type: domain.MessageThresholdRequest, Calculated: calculated})
}

// Result announces an artifact by path and/or inline data.
func (e *Encoder) Result(artifact, path string, data map[string]any) error {
	return e.Emit(domain.Result{Type: domain.MessageResult, Artifact: artifact, Path: path, Data: data})
}

// Complete emits the terminal run status.
func (e *Encoder) Complete(success bool, errMsg string) error {
	return e.Emit(domain.Complete{Type: domain.MessageComplete, Success: success, Error: errMsg})
}

// Decoder reads host messages line by line.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps a reader, typically os.Stdin.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// envelope covers every inbound shape; fields are sparse by kind.
type envelope struct {
	Action string         `json:"action"`
	Type   string         `json:"type"`
	Value  *float64       `json:"value"`
	Config map[string]any `json:"config"`
}

// ReadHostMessage performs one blocking line read and classifies the result.
// io.EOF is returned when the host closes its end. A line that is not valid
// JSON or carries no recognized tag decodes to HostUnknown with a nil error.
func (d *Decoder) ReadHostMessage() (domain.HostMessage, error) {
	line, err := d.r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return domain.HostMessage{Kind: domain.HostUnknown}, err
	}
	return ParseHostLine([]byte(line)), nil
}

// ParseHostLine classifies a single raw line.
func ParseHostLine(line []byte) domain.HostMessage {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return domain.HostMessage{Kind: domain.HostUnknown}
	}
	switch {
	case env.Action == "run":
		return domain.HostMessage{Kind: domain.HostRun, Config: env.Config}
	case env.Type == "threshold_response" && env.Value != nil:
		return domain.HostMessage{Kind: domain.HostThresholdResponse, Value: *env.Value}
	case env.Type == "cancel":
		return domain.HostMessage{Kind: domain.HostCancel}
	}
	return domain.HostMessage{Kind: domain.HostUnknown}
}
