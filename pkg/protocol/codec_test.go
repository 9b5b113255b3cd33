package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

func TestEncoder_OneLinePerMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)

	require.NoError(t, enc.Progress("loading", 5, "Loading FASTA files..."))
	require.NoError(t, enc.Log(domain.LevelInfo, "Found 2 FASTA file(s)"))
	require.NoError(t, enc.ThresholdRequest(0.12))
	require.NoError(t, enc.Result("igblast_output", "/tmp/outdata.csv", nil))
	require.NoError(t, enc.Complete(true, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &obj), "line %q", line)
		assert.Contains(t, obj, "type")
	}
}

func TestEncoder_WireFields(t *testing.T) {
	buf := &bytes.Buffer{}
	enc := NewEncoder(buf)

	require.NoError(t, enc.Progress("clonality", 50, "Running clonality analysis..."))
	var progress map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &progress))
	assert.Equal(t, "progress", progress["type"])
	assert.Equal(t, "clonality", progress["stage"])
	assert.Equal(t, float64(50), progress["percent"])
	assert.Equal(t, "Running clonality analysis...", progress["message"])

	buf.Reset()
	require.NoError(t, enc.ThresholdRequest(0.12))
	var req map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &req))
	assert.Equal(t, "threshold_request", req["type"])
	assert.Equal(t, 0.12, req["calculated"])

	buf.Reset()
	require.NoError(t, enc.Complete(false, "IgBLAST analysis failed"))
	var complete map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &complete))
	assert.Equal(t, "complete", complete["type"])
	assert.Equal(t, false, complete["success"])
	assert.Equal(t, "IgBLAST analysis failed", complete["error"])

	buf.Reset()
	require.NoError(t, enc.Complete(true, ""))
	var ok map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ok))
	assert.NotContains(t, ok, "error")
}

// flushRecorder counts Flush calls behind a bytes.Buffer.
type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return nil
}

func TestEncoder_FlushesPerWrite(t *testing.T) {
	rec := &flushRecorder{}
	enc := NewEncoder(rec)

	require.NoError(t, enc.Log(domain.LevelDebug, "one"))
	require.NoError(t, enc.Log(domain.LevelDebug, "two"))
	assert.Equal(t, 2, rec.flushes)
}

func TestParseHostLine(t *testing.T) {
	t.Run("run envelope", func(t *testing.T) {
		msg := ParseHostLine([]byte(`{"action":"run","config":{"fasta_dir":"/data/fasta"}}`))
		require.Equal(t, domain.HostRun, msg.Kind)
		assert.Equal(t, "/data/fasta", msg.Config["fasta_dir"])
	})

	t.Run("threshold response", func(t *testing.T) {
		msg := ParseHostLine([]byte(`{"type":"threshold_response","value":0.2}`))
		require.Equal(t, domain.HostThresholdResponse, msg.Kind)
		assert.Equal(t, 0.2, msg.Value)
	})

	t.Run("threshold response without value is unknown", func(t *testing.T) {
		msg := ParseHostLine([]byte(`{"type":"threshold_response"}`))
		assert.Equal(t, domain.HostUnknown, msg.Kind)
	})

	t.Run("cancel", func(t *testing.T) {
		msg := ParseHostLine([]byte(`{"type":"cancel"}`))
		assert.Equal(t, domain.HostCancel, msg.Kind)
	})

	t.Run("garbage survives as unknown", func(t *testing.T) {
		msg := ParseHostLine([]byte(`this is not json`))
		assert.Equal(t, domain.HostUnknown, msg.Kind)
	})

	t.Run("unrecognized type is unknown", func(t *testing.T) {
		msg := ParseHostLine([]byte(`{"type":"resize","value":3}`))
		assert.Equal(t, domain.HostUnknown, msg.Kind)
	})
}

func TestDecoder_ReadHostMessage(t *testing.T) {
	dec := NewDecoder(strings.NewReader(
		`{"type":"threshold_response","value":0.15}` + "\n" + `garbage` + "\n"))

	msg, err := dec.ReadHostMessage()
	require.NoError(t, err)
	assert.Equal(t, domain.HostThresholdResponse, msg.Kind)
	assert.Equal(t, 0.15, msg.Value)

	msg, err = dec.ReadHostMessage()
	require.NoError(t, err)
	assert.Equal(t, domain.HostUnknown, msg.Kind)

	_, err = dec.ReadHostMessage()
	assert.Error(t, err)
}
