package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bioseqio/clonepipe/pkg/domain"
	"github.com/bioseqio/clonepipe/pkg/protocol"
)

// DefaultThreshold is used when the distance estimator's output cannot be
// parsed or falls outside [0,1].
const DefaultThreshold = 0.1

// NegotiationState tracks the threshold handshake.
type NegotiationState int

const (
	// StateCalculating holds the estimator's candidate value.
	StateCalculating NegotiationState = iota
	// StateAwaitingResponse blocks on one line from the host.
	StateAwaitingResponse
	// StateResolved carries the final numeric threshold.
	StateResolved
	// StateCancelled aborts the run like a fatal stage failure.
	StateCancelled
)

// Negotiation performs the one blocking human-in-the-loop exchange of a run.
// It is invoked exactly once, after the distance estimator produces its
// candidate threshold.
type Negotiation struct {
	enc *protocol.Encoder
	dec *protocol.Decoder

	// Timeout bounds the wait for a host response. Zero preserves the
	// historical behavior: wait indefinitely until a line arrives or the
	// host closes its end.
	Timeout time.Duration

	State NegotiationState
}

// NewNegotiation wires the handshake over an existing codec pair.
func NewNegotiation(enc *protocol.Encoder, dec *protocol.Decoder) *Negotiation {
	return &Negotiation{enc: enc, dec: dec}
}

// Resolve emits the threshold request and performs one blocking read.
//
//   - A threshold_response resolves to the host's value.
//   - A cancel resolves to cancellation (domain.ErrCancelled).
//   - EOF, an unparsable line, an unrecognized message, a timeout, or
//     context cancellation all resolve to the calculated fallback; a missing
//     host answer is never fatal.
func (n *Negotiation) Resolve(ctx context.Context, calculated float64) (float64, error) {
	n.State = StateCalculating
	if err := n.enc.ThresholdRequest(calculated); err != nil {
		return 0, err
	}
	n.State = StateAwaitingResponse

	type answer struct {
		msg domain.HostMessage
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		msg, err := n.dec.ReadHostMessage()
		ch <- answer{msg, err}
	}()

	var timeoutC <-chan time.Time
	if n.Timeout > 0 {
		t := time.NewTimer(n.Timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case a := <-ch:
		switch a.msg.Kind {
		case domain.HostThresholdResponse:
			n.State = StateResolved
			return a.msg.Value, nil
		case domain.HostCancel:
			n.State = StateCancelled
			return 0, domain.ErrCancelled
		}
		// EOF, unknown type, or garbage: use the calculated value.
		n.State = StateResolved
		return calculated, nil
	case <-timeoutC:
		n.State = StateResolved
		return calculated, nil
	case <-ctx.Done():
		n.State = StateResolved
		return calculated, nil
	}
}

// ParseEstimatorOutput extracts the threshold from the distance estimator's
// stdout. The contract is loose: the value is the last token of the output.
// Preference order: the entire last non-empty line as a float, then the last
// decimal literal anywhere in the output, then the last integer scaled down
// by ten. Values outside [0,1] are rejected.
func ParseEstimatorOutput(out string) (float64, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) > 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(lines[len(lines)-1]), 64); err == nil {
			return validateThreshold(v)
		}
	}

	if v, ok := lastDecimal(out); ok {
		return validateThreshold(v)
	}
	if v, ok := lastInteger(out); ok {
		return validateThreshold(v / 10.0)
	}
	return 0, false
}

func validateThreshold(v float64) (float64, bool) {
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// lastDecimal finds the final \d+.\d+ literal in the text.
func lastDecimal(s string) (float64, bool) {
	var found string
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			continue
		}
		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j < len(s) && s[j] == '.' && j+1 < len(s) && isDigit(s[j+1]) {
			k := j + 1
			for k < len(s) && isDigit(s[k]) {
				k++
			}
			found = s[i:k]
			i = k
		} else {
			i = j
		}
	}
	if found == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(found, 64)
	return v, err == nil
}

func lastInteger(s string) (float64, bool) {
	var found string
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			continue
		}
		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		found = s[i:j]
		i = j
	}
	if found == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(found, 64)
	return v, err == nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
