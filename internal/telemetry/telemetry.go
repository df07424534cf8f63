package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind selects which telemetry stream drives the bar.
type Kind int

const (
	KindUnset Kind = iota // no stream; opening the overlay is a no-op
	KindPower
	KindPower3s
	KindPower10s
	KindHeartRate
)

var kindNames = map[Kind]string{
	KindUnset:     "none",
	KindPower:     "power",
	KindPower3s:   "power_3s",
	KindPower10s:  "power_10s",
	KindHeartRate: "heart_rate",
}

// AllKinds lists the selectable streams in menu order.
var AllKinds = []Kind{KindPower, KindPower3s, KindPower10s, KindHeartRate}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a config name to a Kind. Empty and "none" give KindUnset.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindUnset, nil
	}
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return KindUnset, fmt.Errorf("unknown telemetry kind %q", s)
}

// IsPower reports whether the kind is read from a power meter.
func (k Kind) IsPower() bool {
	return k == KindPower || k == KindPower3s || k == KindPower10s
}

// SmoothingWindow is the trailing average window for the kind, zero for raw values.
func (k Kind) SmoothingWindow() time.Duration {
	switch k {
	case KindPower3s:
		return 3 * time.Second
	case KindPower10s:
		return 10 * time.Second
	default:
		return 0
	}
}

// Status tags a State.
type Status int

const (
	StatusNotStreaming Status = iota
	StatusStreaming
)

func (s Status) String() string {
	if s == StatusStreaming {
		return "Streaming"
	}
	return "NotStreaming"
}

// State is one element of a telemetry stream: either a streaming value or a
// marker that the source currently has no data. Value is meaningful only when
// Status is StatusStreaming.
type State struct {
	Status Status
	Value  float64
}

func Streaming(value float64) State {
	return State{Status: StatusStreaming, Value: value}
}

func NotStreaming() State {
	return State{Status: StatusNotStreaming}
}

func (s State) IsStreaming() bool {
	return s.Status == StatusStreaming
}

func (s State) String() string {
	if s.IsStreaming() {
		return fmt.Sprintf("Streaming(%g)", s.Value)
	}
	return "NotStreaming"
}

// Provider produces telemetry for one kind. Stream blocks, writing states to out
// until ctx is cancelled (returns nil) or the source fails (returns the error).
// Stream does not close out.
type Provider interface {
	Stream(ctx context.Context, kind Kind, out chan<- State) error
}
