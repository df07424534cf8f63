package powerbar

import "github.com/lockevod/karoo-powerbar/internal/telemetry"

// Observer is told about every pipeline decision. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	SampleAccepted(kind telemetry.Kind)
	SampleSuppressed(kind telemetry.Kind, outcome Outcome)
	Rendered(kind telemetry.Kind, value float64, cmd RenderCommand)
	Halted(kind telemetry.Kind, err error)
}

type nopObserver struct{}

func (nopObserver) SampleAccepted(telemetry.Kind)                   {}
func (nopObserver) SampleSuppressed(telemetry.Kind, Outcome)        {}
func (nopObserver) Rendered(telemetry.Kind, float64, RenderCommand) {}
func (nopObserver) Halted(telemetry.Kind, error)                    {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

type multiObserver []Observer

// Observers fans every decision out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	var m multiObserver
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiObserver) SampleAccepted(kind telemetry.Kind) {
	for _, o := range m {
		o.SampleAccepted(kind)
	}
}

func (m multiObserver) SampleSuppressed(kind telemetry.Kind, outcome Outcome) {
	for _, o := range m {
		o.SampleSuppressed(kind, outcome)
	}
}

func (m multiObserver) Rendered(kind telemetry.Kind, value float64, cmd RenderCommand) {
	for _, o := range m {
		o.Rendered(kind, value, cmd)
	}
}

func (m multiObserver) Halted(kind telemetry.Kind, err error) {
	for _, o := range m {
		o.Halted(kind, err)
	}
}
