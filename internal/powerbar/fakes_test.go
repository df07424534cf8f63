package powerbar

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// recordingTarget records one RenderCommand per Redraw.
type recordingTarget struct {
	mu       sync.Mutex
	color    profile.ColorID
	progress float64
	renders  []RenderCommand
}

func (r *recordingTarget) SetColor(c profile.ColorID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.color = c
}

func (r *recordingTarget) SetProgress(f float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = f
}

func (r *recordingTarget) Redraw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, RenderCommand{Color: r.color, Progress: r.progress})
}

func (r *recordingTarget) Renders() []RenderCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RenderCommand, len(r.renders))
	copy(out, r.renders)
	return out
}

// serialExecutor runs closures one at a time on its own goroutine.
type serialExecutor struct {
	queue chan func()
	stop  chan struct{}
}

func newSerialExecutor(t *testing.T) *serialExecutor {
	e := &serialExecutor{queue: make(chan func(), 256), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-e.queue:
				fn()
			case <-e.stop:
				return
			}
		}
	}()
	t.Cleanup(func() { close(e.stop) })
	return e
}

func (e *serialExecutor) Do(fn func()) {
	e.queue <- fn
}

// manualExecutor holds closures until the test runs them.
type manualExecutor struct {
	mu      sync.Mutex
	pending []func()
}

func (e *manualExecutor) Do(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, fn)
}

func (e *manualExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *manualExecutor) RunAll() {
	e.mu.Lock()
	fns := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// fakeTelemetry forwards whatever the test writes to src. Closing src ends the
// stream with endErr.
type fakeTelemetry struct {
	src    chan telemetry.State
	endErr error

	mu      sync.Mutex
	kinds   []telemetry.Kind
	running bool
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{src: make(chan telemetry.State)}
}

func (f *fakeTelemetry) Stream(ctx context.Context, kind telemetry.Kind, out chan<- telemetry.State) error {
	f.mu.Lock()
	f.kinds = append(f.kinds, kind)
	f.running = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-f.src:
			if !ok {
				return f.endErr
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (f *fakeTelemetry) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

type fakeProfiles struct {
	src chan profile.UserProfile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{src: make(chan profile.UserProfile)}
}

func (f *fakeProfiles) Stream(ctx context.Context, out chan<- profile.UserProfile) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-f.src:
			if !ok {
				return nil
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

type countingObserver struct {
	mu         sync.Mutex
	accepted   int
	suppressed map[Outcome]int
	rendered   []float64
	halted     []error
}

func newCountingObserver() *countingObserver {
	return &countingObserver{suppressed: map[Outcome]int{}}
}

func (o *countingObserver) SampleAccepted(telemetry.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted++
}

func (o *countingObserver) SampleSuppressed(_ telemetry.Kind, outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suppressed[outcome]++
}

func (o *countingObserver) Rendered(_ telemetry.Kind, value float64, _ RenderCommand) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rendered = append(o.rendered, value)
}

func (o *countingObserver) Halted(_ telemetry.Kind, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.halted = append(o.halted, err)
}

func (o *countingObserver) Suppressed(outcome Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suppressed[outcome]
}

func (o *countingObserver) Halts() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.halted...)
}

type fakeSurface struct {
	mu        sync.Mutex
	attached  bool
	attaches  int
	detaches  int
	detachErr error
}

func (s *fakeSurface) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attaches++
	s.attached = true
	return nil
}

func (s *fakeSurface) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detaches++
	s.attached = false
	return s.detachErr
}

func (s *fakeSurface) Counts() (attaches, detaches int, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attaches, s.detaches, s.attached
}

type fakeConnection struct {
	telemetry *fakeTelemetry
	profiles  *fakeProfiles

	mu     sync.Mutex
	closed int
}

func (c *fakeConnection) Telemetry() telemetry.Provider { return c.telemetry }
func (c *fakeConnection) Profiles() profile.Provider    { return c.profiles }

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConnection) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var errConnectRefused = errors.New("connect refused")

type fakeConnector struct {
	conn *fakeConnection
	err  error

	mu    sync.Mutex
	kinds []telemetry.Kind
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{conn: &fakeConnection{
		telemetry: newFakeTelemetry(),
		profiles:  newFakeProfiles(),
	}}
}

func (c *fakeConnector) Connect(_ context.Context, kind telemetry.Kind) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	if c.err != nil {
		return nil, c.err
	}
	return c.conn, nil
}

func (c *fakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

// powerProfile has power zones starting at 0, 150 and 250 W.
func powerProfile() profile.UserProfile {
	return profile.UserProfile{
		RestingHR: 60,
		MaxHR:     180,
		PowerZones: []profile.Zone{
			{Name: "Z1", Min: 0, Color: profile.ColorRecovery},
			{Name: "Z2", Min: 150, Color: profile.ColorEndurance},
			{Name: "Z3", Min: 250, Color: profile.ColorTempo},
		},
		HeartRateZones: []profile.Zone{
			{Name: "Z1", Min: 60, Color: profile.ColorRecovery},
			{Name: "Z2", Min: 120, Color: profile.ColorEndurance},
			{Name: "Z3", Min: 150, Color: profile.ColorThreshold},
		},
	}
}
