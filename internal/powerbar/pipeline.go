package powerbar

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// PipelineArgs wires a Pipeline. All fields but Observer are required.
type PipelineArgs struct {
	Kind       telemetry.Kind
	Telemetry  telemetry.Provider
	Profiles   profile.Provider
	Target     RenderTarget
	UI         UIExecutor
	Logger     *zerolog.Logger
	Observer   Observer
	ResetOnGap bool
}

// renderRequest hands a command to the consumer; done closes once the UI
// context has applied it (or skipped it after cancellation).
type renderRequest struct {
	cmd   RenderCommand
	value float64
	done  chan struct{}
}

// Pipeline streams one telemetry kind plus the rider profile into the bar.
//
// One producer goroutine per input feeds the join stage, which dedups, maps and
// hands each accepted command to the consumer. The consumer applies it on the
// UI context and the join stage waits for that before taking the next input,
// so renders happen in input order and never pile up.
type Pipeline struct {
	kind       telemetry.Kind
	telemetry  telemetry.Provider
	profiles   profile.Provider
	target     RenderTarget
	ui         UIExecutor
	logger     *zerolog.Logger
	observer   Observer
	resetOnGap bool

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}

	errMu sync.Mutex
	err   error

	// renderMu orders render closures against Stop
	renderMu sync.Mutex
	stopped  bool
}

func NewPipeline(args PipelineArgs) *Pipeline {
	if args.Telemetry == nil {
		panic("Pipeline: telemetry provider cannot be nil")
	}
	if args.Profiles == nil {
		panic("Pipeline: profile provider cannot be nil")
	}
	if args.Target == nil {
		panic("Pipeline: render target cannot be nil")
	}
	if args.UI == nil {
		panic("Pipeline: UI executor cannot be nil")
	}
	if args.Logger == nil {
		panic("Pipeline: logger cannot be nil")
	}
	if args.Kind == telemetry.KindUnset {
		panic("Pipeline: kind must be set")
	}
	l := args.Logger.With().Str("component", "pipeline").Str("kind", args.Kind.String()).Logger()
	return &Pipeline{
		kind:       args.Kind,
		telemetry:  args.Telemetry,
		profiles:   args.Profiles,
		target:     args.Target,
		ui:         args.UI,
		logger:     &l,
		observer:   observerOrNop(args.Observer),
		resetOnGap: args.ResetOnGap,
		done:       make(chan struct{}),
	}
}

// Start launches the pipeline under parent. Later calls do nothing.
func (p *Pipeline) Start(parent context.Context) {
	p.startOnce.Do(func() {
		p.ctx, p.cancel = context.WithCancel(parent)

		states := make(chan telemetry.State)
		profiles := make(chan profile.UserProfile)
		errCh := make(chan error, 2)
		requests := make(chan renderRequest)

		p.wg.Add(4)
		go_func_utils.SafeGo(p.logger, func() {
			defer p.wg.Done()
			defer close(states)
			if err := p.telemetry.Stream(p.ctx, p.kind, states); err != nil {
				errCh <- fmt.Errorf("telemetry stream: %w", err)
			}
		})
		go_func_utils.SafeGo(p.logger, func() {
			defer p.wg.Done()
			defer close(profiles)
			if err := p.profiles.Stream(p.ctx, profiles); err != nil {
				errCh <- fmt.Errorf("profile stream: %w", err)
			}
		})
		go_func_utils.SafeGo(p.logger, func() {
			defer p.wg.Done()
			defer close(requests)
			p.join(states, profiles, errCh, requests)
		})
		go_func_utils.SafeGo(p.logger, func() {
			defer p.wg.Done()
			p.consume(requests)
		})

		go_func_utils.SafeGo(p.logger, func() {
			p.wg.Wait()
			close(p.done)
		})

		p.logger.Debug().Msg("pipeline started")
	})
}

// Stop cancels the pipeline and waits for every goroutine to exit. Nothing is
// rendered once Stop returns.
func (p *Pipeline) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.renderMu.Lock()
	p.stopped = true
	p.renderMu.Unlock()
	p.wg.Wait()
}

// Done is closed once the pipeline has stopped, whether by Stop or by error.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that halted the pipeline, nil after a clean Stop.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Pipeline) halt(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()

	p.logger.Error().Err(err).Msg("pipeline halted")
	p.observer.Halted(p.kind, err)
	p.cancel()
}

func (p *Pipeline) join(
	states <-chan telemetry.State,
	profiles <-chan profile.UserProfile,
	errCh <-chan error,
	requests chan<- renderRequest,
) {
	c := newCombiner(p.resetOnGap)
	warnedRange := false

	for states != nil || profiles != nil {
		var (
			sample  CombinedSample
			outcome Outcome
		)
		select {
		case <-p.ctx.Done():
			return
		case err := <-errCh:
			p.halt(err)
			return
		case state, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			sample, outcome = c.OnTelemetry(state)
		case prof, ok := <-profiles:
			if !ok {
				profiles = nil
				continue
			}
			sample, outcome = c.OnProfile(prof)
		}

		if outcome != OutcomeEmit {
			p.observer.SampleSuppressed(p.kind, outcome)
			continue
		}
		p.observer.SampleAccepted(p.kind)

		cmd, ok := BuildRenderCommand(p.kind, sample)
		if !ok && !warnedRange {
			warnedRange = true
			r, _ := RangeFor(p.kind, sample.Profile)
			p.logger.Warn().
				Float64("min", r.Min).
				Float64("max", r.Max).
				Msg("profile gives no usable range, showing an empty bar")
		}

		req := renderRequest{cmd: cmd, value: sample.Value, done: make(chan struct{})}
		select {
		case requests <- req:
		case <-p.ctx.Done():
			return
		}
		select {
		case <-req.done:
		case <-p.ctx.Done():
			return
		}
	}

	// both inputs ended; surface an error that raced with the close
	select {
	case err := <-errCh:
		p.halt(err)
	default:
		p.logger.Debug().Msg("inputs ended")
	}
}

func (p *Pipeline) consume(requests <-chan renderRequest) {
	for req := range requests {
		req := req
		p.ui.Do(func() {
			defer close(req.done)
			p.renderMu.Lock()
			defer p.renderMu.Unlock()
			// the UI context may run this after Stop
			if p.stopped || p.ctx.Err() != nil {
				return
			}
			p.target.SetColor(req.cmd.Color)
			p.target.SetProgress(req.cmd.Progress)
			p.target.Redraw()
			p.observer.Rendered(p.kind, req.value, req.cmd)
			p.logger.Debug().
				Float64("value", req.value).
				Str("color", string(req.cmd.Color)).
				Float64("progress", req.cmd.Progress).
				Msg("rendered")
		})
		select {
		case <-req.done:
		case <-p.ctx.Done():
			return
		}
	}
}
