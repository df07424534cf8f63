package powerbar

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// detachTimeout bounds how long Close waits for the UI context to detach the
// surface. It only matters when the UI loop is already gone.
const detachTimeout = 2 * time.Second

// OverlayArgs wires an Overlay. All fields but Observer are required.
type OverlayArgs struct {
	Connector  Connector
	Target     RenderTarget
	UI         UIExecutor
	Surface    Surface
	Logger     *zerolog.Logger
	Observer   Observer
	ResetOnGap bool
}

// Overlay ties the bar to a visible surface. Open starts a pipeline in the
// background and attaches the surface on the UI context; Close cancels the
// pipeline, releases the connection and detaches the surface.
//
// Close blocks until the UI context has run the detach, so it must not be
// called from the UI context itself.
type Overlay struct {
	connector  Connector
	target     RenderTarget
	ui         UIExecutor
	surface    Surface
	logger     *zerolog.Logger
	observer   Observer
	resetOnGap bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kind   telemetry.Kind
}

func NewOverlay(args OverlayArgs) *Overlay {
	if args.Connector == nil {
		panic("Overlay: connector cannot be nil")
	}
	if args.Target == nil {
		panic("Overlay: render target cannot be nil")
	}
	if args.UI == nil {
		panic("Overlay: UI executor cannot be nil")
	}
	if args.Surface == nil {
		panic("Overlay: surface cannot be nil")
	}
	if args.Logger == nil {
		panic("Overlay: logger cannot be nil")
	}
	l := args.Logger.With().Str("component", "overlay").Logger()
	return &Overlay{
		connector:  args.Connector,
		target:     args.Target,
		ui:         args.UI,
		surface:    args.Surface,
		logger:     &l,
		observer:   observerOrNop(args.Observer),
		resetOnGap: args.ResetOnGap,
	}
}

// Open shows the bar and starts streaming kind into it. KindUnset shows an
// empty bar and streams nothing.
func (o *Overlay) Open(kind telemetry.Kind) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return ErrAlreadyOpen
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	o.cancel, o.done, o.kind = cancel, done, kind
	o.mu.Unlock()

	o.logger.Info().Str("kind", kind.String()).Msg("opening")

	o.ui.Do(func() {
		o.target.SetColor(profile.DefaultColor)
		o.target.SetProgress(0)
		o.target.Redraw()
		if err := o.surface.Attach(); err != nil {
			o.logger.Debug().Err(err).Msg("attach failed")
		}
	})

	go_func_utils.SafeGo(o.logger, func() {
		defer close(done)
		o.run(ctx, kind)
	})
	return nil
}

func (o *Overlay) run(ctx context.Context, kind telemetry.Kind) {
	if kind == telemetry.KindUnset {
		o.logger.Info().Msg("no telemetry source selected")
		<-ctx.Done()
		return
	}

	conn, err := o.connector.Connect(ctx, kind)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Error().Err(err).Str("kind", kind.String()).Msg("could not connect")
			o.observer.Halted(kind, err)
		}
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("could not close connection")
		}
	}()

	pipeline := NewPipeline(PipelineArgs{
		Kind:       kind,
		Telemetry:  conn.Telemetry(),
		Profiles:   conn.Profiles(),
		Target:     o.target,
		UI:         o.ui,
		Logger:     o.logger,
		Observer:   o.observer,
		ResetOnGap: o.resetOnGap,
	})
	pipeline.Start(ctx)

	select {
	case <-ctx.Done():
	case <-pipeline.Done():
	}
	pipeline.Stop()
}

// Close stops the pipeline and detaches the surface. Safe to call when the
// overlay was never opened or is already closed. Detach errors are logged and
// swallowed.
func (o *Overlay) Close() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done, o.kind = nil, nil, telemetry.KindUnset
	o.mu.Unlock()

	if cancel == nil {
		o.logger.Debug().Msg("close called while not open")
		return
	}

	cancel()
	<-done

	detached := make(chan struct{})
	o.ui.Do(func() {
		defer close(detached)
		if err := o.surface.Detach(); err != nil {
			o.logger.Debug().Err(err).Msg("detach failed")
		}
	})

	select {
	case <-detached:
	case <-time.After(detachTimeout):
		o.logger.Warn().Msg("UI did not detach the bar in time")
	}
	o.logger.Info().Msg("closed")
}

func (o *Overlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// Kind returns the kind passed to the current Open, KindUnset when closed.
func (o *Overlay) Kind() telemetry.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.kind
}
