package ui

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// OverlayControl is the part of powerbar.Overlay the controller drives.
type OverlayControl interface {
	Open(kind telemetry.Kind) error
	Close()
	IsOpen() bool
}

// Controller turns key presses into overlay actions. Overlay.Close waits on
// the UI event loop, so actions are queued and run in order by a worker
// goroutine; queuing never blocks the caller.
type Controller struct {
	model   *Model
	overlay OverlayControl
	logger  *zerolog.Logger

	mu           sync.Mutex
	pending      []func()
	wake         chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewController(model *Model, overlay OverlayControl, logger *zerolog.Logger) *Controller {
	if model == nil {
		panic("Controller: model cannot be nil")
	}
	if overlay == nil {
		panic("Controller: overlay cannot be nil")
	}
	if logger == nil {
		panic("Controller: logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "ui_controller").Logger()
	c := &Controller{
		model:   model,
		overlay: overlay,
		logger:  &l,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go_func_utils.SafeGo(c.logger, func() { c.work() })

	return c
}

// run queues action. Actions queued after Shutdown are dropped.
func (c *Controller) run(action func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return
	}
	c.pending = append(c.pending, action)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) next() (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 || c.ctx.Err() != nil {
		return nil, false
	}
	action := c.pending[0]
	c.pending = c.pending[1:]
	return action, true
}

func (c *Controller) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			action, ok := c.next()
			if !ok {
				break
			}
			action()
		}
	}
}

func (c *Controller) open(kind telemetry.Kind) {
	if err := c.overlay.Open(kind); err != nil {
		c.logger.Warn().Err(err).Msg("could not open overlay")
		c.model.SetError(err)
		return
	}
	c.model.SetOpen(true)
}

func (c *Controller) close() {
	c.overlay.Close()
	c.model.SetOpen(false)
}

// Open shows the bar for the selected source.
func (c *Controller) Open() {
	c.run(func() {
		if c.overlay.IsOpen() {
			return
		}
		c.open(c.model.GetStatus().Kind)
	})
}

// ToggleOverlay opens the bar when hidden and closes it when shown.
func (c *Controller) ToggleOverlay() {
	c.run(func() {
		if c.overlay.IsOpen() {
			c.logger.Info().Msg("hiding bar")
			c.close()
			return
		}
		c.logger.Info().Msg("showing bar")
		c.open(c.model.GetStatus().Kind)
	})
}

// SelectSource switches the bar to kind, reopening it when shown.
func (c *Controller) SelectSource(kind telemetry.Kind) {
	c.run(func() {
		if c.model.GetStatus().Kind == kind {
			return
		}
		c.logger.Info().Str("kind", kind.String()).Msg("source selected")
		c.model.SetKind(kind)
		if !c.overlay.IsOpen() {
			return
		}
		c.close()
		c.open(kind)
	})
}

// OnEscapeKey handles when the Escape key is pressed
func (c *Controller) OnEscapeKey() {
	c.model.RequestCloseApplication()
}

// Shutdown drops queued actions, waits for the running one and closes the
// overlay. It needs the UI event loop running to detach the bar.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		c.pending = nil
		c.mu.Unlock()
		c.wg.Wait()
		if c.overlay.IsOpen() {
			c.close()
		}
	})
}
