package ui

import (
	"context"
	"time"

	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/powerbar"
)

const (
	executorQueueSize = 64
	shutdownWait      = time.Second
)

// Executor runs closures on the tview event loop, in submission order, and
// redraws after each one. Do only enqueues, so callers never block on the
// event loop; a single worker hands the closures to the application.
type Executor struct {
	app    *tview.Application
	logger *zerolog.Logger
	queue  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ powerbar.UIExecutor = (*Executor)(nil)

func NewExecutor(logger *zerolog.Logger, app *tview.Application) *Executor {
	if logger == nil {
		panic("Executor: logger cannot be nil")
	}
	if app == nil {
		panic("Executor: app cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "ui_executor").Logger()
	e := &Executor{
		app:    app,
		logger: &l,
		queue:  make(chan func(), executorQueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go_func_utils.SafeGo(e.logger, e.work)
	return e
}

// Do queues fn. After Shutdown it is dropped.
func (e *Executor) Do(fn func()) {
	select {
	case e.queue <- fn:
	case <-e.ctx.Done():
	}
}

func (e *Executor) work() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.queue:
			e.app.QueueUpdateDraw(fn)
		}
	}
}

// Shutdown stops the worker. Call it while the application is still running;
// a closure handed to a stopped application never runs, and the worker is
// abandoned after a short wait.
func (e *Executor) Shutdown() {
	e.cancel()
	select {
	case <-e.done:
	case <-time.After(shutdownWait):
		e.logger.Warn().Msg("UI worker still blocked on the event loop")
	}
}
