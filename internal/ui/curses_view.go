package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// sourceKeys maps the number keys to the selectable sources.
var sourceKeys = map[rune]telemetry.Kind{
	'1': telemetry.KindPower,
	'2': telemetry.KindPower3s,
	'3': telemetry.KindPower10s,
	'4': telemetry.KindHeartRate,
}

type CursesViewArgs struct {
	App        *tview.Application
	Model      *Model
	Controller *Controller
	UI         powerbar.UIExecutor
	Logger     *zerolog.Logger
}

// CursesView is the terminal screen around the bar: a status panel and the
// tail of the log.
type CursesView struct {
	logger     *zerolog.Logger
	app        *tview.Application
	model      *Model
	controller *Controller
	ui         powerbar.UIExecutor

	content    *tview.Flex
	statusView *tview.TextView
	logView    *tview.TextView

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCursesView(args CursesViewArgs) *CursesView {
	if args.App == nil {
		panic("CursesView: app cannot be nil")
	}
	if args.Model == nil {
		panic("CursesView: model cannot be nil")
	}
	if args.Controller == nil {
		panic("CursesView: controller cannot be nil")
	}
	if args.UI == nil {
		panic("CursesView: UI executor cannot be nil")
	}
	if args.Logger == nil {
		panic("CursesView: logger cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := args.Logger.With().Str("component", "curses_view").Logger()
	v := &CursesView{
		logger:     &l,
		app:        args.App,
		model:      args.Model,
		controller: args.Controller,
		ui:         args.UI,
		ctx:        ctx,
		cancel:     cancel,
	}
	v.initialize()
	v.setupKeyboardHandlers()
	v.setupEventListeners()
	return v
}

func (v *CursesView) initialize() {
	instructions := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	instructions.SetText("[yellow]1[white] Power  |  [yellow]2[white] Power 3s  |  [yellow]3[white] Power 10s  |  [yellow]4[white] Heart rate\n[yellow]O[white] Show/hide bar  |  [yellow]Esc[white] Quit")

	v.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	v.statusView.SetBorder(true).SetTitle(" Powerbar ")
	v.statusView.SetText(formatStatus(v.model.GetStatus()))

	// No SetChangedFunc with app.Draw(): it hangs once the app is stopped.
	v.logView = tview.NewTextView().
		SetDynamicColors(false).
		SetScrollable(false)
	v.logView.SetBorder(true).SetTitle(" Logs ")

	body := tview.NewFlex().
		AddItem(v.statusView, 0, 1, true).
		AddItem(v.logView, 0, 2, false)

	v.content = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(instructions, 2, 0, false).
		AddItem(body, 0, 1, true)
}

// Content is the main screen; the Layout stacks the bar around it.
func (v *CursesView) Content() tview.Primitive {
	return v.content
}

func (v *CursesView) setupKeyboardHandlers() {
	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		return v.handleKey(event)
	})
}

// handleKey runs on the event loop; everything it triggers is asynchronous.
func (v *CursesView) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		// Ctrl-C would otherwise stop the app before the bar is detached
		v.controller.OnEscapeKey()
		return nil
	case tcell.KeyRune:
		if kind, ok := sourceKeys[event.Rune()]; ok {
			v.controller.SelectSource(kind)
			return nil
		}
		switch event.Rune() {
		case 'o', 'O':
			v.controller.ToggleOverlay()
			return nil
		case 'q', 'Q':
			v.controller.OnEscapeKey()
			return nil
		}
	}
	return event
}

func (v *CursesView) setupEventListeners() {
	statusChan := make(chan Status, 1)
	statusUnregister := v.model.ListenToStatus(statusChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer statusUnregister()
		for {
			select {
			case <-v.ctx.Done():
				return
			case _, ok := <-statusChan:
				if !ok {
					return
				}
				// the channel only wakes us; a newer status may have been dropped
				text := formatStatus(v.model.GetStatus())
				v.ui.Do(func() { v.statusView.SetText(text) })
			}
		}
	})

	logChan := make(chan string, 1)
	logUnregister := v.model.ListenToLog(logChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer logUnregister()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		dirty := true
		for {
			select {
			case <-v.ctx.Done():
				return
			case _, ok := <-logChan:
				if !ok {
					return
				}
				dirty = true
			case <-ticker.C:
				if dirty {
					dirty = false
					v.ui.Do(v.updateLogDisplay)
				}
			}
		}
	})

	closeChan := make(chan struct{}, 1)
	closeUnregister := v.model.ListenToCloseApplication(closeChan)
	v.wg.Add(1)
	go_func_utils.SafeGo(v.logger, func() {
		defer v.wg.Done()
		defer closeUnregister()
		select {
		case <-v.ctx.Done():
			return
		case _, ok := <-closeChan:
			if !ok {
				return
			}
			v.logger.Info().Msg("quit requested")
			// the bar detaches on the event loop, so close it before stopping the app
			v.controller.Shutdown()
			v.app.Stop()
		}
	})
}

// updateLogDisplay runs on the event loop.
func (v *CursesView) updateLogDisplay() {
	_, _, _, height := v.logView.GetInnerRect()
	if height <= 0 {
		return
	}
	v.logView.SetText(strings.Join(v.model.GetLogTail(height), ""))
}

// Run starts the UI with root, which should contain Content, and blocks until
// it exits.
func (v *CursesView) Run(root tview.Primitive) error {
	v.app.SetRoot(root, true)
	v.app.SetFocus(v.statusView)
	return v.app.Run()
}

// Shutdown stops all goroutines and waits for them to finish
func (v *CursesView) Shutdown() {
	v.cancel()
	v.wg.Wait()
}

func formatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("\n")

	source := "none"
	if s.Kind != telemetry.KindUnset {
		source = s.Kind.String()
	}
	fmt.Fprintf(&b, "  [gray]Source:[white]   [yellow]%s[white]\n", source)

	if s.Open {
		b.WriteString("  [gray]Bar:[white]      [green]shown[white]\n\n")
	} else {
		b.WriteString("  [gray]Bar:[white]      [gray]hidden[white]\n\n")
	}

	if s.HasValue {
		fmt.Fprintf(&b, "  [gray]Reading:[white]  [yellow]%.0f[white] %s\n", s.Value, unitFor(s.Kind))
		fmt.Fprintf(&b, "  [gray]Zone:[white]     %s\n", s.Command.Color)
		fmt.Fprintf(&b, "  [gray]Fill:[white]     %.0f%%\n\n", s.Command.Progress*100)
	} else {
		b.WriteString("  [gray]Waiting for data...[white]\n\n")
	}

	fmt.Fprintf(&b, "  [gray]Renders:[white]  %d  [gray]skipped:[white] %d\n", s.Rendered, s.Suppressed)

	if s.LastError != "" {
		fmt.Fprintf(&b, "\n  [red]%s[white]\n", tview.Escape(s.LastError))
	}
	return b.String()
}

func unitFor(kind telemetry.Kind) string {
	if kind == telemetry.KindHeartRate {
		return "bpm"
	}
	return "W"
}
