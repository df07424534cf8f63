package ui

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lockevod/karoo-powerbar/internal/events"
	"github.com/lockevod/karoo-powerbar/internal/go_func_utils"
	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// Status is what the status panel shows.
type Status struct {
	Kind       telemetry.Kind
	Open       bool
	HasValue   bool
	Value      float64
	Command    powerbar.RenderCommand
	Rendered   uint64
	Suppressed uint64
	LastError  string
}

// Model holds the view state and publishes changes to the view. It also
// observes the pipeline, so the status follows what the bar shows.
type Model struct {
	logEvent              *events.ChannelEvent[string]
	statusEvent           *events.ChannelEvent[Status]
	closeApplicationEvent *events.ChannelEvent[struct{}]
	status                Status
	logLines              []string
	logMu                 sync.RWMutex
	mu                    sync.RWMutex
	ctx                   context.Context
	cancel                context.CancelFunc
	wg                    sync.WaitGroup
	logger                *zerolog.Logger
}

const maxLogLines = 1000

var _ powerbar.Observer = (*Model)(nil)

func NewModel(logger *zerolog.Logger, logChan <-chan string, kind telemetry.Kind) *Model {
	if logger == nil {
		panic("Model: logger cannot be nil")
	}
	if logChan == nil {
		panic("Model: logChan cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.With().Str("component", "ui_model").Logger()
	m := &Model{
		logEvent:              events.NewChannelEvent[string](false),
		statusEvent:           events.NewChannelEvent[Status](true),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		status:                Status{Kind: kind},
		logLines:              make([]string, 0, maxLogLines),
		ctx:                   ctx,
		cancel:                cancel,
		logger:                &l,
	}
	m.statusEvent.Notify(m.status)

	m.wg.Add(1)
	go_func_utils.SafeGo(m.logger, func() { m.readFromLogChannel(logChan) })

	return m
}

// Shutdown stops all goroutines and waits for them to finish
func (m *Model) Shutdown() {
	m.cancel()
	m.wg.Wait()
	m.statusEvent.Close()
	m.logEvent.Close()
	m.closeApplicationEvent.Close()
}

func (m *Model) ListenToLog(ch chan<- string) func() {
	return m.logEvent.Listen(ch)
}

func (m *Model) ListenToStatus(ch chan<- Status) func() {
	return m.statusEvent.Listen(ch)
}

func (m *Model) ListenToCloseApplication(ch chan<- struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

func (m *Model) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}

func (m *Model) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// update applies fn to the status and publishes the result.
func (m *Model) update(fn func(s *Status)) {
	m.mu.Lock()
	fn(&m.status)
	status := m.status
	m.mu.Unlock()

	m.statusEvent.Notify(status)
}

// SetKind selects the source. The reading shown so far belongs to the old
// source and is dropped.
func (m *Model) SetKind(kind telemetry.Kind) {
	m.update(func(s *Status) {
		if s.Kind != kind {
			s.HasValue = false
			s.Value = 0
		}
		s.Kind = kind
	})
}

func (m *Model) SetOpen(open bool) {
	m.update(func(s *Status) {
		s.Open = open
		if open {
			s.LastError = ""
		}
	})
}

func (m *Model) SetError(err error) {
	m.update(func(s *Status) {
		s.LastError = err.Error()
	})
}

func (m *Model) SampleAccepted(telemetry.Kind) {}

func (m *Model) SampleSuppressed(telemetry.Kind, powerbar.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Suppressed++
}

func (m *Model) Rendered(kind telemetry.Kind, value float64, cmd powerbar.RenderCommand) {
	m.update(func(s *Status) {
		if s.Kind != kind {
			return
		}
		s.HasValue = true
		s.Value = value
		s.Command = cmd
		s.Rendered++
	})
}

func (m *Model) Halted(_ telemetry.Kind, err error) {
	m.SetError(err)
}

func (m *Model) readFromLogChannel(logChan <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case line, ok := <-logChan:
			if !ok {
				return
			}

			m.logMu.Lock()
			m.logLines = append(m.logLines, line)
			if len(m.logLines) > maxLogLines {
				m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
			}
			m.logMu.Unlock()

			m.logEvent.Notify(line)
		}
	}
}

// GetLogTail returns the last n lines of logs
func (m *Model) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()

	if n <= 0 {
		return []string{}
	}
	if n >= len(m.logLines) {
		result := make([]string, len(m.logLines))
		copy(result, m.logLines)
		return result
	}
	result := make([]string, n)
	copy(result, m.logLines[len(m.logLines)-n:])
	return result
}

// LogSink is an io.Writer feeding log lines into a channel for the log pane.
// Lines are dropped while the channel is full so logging never blocks.
type LogSink struct {
	ch chan string
}

func NewLogSink(buffer int) *LogSink {
	return &LogSink{ch: make(chan string, buffer)}
}

// Lines is the channel to hand to NewModel.
func (s *LogSink) Lines() <-chan string {
	return s.ch
}

func (s *LogSink) Write(p []byte) (int, error) {
	line := string(p)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	select {
	case s.ch <- line:
	default:
	}
	return len(p), nil
}
