package ui

import (
	"math"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lockevod/karoo-powerbar/internal/powerbar"
	"github.com/lockevod/karoo-powerbar/internal/profile"
)

// ProgressBar is a one line bar filled left to right in the current zone color.
// Progress outside [0, 1] is accepted and drawn clamped.
type ProgressBar struct {
	*tview.Box

	mu       sync.RWMutex
	color    profile.ColorID
	progress float64
	redraws  int
}

var _ powerbar.RenderTarget = (*ProgressBar)(nil)

func NewProgressBar() *ProgressBar {
	return &ProgressBar{
		Box:   tview.NewBox(),
		color: profile.DefaultColor,
	}
}

func (b *ProgressBar) SetColor(color profile.ColorID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = color
}

func (b *ProgressBar) SetProgress(fraction float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress = fraction
}

// Redraw marks the bar dirty. The actual paint happens in Draw, which the
// executor triggers after every queued update.
func (b *ProgressBar) Redraw() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redraws++
}

// State returns what the bar currently shows.
func (b *ProgressBar) State() (profile.ColorID, float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.color, b.progress
}

func (b *ProgressBar) Redraws() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.redraws
}

// filledCells returns how many of width cells are filled for progress.
func filledCells(progress float64, width int) int {
	if width <= 0 || math.IsNaN(progress) || progress <= 0 {
		return 0
	}
	if progress >= 1 {
		return width
	}
	return int(math.Round(progress * float64(width)))
}

func (b *ProgressBar) Draw(screen tcell.Screen) {
	b.Box.DrawForSubclass(screen, b)
	x, y, width, height := b.GetInnerRect()
	if width <= 0 || height <= 0 {
		return
	}

	color, progress := b.State()
	filled := filledCells(progress, width)
	fill := tcell.StyleDefault.Background(ColorFor(color))
	empty := tcell.StyleDefault.Background(tcell.ColorBlack)

	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			style := empty
			if col < filled {
				style = fill
			}
			screen.SetContent(x+col, y+row, ' ', nil, style)
		}
	}
}
