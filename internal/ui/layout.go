package ui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rivo/tview"

	"github.com/lockevod/karoo-powerbar/internal/powerbar"
)

var (
	ErrAlreadyAttached = errors.New("bar already attached")
	ErrNotAttached     = errors.New("bar not attached")
)

// Location is where the bar sits on screen.
type Location int

const (
	LocationTop Location = iota
	LocationBottom
)

func (l Location) String() string {
	if l == LocationBottom {
		return "bottom"
	}
	return "top"
}

func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return LocationTop, nil
	case "", "bottom":
		return LocationBottom, nil
	default:
		return LocationBottom, fmt.Errorf("unknown bar location %q", s)
	}
}

// barHeight is the number of rows the bar takes when attached.
const barHeight = 1

// Layout stacks the bar above or below the main content. Attach and Detach
// rebuild the root flex, so they must run on the UI event loop.
type Layout struct {
	root     *tview.Flex
	content  tview.Primitive
	bar      tview.Primitive
	location Location

	mu       sync.Mutex
	attached bool
}

var _ powerbar.Surface = (*Layout)(nil)

func NewLayout(content, bar tview.Primitive, location Location) *Layout {
	if content == nil {
		panic("Layout: content cannot be nil")
	}
	if bar == nil {
		panic("Layout: bar cannot be nil")
	}
	l := &Layout{
		root:     tview.NewFlex().SetDirection(tview.FlexRow),
		content:  content,
		bar:      bar,
		location: location,
	}
	l.root.AddItem(content, 0, 1, true)
	return l
}

// Root is the primitive to hand to the application.
func (l *Layout) Root() *tview.Flex {
	return l.root
}

func (l *Layout) Location() Location {
	return l.location
}

func (l *Layout) Attach() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.attached {
		return ErrAlreadyAttached
	}
	l.root.Clear()
	if l.location == LocationBottom {
		l.root.AddItem(l.content, 0, 1, true)
		l.root.AddItem(l.bar, barHeight, 0, false)
	} else {
		l.root.AddItem(l.bar, barHeight, 0, false)
		l.root.AddItem(l.content, 0, 1, true)
	}
	l.attached = true
	return nil
}

func (l *Layout) Detach() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.attached {
		return ErrNotAttached
	}
	l.root.Clear()
	l.root.AddItem(l.content, 0, 1, true)
	l.attached = false
	return nil
}

func (l *Layout) IsAttached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attached
}
