package powerbar

import (
	"context"
	"errors"

	"github.com/lockevod/karoo-powerbar/internal/profile"
	"github.com/lockevod/karoo-powerbar/internal/telemetry"
)

// ErrAlreadyOpen is returned by Open while a previous Open has not been closed.
var ErrAlreadyOpen = errors.New("overlay already open")

// RenderTarget is the visual bar. Its methods are only called from the UI
// context, through a UIExecutor.
type RenderTarget interface {
	SetColor(color profile.ColorID)
	SetProgress(fraction float64)
	Redraw()
}

// UIExecutor runs fn on the single UI context, in submission order.
type UIExecutor interface {
	Do(fn func())
}

// Surface is where the bar lives. Attach and Detach run on the UI context.
type Surface interface {
	Attach() error
	Detach() error
}

// Connection is the handle to the head unit for one open overlay.
type Connection interface {
	Telemetry() telemetry.Provider
	Profiles() profile.Provider
	Close() error
}

// Connector creates a Connection able to serve kind.
type Connector interface {
	Connect(ctx context.Context, kind telemetry.Kind) (Connection, error)
}
