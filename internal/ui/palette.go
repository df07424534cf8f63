package ui

import (
	"github.com/gdamore/tcell/v2"

	"github.com/lockevod/karoo-powerbar/internal/profile"
)

var zoneColors = map[profile.ColorID]tcell.Color{
	profile.ColorRecovery:      tcell.ColorGray,
	profile.ColorEndurance:     tcell.ColorBlue,
	profile.ColorAerobic:       tcell.ColorTeal,
	profile.ColorTempo:         tcell.ColorGreen,
	profile.ColorThreshold:     tcell.ColorYellow,
	profile.ColorVO2Max:        tcell.ColorOrange,
	profile.ColorAnaerobic:     tcell.ColorRed,
	profile.ColorNeuromuscular: tcell.ColorPurple,
}

// ColorFor maps a zone color to a terminal color. Names outside the palette
// are looked up as tcell color names ("navy", "#ff8800"); anything else falls
// back to the default zone color.
func ColorFor(id profile.ColorID) tcell.Color {
	if c, ok := zoneColors[id]; ok {
		return c
	}
	if c := tcell.GetColor(string(id)); c != tcell.ColorDefault {
		return c
	}
	return zoneColors[profile.DefaultColor]
}
