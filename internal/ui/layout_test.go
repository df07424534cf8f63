package ui

import (
	"testing"

	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("Bottom")
	require.NoError(t, err)
	assert.Equal(t, LocationBottom, loc)

	loc, err = ParseLocation("")
	require.NoError(t, err)
	assert.Equal(t, LocationBottom, loc)

	loc, err = ParseLocation(" TOP ")
	require.NoError(t, err)
	assert.Equal(t, LocationTop, loc)

	_, err = ParseLocation("left")
	assert.Error(t, err)

	assert.Equal(t, "bottom", LocationBottom.String())
	assert.Equal(t, "top", LocationTop.String())
}

func TestLayout_AttachTop(t *testing.T) {
	content, bar := tview.NewBox(), NewProgressBar()
	l := NewLayout(content, bar, LocationTop)
	assert.Equal(t, 1, l.Root().GetItemCount())

	require.NoError(t, l.Attach())
	assert.True(t, l.IsAttached())
	require.Equal(t, 2, l.Root().GetItemCount())
	assert.Equal(t, tview.Primitive(bar), l.Root().GetItem(0))
	assert.Equal(t, tview.Primitive(content), l.Root().GetItem(1))
}

func TestLayout_AttachBottom(t *testing.T) {
	content, bar := tview.NewBox(), NewProgressBar()
	l := NewLayout(content, bar, LocationBottom)

	require.NoError(t, l.Attach())
	require.Equal(t, 2, l.Root().GetItemCount())
	assert.Equal(t, tview.Primitive(content), l.Root().GetItem(0))
	assert.Equal(t, tview.Primitive(bar), l.Root().GetItem(1))
}

func TestLayout_Detach(t *testing.T) {
	content, bar := tview.NewBox(), NewProgressBar()
	l := NewLayout(content, bar, LocationTop)

	assert.ErrorIs(t, l.Detach(), ErrNotAttached)

	require.NoError(t, l.Attach())
	assert.ErrorIs(t, l.Attach(), ErrAlreadyAttached)

	require.NoError(t, l.Detach())
	assert.False(t, l.IsAttached())
	require.Equal(t, 1, l.Root().GetItemCount())
	assert.Equal(t, tview.Primitive(content), l.Root().GetItem(0))

	// reattaching works after a detach
	assert.NoError(t, l.Attach())
}

func TestNewLayout_Panics(t *testing.T) {
	assert.Panics(t, func() { NewLayout(nil, NewProgressBar(), LocationTop) })
	assert.Panics(t, func() { NewLayout(tview.NewBox(), nil, LocationTop) })
}
