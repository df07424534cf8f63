package profile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "profile.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SaveLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := Derive(240, 55, 190)
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %+v", got)

	// a second save replaces both tables
	want = Derive(260, 50, 188)
	want.HeartRateZones = want.HeartRateZones[:3]
	require.NoError(t, store.Save(ctx, want))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %+v", got)
	assert.Len(t, got.HeartRateZones, 3)
}

func TestSQLiteStore_RejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	p := Derive(200, 60, 185)
	p.MaxHR = 0
	assert.ErrorIs(t, store.Save(context.Background(), p), ErrInvalidHeartRate)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, testLogger())
	require.NoError(t, err)
	want := Derive(300, 45, 180)
	require.NoError(t, store.Save(ctx, want))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestLoadOrSeed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seed := Derive(200, 60, 185)
	got, err := LoadOrSeed(ctx, store, seed, false)
	require.NoError(t, err)
	assert.True(t, seed.Equal(got))

	// a stored profile wins over a new seed
	got, err = LoadOrSeed(ctx, store, Derive(400, 40, 200), false)
	require.NoError(t, err)
	assert.True(t, seed.Equal(got))
}

func TestLoadOrSeed_ReplaceOnRelaunch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, testLogger())
	require.NoError(t, err)
	_, err = LoadOrSeed(ctx, store, Derive(200, 60, 185), false)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path, testLogger())
	require.NoError(t, err)
	defer store.Close()

	want := Derive(300, 60, 195)
	got, err := LoadOrSeed(ctx, store, want, true)
	require.NoError(t, err)
	assert.Equal(t, 450, got.PowerZones[len(got.PowerZones)-1].Min)
	assert.Equal(t, 195, got.MaxHR)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(stored), "got %+v", stored)
}

func TestLoadOrSeed_RejectsInvalidStoredProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Derive(200, 60, 185)))

	// an external edit breaks the zone order
	_, err := store.db.ExecContext(ctx, `UPDATE zones SET min = 500 WHERE kind = 'power' AND idx = 1`)
	require.NoError(t, err)

	_, err = LoadOrSeed(ctx, store, Derive(200, 60, 185), false)
	assert.ErrorIs(t, err, ErrZonesNotSorted)

	// replacing with a valid seed recovers
	got, err := LoadOrSeed(ctx, store, Derive(200, 60, 185), true)
	require.NoError(t, err)
	assert.NoError(t, got.Validate())
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("", testLogger())
	assert.Error(t, err)
}
