package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightline-game/nightline/pkg/state"
)

func newTestStorage(t *testing.T, dataDir string) *RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := NewRedisStorage(mr.Addr(), dataDir, logger)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	ctx := context.Background()

	gs := state.NewSessionState("night_one.json")
	gs.TimeMinutes = 42
	gs.SetFlags = []state.Flag{{ID: "karen_confession", SetAtMinutes: 30}}
	gs.MissedCallIDs = []string{"dropped_call"}
	gs.MissedCallCount = 1
	dispatch := 150
	gs.DispatchTimeMinutes = &dispatch

	require.NoError(t, s.SaveSession(ctx, gs.ID, gs))

	loaded, err := s.LoadSession(ctx, gs.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, gs.ID, loaded.ID)
	assert.Equal(t, "night_one.json", loaded.NightFile)
	assert.Equal(t, 42, loaded.TimeMinutes)
	assert.Equal(t, gs.SetFlags, loaded.SetFlags)
	assert.Equal(t, []string{"dropped_call"}, loaded.MissedCallIDs)
	require.NotNil(t, loaded.DispatchTimeMinutes)
	assert.Equal(t, 150, *loaded.DispatchTimeMinutes)
}

func TestLoadSessionNotFound(t *testing.T) {
	s := newTestStorage(t, t.TempDir())

	loaded, err := s.LoadSession(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	ctx := context.Background()

	gs := state.NewSessionState("night_one.json")
	require.NoError(t, s.SaveSession(ctx, gs.ID, gs))
	require.NoError(t, s.DeleteSession(ctx, gs.ID))

	loaded, err := s.LoadSession(ctx, gs.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestProgressRoundTrip(t *testing.T) {
	s := newTestStorage(t, t.TempDir())
	ctx := context.Background()

	p := &state.Progress{}
	p.RecordNight("night_one", "exposed", []state.Flag{{ID: "reported_caller", SetAtMinutes: 90}})
	require.NoError(t, s.SaveProgress(ctx, "default", p))

	loaded, err := s.LoadProgress(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"night_one"}, loaded.CompletedNights)
	assert.Equal(t, "exposed", loaded.EndStateByNight["night_one"])
	assert.Equal(t, 1, loaded.CurrentNightIndex)
	assert.Equal(t, []state.Flag{{ID: "reported_caller", SetAtMinutes: 90}}, loaded.PersistentFlags)
}

func TestLoadProgressNewProfile(t *testing.T) {
	s := newTestStorage(t, t.TempDir())

	p, err := s.LoadProgress(context.Background(), "fresh")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Empty(t, p.CompletedNights)
	assert.Equal(t, 0, p.CurrentNightIndex)
}

func TestNightsFromFilesystem(t *testing.T) {
	dataDir := t.TempDir()
	nightsDir := filepath.Join(dataDir, "nights")
	require.NoError(t, os.MkdirAll(nightsDir, 0o755))

	nightJSON := `{"id":"night_one","name":"Night One","default_end_state":"absorbed","default_ending":"ending_absorbed"}`
	require.NoError(t, os.WriteFile(filepath.Join(nightsDir, "night_one.json"), []byte(nightJSON), 0o644))

	s := newTestStorage(t, dataDir)
	ctx := context.Background()

	nights, err := s.ListNights(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Night One": "night_one.json"}, nights)

	n, err := s.GetNight(ctx, "night_one.json")
	require.NoError(t, err)
	assert.Equal(t, "night_one", n.ID)
	assert.Equal(t, "night_one.json", n.FileName)

	_, err = s.GetNight(ctx, "missing.json")
	assert.Error(t, err)

	_, err = s.GetNight(ctx, "../escape.json")
	assert.Error(t, err)
}
