package persist_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unknownchat/backend/internal/models"
	"unknownchat/backend/internal/persist"
)

// memorySource is a Source backed by plain maps.
type memorySource struct {
	mu           sync.Mutex
	participants map[int64]models.Participant
	bans         map[int64]models.BanRecord
	imported     bool
}

func (s *memorySource) ExportState() (map[int64]models.Participant, map[int64]models.BanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants, s.bans
}

func (s *memorySource) ImportState(participants map[int64]models.Participant, bans map[int64]models.BanRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = participants
	s.bans = bans
	s.imported = true
}

func newGateway(t *testing.T, dir string, src persist.Source) *persist.Gateway {
	t.Helper()
	g, err := persist.NewGateway(dir, time.Hour, src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return g
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)
	src := &memorySource{
		participants: map[int64]models.Participant{
			100: {DisplayName: "alice", LastActivity: now},
			200: {DisplayName: "bob", LastActivity: now},
		},
		bans: map[int64]models.BanRecord{
			300: {Until: now.Add(time.Hour), Reason: "spam", BannedAt: now},
		},
	}
	require.NoError(t, newGateway(t, dir, src).Save())

	sink := &memorySource{}
	require.NoError(t, newGateway(t, dir, sink).Load())

	assert.True(t, sink.imported)
	require.Len(t, sink.participants, 2)
	assert.Equal(t, "alice", sink.participants[100].DisplayName)
	require.Len(t, sink.bans, 1)
	assert.Equal(t, "spam", sink.bans[300].Reason)
}

func TestSnapshotKeysAreStringified(t *testing.T) {
	dir := t.TempDir()
	src := &memorySource{
		participants: map[int64]models.Participant{42: {DisplayName: "alice"}},
		bans:         map[int64]models.BanRecord{},
	}
	require.NoError(t, newGateway(t, dir, src).Save())

	data, err := os.ReadFile(filepath.Join(dir, "users.json"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "42")
}

func TestLoadOnFirstBoot(t *testing.T) {
	sink := &memorySource{}
	require.NoError(t, newGateway(t, t.TempDir(), sink).Load())

	assert.True(t, sink.imported)
	assert.Empty(t, sink.participants)
	assert.Empty(t, sink.bans)
}

func TestLoadSkipsUnparseableKeys(t *testing.T) {
	dir := t.TempDir()
	users := `{"42": {"username": "alice"}, "not-a-number": {"username": "ghost"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte(users), 0o644))

	sink := &memorySource{}
	require.NoError(t, newGateway(t, dir, sink).Load())

	require.Len(t, sink.participants, 1)
	assert.Equal(t, "alice", sink.participants[42].DisplayName)
}

func TestLoadRejectsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte("{broken"), 0o644))

	err := newGateway(t, dir, &memorySource{}).Load()
	assert.Error(t, err)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	src := &memorySource{
		participants: map[int64]models.Participant{1: {DisplayName: "a"}},
		bans:         map[int64]models.BanRecord{},
	}
	require.NoError(t, newGateway(t, dir, src).Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp-"), "temp file left behind: %s", entry.Name())
	}
}

func TestRunTakesFinalSnapshotOnShutdown(t *testing.T) {
	dir := t.TempDir()
	src := &memorySource{
		participants: map[int64]models.Participant{7: {DisplayName: "g"}},
		bans:         map[int64]models.BanRecord{},
	}
	g := newGateway(t, dir, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}

	_, err := os.Stat(filepath.Join(dir, "users.json"))
	assert.NoError(t, err, "final snapshot missing")
}
