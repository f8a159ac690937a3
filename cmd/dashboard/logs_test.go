package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unknownchat/backend/internal/models"
)

func writeDayFixture(t *testing.T, dir, date, body string) {
	t.Helper()
	name := filepath.Join(dir, "chat_logs_"+date+".json")
	require.NoError(t, os.WriteFile(name, []byte(body), 0o644))
}

func TestLoadRecentNewestFirstWithLimit(t *testing.T) {
	dir := t.TempDir()
	writeDayFixture(t, dir, "2025-06-01", `{"chats":{}}`)
	writeDayFixture(t, dir, "2025-06-03", `{"chats":{}}`)
	writeDayFixture(t, dir, "2025-06-02", `{"chats":{}}`)

	recent, err := loadRecent(dir, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "2025-06-03", recent[0].Date)
	assert.Equal(t, "2025-06-02", recent[1].Date)

	all, err := loadRecent(dir, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLoadRecentParsesSessions(t *testing.T) {
	dir := t.TempDir()
	writeDayFixture(t, dir, "2025-06-01", `{
		"created_at": "2025-06-01T08:00:00Z",
		"chats": {
			"1_2": {
				"users": [{"id": 1, "username": "alice"}, {"id": 2, "username": "bob"}],
				"messages": [
					{"id": "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", "timestamp": "2025-06-01T08:01:00Z",
					 "sender_id": 1, "receiver_id": 2, "message_type": "text", "content": "hi"}
				]
			}
		}
	}`)

	recent, err := loadRecent(dir, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	session := recent[0].Log.Chats["1_2"]
	require.NotNil(t, session)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, models.MessageText, session.Messages[0].Type)
}

func TestFindParticipantByIDAndName(t *testing.T) {
	session := &models.Session{Users: []models.SessionUser{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob"},
	}}

	id, partner, ok := findParticipant(session, 1, "")
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "bob", partner)

	id, partner, ok = findParticipant(session, 0, "BOB")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)
	assert.Equal(t, "alice", partner)

	_, _, ok = findParticipant(session, 99, "")
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "0123456789...", truncate("0123456789abcdef", 10))
}
