package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unknownchat/backend/internal/engine"
	"unknownchat/backend/internal/models"
)

func TestRequestPairingQueuesFirstArrival(t *testing.T) {
	eng, _, notifier := newTestEngine()

	result, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.True(t, eng.IsWaiting(1))
	assert.False(t, eng.IsChatting(1))
	assert.Empty(t, notifier.paired)
}

func TestRequestPairingMatchesSecondArrival(t *testing.T) {
	eng, auditor, notifier := newTestEngine()

	_, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)

	result, err := eng.RequestPairing(2, "bob", "", "")
	require.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Equal(t, int64(1), result.PartnerID)

	assert.True(t, eng.IsChatting(1))
	assert.True(t, eng.IsChatting(2))
	assert.False(t, eng.IsWaiting(1))

	require.Len(t, notifier.paired, 1)
	assert.Equal(t, [2]int64{1, 2}, notifier.paired[0])
	require.Len(t, auditor.starts, 1)
	assert.Equal(t, [2]int64{1, 2}, auditor.starts[0])
}

func TestRequestPairingIsFirstComeFirstServed(t *testing.T) {
	eng, _, notifier := newTestEngine()

	// Arrivals: 1, 2, 3, 4. Pairs must form in arrival order regardless of
	// any declared preferences.
	_, err := eng.RequestPairing(1, "a", "m", "f")
	require.NoError(t, err)
	result2, err := eng.RequestPairing(2, "b", "f", "f")
	require.NoError(t, err)
	_, err = eng.RequestPairing(3, "c", "", "")
	require.NoError(t, err)
	result4, err := eng.RequestPairing(4, "d", "", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), result2.PartnerID)
	assert.Equal(t, int64(3), result4.PartnerID)
	assert.Equal(t, [][2]int64{{1, 2}, {3, 4}}, notifier.paired)
}

func TestRequestPairingWhileWaitingStaysQueuedOnce(t *testing.T) {
	eng, _, _ := newTestEngine()

	_, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)
	result, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)

	assert.True(t, result.Queued, "a repeat request must never self-pair")
	assert.Equal(t, 1, eng.Stats().Waiting)
}

func TestRequestPairingTearsDownCurrentSession(t *testing.T) {
	eng, auditor, notifier := newTestEngine()

	_, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)
	_, err = eng.RequestPairing(2, "bob", "", "")
	require.NoError(t, err)

	// 1 asks for a new partner while still paired with 2.
	result, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)

	assert.True(t, result.Queued)
	assert.False(t, eng.IsChatting(2), "the abandoned partner must be released")
	assert.Contains(t, auditor.endReasons(), models.EndStartedNew)
	require.NotEmpty(t, notifier.ended)
	assert.Equal(t, endCall{1, 2, models.EndStartedNew}, notifier.ended[0])
}

func TestRequestPairingRejectsBanned(t *testing.T) {
	eng, _, _ := newTestEngine()

	_, err := eng.AdminBan(42, 1, "spam")
	require.NoError(t, err)

	_, err = eng.RequestPairing(42, "mallory", "", "")
	var banned *engine.BannedError
	require.ErrorAs(t, err, &banned)
	assert.Equal(t, "spam", banned.Reason)
	assert.False(t, banned.Until.IsZero())
	assert.False(t, eng.IsWaiting(42), "a banned participant must not enter the queue")
}

func TestFailedPairingNotificationRollsBack(t *testing.T) {
	eng, auditor, notifier := newTestEngine()
	notifier.failPaired = 1

	_, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)

	_, err = eng.RequestPairing(2, "bob", "", "")
	var delivery *engine.DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, int64(2), delivery.ParticipantID)

	// Both sides are back in the queue, nobody is paired, and the aborted
	// session is closed in the audit trail.
	assert.False(t, eng.IsChatting(1))
	assert.False(t, eng.IsChatting(2))
	assert.True(t, eng.IsWaiting(1))
	assert.True(t, eng.IsWaiting(2))
	assert.Contains(t, auditor.endReasons(), models.EndPartnerUnavailable)
}

func TestRollbackBacklogDrainsOnNextRequest(t *testing.T) {
	eng, _, notifier := newTestEngine()
	notifier.failPaired = 1

	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, err := eng.RequestPairing(2, "bob", "", "")
	var delivery *engine.DeliveryError
	require.ErrorAs(t, err, &delivery)

	// A third request finds 1 and 2 already waiting; the oldest two pair up
	// and the newcomer keeps waiting.
	result, err := eng.RequestPairing(3, "carol", "", "")
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.True(t, eng.IsChatting(1))
	assert.True(t, eng.IsChatting(2))
	assert.True(t, eng.IsWaiting(3))
	assert.Equal(t, [][2]int64{{1, 2}}, notifier.paired)
}

func TestLeaveSessionFromQueue(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)

	result, err := eng.LeaveSession(1)
	require.NoError(t, err)
	assert.True(t, result.FromQueue)
	assert.Nil(t, result.PartnerID)
	assert.False(t, eng.IsWaiting(1))
}

func TestLeaveSessionClosesActiveSession(t *testing.T) {
	eng, auditor, notifier := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")

	result, err := eng.LeaveSession(1)
	require.NoError(t, err)
	require.NotNil(t, result.PartnerID)
	assert.Equal(t, int64(2), *result.PartnerID)

	assert.False(t, eng.IsChatting(1))
	assert.False(t, eng.IsChatting(2))
	assert.Equal(t, []models.EndReason{models.EndManual}, auditor.endReasons())
	require.Len(t, notifier.ended, 1)
	assert.Equal(t, endCall{1, 2, models.EndManual}, notifier.ended[0])
}

func TestLeaveSessionWithoutStateIsNotFound(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, err := eng.LeaveSession(99)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestForwardMessageResolvesPartnerAndAudits(t *testing.T) {
	eng, auditor, _ := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")

	fr, err := eng.ForwardMessage(1, models.MessageText, "hello", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fr.ReceiverID)
	assert.Equal(t, "alice", fr.SenderName)
	assert.Equal(t, "bob", fr.ReceiverName)

	require.Len(t, auditor.messages, 1)
	rec := auditor.messages[0]
	assert.Equal(t, int64(1), rec.SenderID)
	assert.Equal(t, int64(2), rec.ReceiverID)
	assert.Equal(t, models.MessageText, rec.Type)
	assert.Equal(t, "hello", rec.Content)
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestForwardMessageWithoutSession(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, err := eng.ForwardMessage(1, models.MessageText, "hello", "", "")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDeliveryFailedTearsDownSession(t *testing.T) {
	eng, auditor, _ := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")

	partner, ok := eng.DeliveryFailed(1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), partner)
	assert.False(t, eng.IsChatting(1))
	assert.Equal(t, []models.EndReason{models.EndConnectionLost}, auditor.endReasons())

	_, ok = eng.DeliveryFailed(1)
	assert.False(t, ok)
}

func TestAdminBanEndsSessionAtomically(t *testing.T) {
	eng, auditor, notifier := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")

	outcome, err := eng.AdminBan(1, 24, "spam")
	require.NoError(t, err)
	require.NotNil(t, outcome.EndedPartner)
	assert.Equal(t, int64(2), *outcome.EndedPartner)
	assert.False(t, outcome.RemovedFromQueue)
	assert.Equal(t, "spam", outcome.Record.Reason)

	assert.False(t, eng.IsChatting(2))
	assert.Contains(t, auditor.endReasons(), models.AdminEndReason("spam"))
	assert.Contains(t, notifier.banned, int64(1))

	_, banned := eng.IsBanned(1)
	assert.True(t, banned)
}

func TestAdminBanRemovesFromQueue(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")

	outcome, err := eng.AdminBan(1, 1, "spam")
	require.NoError(t, err)
	assert.True(t, outcome.RemovedFromQueue)
	assert.Nil(t, outcome.EndedPartner)
	assert.False(t, eng.IsWaiting(1))
}

func TestAdminUnban(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, _ = eng.AdminBan(1, 1, "spam")

	assert.True(t, eng.AdminUnban(1))
	assert.False(t, eng.AdminUnban(1))

	_, banned := eng.IsBanned(1)
	assert.False(t, banned)

	result, err := eng.RequestPairing(1, "alice", "", "")
	require.NoError(t, err)
	assert.True(t, result.Queued)
}

func TestAdminForceEndSession(t *testing.T) {
	eng, auditor, _ := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")

	partner, ok := eng.AdminForceEndSession(1, "reported content")
	assert.True(t, ok)
	assert.Equal(t, int64(2), partner)
	assert.False(t, eng.IsChatting(1))
	assert.Contains(t, auditor.endReasons(), models.AdminEndReason("reported content"))

	_, ok = eng.AdminForceEndSession(1, "again")
	assert.False(t, ok)
}

func TestStatsSnapshot(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")
	_, _ = eng.RequestPairing(3, "carol", "", "")
	_, _ = eng.AdminBan(9, 1, "spam")

	stats := eng.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 1, stats.Waiting)
	assert.Equal(t, 1, stats.ActiveBans)
	assert.Equal(t, 3, stats.TotalParticipants)
	assert.False(t, stats.StartedAt.IsZero())
}

func TestExportImportRoundTrip(t *testing.T) {
	eng, _, _ := newTestEngine()
	require.NoError(t, eng.Register(1, "alice"))
	_, _ = eng.RequestPairing(1, "alice", "", "")
	_, _ = eng.RequestPairing(2, "bob", "", "")
	_, _ = eng.AdminBan(3, 1, "spam")

	participants, bans := eng.ExportState()

	restored, _, _ := newTestEngine()
	restored.ImportState(participants, bans)

	assert.Equal(t, "alice", restored.DisplayName(1))
	assert.Equal(t, "bob", restored.DisplayName(2))
	_, banned := restored.IsBanned(3)
	assert.True(t, banned)

	// Live sessions do not survive a restart.
	assert.False(t, restored.IsChatting(1))
	assert.False(t, restored.IsChatting(2))
}

func TestImportPrefersLiveState(t *testing.T) {
	eng, _, _ := newTestEngine()
	require.NoError(t, eng.Register(1, "current name"))

	eng.ImportState(map[int64]models.Participant{
		1: {DisplayName: "snapshot name"},
		2: {DisplayName: "restored"},
	}, nil)

	assert.Equal(t, "current name", eng.DisplayName(1))
	assert.Equal(t, "restored", eng.DisplayName(2))
}

func TestZeroIDIsRejected(t *testing.T) {
	eng, _, _ := newTestEngine()

	assert.ErrorIs(t, eng.Register(0, "x"), engine.ErrValidation)
	_, err := eng.RequestPairing(0, "x", "", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = eng.LeaveSession(0)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = eng.ForwardMessage(0, models.MessageText, "", "", "")
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = eng.AdminBan(0, 1, "x")
	assert.ErrorIs(t, err, engine.ErrValidation)
}
