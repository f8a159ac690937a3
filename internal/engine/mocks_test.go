package engine_test

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"unknownchat/backend/internal/engine"
	"unknownchat/backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type endCall struct {
	Actor  int64
	Other  int64
	Reason models.EndReason
}

// recordingAuditor captures the audit trail for assertions.
type recordingAuditor struct {
	mu       sync.Mutex
	starts   [][2]int64
	ends     []endCall
	messages []models.MessageRecord
}

func (a *recordingAuditor) SessionStart(x, y int64, nameX, nameY string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = append(a.starts, [2]int64{x, y})
	return nil
}

func (a *recordingAuditor) SessionEnd(actorID, otherID int64, reason models.EndReason) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ends = append(a.ends, endCall{actorID, otherID, reason})
	return nil
}

func (a *recordingAuditor) LogMessage(rec models.MessageRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, rec)
	return nil
}

func (a *recordingAuditor) endReasons() []models.EndReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	reasons := make([]models.EndReason, len(a.ends))
	for i, e := range a.ends {
		reasons[i] = e.Reason
	}
	return reasons
}

// fakeNotifier records notifications and can be told to fail the next
// pairing announcements.
type fakeNotifier struct {
	mu         sync.Mutex
	paired     [][2]int64
	ended      []endCall
	banned     []int64
	failPaired int
}

func (n *fakeNotifier) OnPaired(a, b int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failPaired > 0 {
		n.failPaired--
		return errors.New("recipient unreachable")
	}
	n.paired = append(n.paired, [2]int64{a, b})
	return nil
}

func (n *fakeNotifier) OnSessionEnded(actorID, otherID int64, reason models.EndReason) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, endCall{actorID, otherID, reason})
	return nil
}

func (n *fakeNotifier) OnBanned(id int64, reason string, until time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.banned = append(n.banned, id)
	return nil
}

func newTestEngine() (*engine.Engine, *recordingAuditor, *fakeNotifier) {
	auditor := &recordingAuditor{}
	notifier := &fakeNotifier{}
	eng := engine.New(testLogger(), auditor)
	eng.SetNotifier(notifier)
	return eng, auditor, notifier
}
