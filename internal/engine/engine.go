// Package engine implements the anonymous pairwise matchmaking core: a FIFO
// waiting pool, a symmetric session directory and a lazily-expiring ban store,
// orchestrated under one critical section so that admission checks, queue
// mutation and session writes can never interleave with a concurrent ban.
//
// Notifications to participants happen strictly after state is committed and
// outside the lock. A failed pairing notification rolls the match back; every
// other notification failure leaves state authoritative and is only logged.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"unknownchat/backend/internal/models"
)

// Auditor receives the session lifecycle and message metadata trail.
// Implementations must tolerate being called concurrently.
type Auditor interface {
	SessionStart(a, b int64, nameA, nameB string) error
	SessionEnd(actorID, otherID int64, reason models.EndReason) error
	LogMessage(rec models.MessageRecord) error
}

// Notifier is the transport-facing callback surface. A returned error means
// the participant could not be reached (DeliveryFailed in transport terms);
// for OnPaired that triggers a rollback of the match.
type Notifier interface {
	OnPaired(a, b int64) error
	OnSessionEnded(actorID, otherID int64, reason models.EndReason) error
	OnBanned(id int64, reason string, until time.Time) error
}

// MatchResult is the outcome of a pairing request.
type MatchResult struct {
	// Queued is true when the caller is waiting for a partner.
	Queued bool
	// PartnerID is set when the caller was matched.
	PartnerID int64
}

// LeaveResult is the outcome of a leave request.
type LeaveResult struct {
	// PartnerID is the former partner when an active session was closed.
	PartnerID *int64
	// FromQueue is true when the caller was only waiting.
	FromQueue bool
}

// ForwardResult tells the transport where to deliver a message.
type ForwardResult struct {
	ReceiverID   int64
	SenderName   string
	ReceiverName string
}

// BanOutcome reports what an admin ban actually did.
type BanOutcome struct {
	Record           models.BanRecord
	EndedPartner     *int64
	RemovedFromQueue bool
}

// Stats is a point-in-time view of the engine for reporting.
type Stats struct {
	StartedAt         time.Time        `json:"started_at"`
	TotalParticipants int              `json:"total_participants"`
	Waiting           int              `json:"waiting"`
	ActiveSessions    int              `json:"active_sessions"`
	ActiveBans        int              `json:"active_bans"`
	Sessions          [][2]int64       `json:"sessions,omitempty"`
	WaitingEntries    []models.WaitingEntry `json:"-"`
}

// Engine owns all mutable matchmaking state. Every operation takes the single
// mutex for its state transition and releases it before any audit write or
// participant notification.
type Engine struct {
	mu           sync.Mutex
	log          *slog.Logger
	startedAt    time.Time
	participants map[int64]*models.Participant
	pool         *WaitingPool
	directory    *SessionDirectory
	bans         *BanStore
	audit        Auditor
	notifier     Notifier
}

// New builds an engine. The notifier is attached later with SetNotifier,
// because the transport needs the engine first.
func New(log *slog.Logger, audit Auditor) *Engine {
	return &Engine{
		log:          log,
		startedAt:    time.Now(),
		participants: make(map[int64]*models.Participant),
		pool:         NewWaitingPool(),
		directory:    NewSessionDirectory(),
		bans:         NewBanStore(nil),
		audit:        audit,
	}
}

// SetNotifier attaches the transport callback surface.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Register upserts the participant on first contact (the /start path).
func (e *Engine) Register(id int64, displayName string) error {
	if id == 0 {
		return ErrValidation
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertLocked(id, displayName)
	return nil
}

// RequestPairing runs the full admission flow: tear down any session the
// requester is still in, consult the ban store exactly once, enqueue, and try
// to form pairs from the front of the queue. Formed pairs are committed and
// audited before either side is notified; if a pairing notification fails the
// pair is rolled back and both members rejoin the back of the queue.
func (e *Engine) RequestPairing(id int64, displayName, selfAttr, wantAttr string) (*MatchResult, error) {
	if id == 0 {
		return nil, ErrValidation
	}

	e.mu.Lock()
	p := e.upsertLocked(id, displayName)
	if selfAttr != "" {
		p.SelfAttr = selfAttr
	}
	if wantAttr != "" {
		p.WantAttr = wantAttr
	}

	var endedPartner *int64
	if partner, ok := e.directory.Teardown(id); ok {
		e.clearPartnersLocked(id, partner)
		endedPartner = lo.ToPtr(partner)
	}

	if rec, ok := e.bans.Get(id); ok {
		e.mu.Unlock()
		e.finishTeardown(id, endedPartner, models.EndStartedNew)
		return nil, &BannedError{Reason: rec.Reason, Until: rec.Until}
	}

	e.pool.Remove(id)
	e.pool.Enqueue(models.WaitingEntry{
		ParticipantID: id,
		DisplayName:   p.DisplayName,
		SelfAttr:      p.SelfAttr,
		WantAttr:      p.WantAttr,
		EnqueuedAt:    time.Now(),
	})

	// Normally at most one pair forms per request; a rollback can leave a
	// backlog, which drains here.
	var pairs [][2]models.WaitingEntry
	for {
		first, second, ok := e.pool.DequeuePair()
		if !ok {
			break
		}
		if err := e.directory.Pair(first.ParticipantID, second.ParticipantID); err != nil {
			e.log.Error("refusing inconsistent pair", "first", first.ParticipantID, "second", second.ParticipantID, "err", err)
			continue
		}
		e.setPartnersLocked(first.ParticipantID, second.ParticipantID)
		pairs = append(pairs, [2]models.WaitingEntry{first, second})
	}
	e.mu.Unlock()

	e.finishTeardown(id, endedPartner, models.EndStartedNew)

	result := &MatchResult{Queued: true}
	var deliveryErr error
	for _, pair := range pairs {
		a, b := pair[0], pair[1]
		if err := e.audit.SessionStart(a.ParticipantID, b.ParticipantID, a.DisplayName, b.DisplayName); err != nil {
			e.log.Error("audit session start failed", "session", models.CanonicalSessionID(a.ParticipantID, b.ParticipantID), "err", err)
		}
		if err := e.notifyPaired(a.ParticipantID, b.ParticipantID); err != nil {
			e.rollbackMatch(a, b)
			if a.ParticipantID == id || b.ParticipantID == id {
				deliveryErr = &DeliveryError{ParticipantID: id, Err: err}
			}
			continue
		}
		switch id {
		case a.ParticipantID:
			result = &MatchResult{PartnerID: b.ParticipantID}
		case b.ParticipantID:
			result = &MatchResult{PartnerID: a.ParticipantID}
		}
	}
	if deliveryErr != nil {
		return nil, deliveryErr
	}
	return result, nil
}

// LeaveSession closes the caller's session, or removes them from the waiting
// pool when they were only queued. ErrNotFound means they were neither.
func (e *Engine) LeaveSession(id int64) (*LeaveResult, error) {
	if id == 0 {
		return nil, ErrValidation
	}
	e.mu.Lock()
	if partner, ok := e.directory.Teardown(id); ok {
		e.clearPartnersLocked(id, partner)
		e.mu.Unlock()
		e.finishTeardown(id, lo.ToPtr(partner), models.EndManual)
		return &LeaveResult{PartnerID: lo.ToPtr(partner)}, nil
	}
	removed := e.pool.Remove(id)
	e.mu.Unlock()
	if removed {
		return &LeaveResult{FromQueue: true}, nil
	}
	return nil, ErrNotFound
}

// ForwardMessage resolves the sender's partner and records the message
// metadata in the audit trail. Actual content delivery is the transport's
// job; an audit write failure is logged and never blocks the message.
func (e *Engine) ForwardMessage(senderID int64, msgType models.MessageType, content, mediaRef, caption string) (*ForwardResult, error) {
	if senderID == 0 {
		return nil, ErrValidation
	}
	e.mu.Lock()
	receiverID, ok := e.directory.PartnerOf(senderID)
	if !ok {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	senderName := e.displayNameLocked(senderID)
	receiverName := e.displayNameLocked(receiverID)
	if p, exists := e.participants[senderID]; exists {
		p.LastActivity = time.Now()
	}
	e.mu.Unlock()

	rec := models.MessageRecord{
		ID:               uuid.New(),
		Timestamp:        time.Now(),
		SenderID:         senderID,
		SenderUsername:   senderName,
		ReceiverID:       receiverID,
		ReceiverUsername: receiverName,
		Type:             msgType,
		Content:          content,
		MediaURL:         mediaRef,
		Caption:          caption,
	}
	if err := e.audit.LogMessage(rec); err != nil {
		e.log.Error("audit message write failed", "sender", senderID, "receiver", receiverID, "err", err)
	}
	return &ForwardResult{ReceiverID: receiverID, SenderName: senderName, ReceiverName: receiverName}, nil
}

// DeliveryFailed is the transport's report that a forwarded message could not
// reach the partner. The session is torn down with reason connection_lost and
// the former partner id is returned; false means there was no session.
func (e *Engine) DeliveryFailed(senderID int64) (int64, bool) {
	e.mu.Lock()
	partner, ok := e.directory.Teardown(senderID)
	if ok {
		e.clearPartnersLocked(senderID, partner)
	}
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	if err := e.audit.SessionEnd(senderID, partner, models.EndConnectionLost); err != nil {
		e.log.Error("audit session end failed", "actor", senderID, "err", err)
	}
	return partner, true
}

// IsBanned returns the active ban for the id, if any.
func (e *Engine) IsBanned(id int64) (models.BanRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bans.Get(id)
}

// ActiveBans lists all bans still in force.
func (e *Engine) ActiveBans() []models.BanRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bans.ListActive()
}

// AdminBan tears down the target's session and queue membership, then records
// the ban, all in one critical section so a concurrent pairing request cannot
// slip through between teardown and the ban taking effect. The target and any
// former partner are notified after commit; notification failures are logged
// and do not undo the ban.
func (e *Engine) AdminBan(targetID int64, hours int, reason string) (*BanOutcome, error) {
	if targetID == 0 {
		return nil, ErrValidation
	}
	e.mu.Lock()
	outcome := &BanOutcome{}
	if partner, ok := e.directory.Teardown(targetID); ok {
		e.clearPartnersLocked(targetID, partner)
		outcome.EndedPartner = lo.ToPtr(partner)
	}
	outcome.RemovedFromQueue = e.pool.Remove(targetID)
	outcome.Record = e.bans.Ban(targetID, time.Duration(hours)*time.Hour, reason)
	e.mu.Unlock()

	e.finishTeardown(targetID, outcome.EndedPartner, models.AdminEndReason(reason))
	if e.notifier != nil {
		if err := e.notifier.OnBanned(targetID, reason, outcome.Record.Until); err != nil {
			e.log.Warn("ban notification undeliverable", "target", targetID, "err", err)
		}
	}
	return outcome, nil
}

// AdminUnban lifts the target's ban, returning false if none was active.
func (e *Engine) AdminUnban(targetID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bans.Unban(targetID)
}

// AdminForceEndSession closes the target's session with an
// admin_action:<detail> reason. It returns the former partner and false when
// the target was not in a session.
func (e *Engine) AdminForceEndSession(targetID int64, detail string) (int64, bool) {
	e.mu.Lock()
	partner, ok := e.directory.Teardown(targetID)
	if ok {
		e.clearPartnersLocked(targetID, partner)
	}
	e.mu.Unlock()
	if !ok {
		return 0, false
	}
	reason := models.AdminEndReason(detail)
	e.finishTeardown(targetID, lo.ToPtr(partner), reason)
	if e.notifier != nil {
		if err := e.notifier.OnSessionEnded(partner, targetID, reason); err != nil {
			e.log.Warn("session end notification undeliverable", "target", targetID, "err", err)
		}
	}
	return partner, true
}

// PartnerOf returns the current partner of the id.
func (e *Engine) PartnerOf(id int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.PartnerOf(id)
}

// IsWaiting reports whether the id sits in the waiting pool.
func (e *Engine) IsWaiting(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Contains(id)
}

// IsChatting reports whether the id is in an active session.
func (e *Engine) IsChatting(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.IsActive(id)
}

// Stats copies a consistent view of the engine for reporting.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		StartedAt:         e.startedAt,
		TotalParticipants: len(e.participants),
		Waiting:           e.pool.Len(),
		ActiveSessions:    e.directory.Len(),
		ActiveBans:        len(e.bans.ListActive()),
		Sessions:          e.directory.ActivePairs(),
		WaitingEntries:    e.pool.Entries(),
	}
}

// Participants returns the ids known to the engine, for broadcast use.
func (e *Engine) Participants() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.participants))
	for id := range e.participants {
		ids = append(ids, id)
	}
	return ids
}

// DisplayName returns the recorded name for the id, or "Unknown".
func (e *Engine) DisplayName(id int64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayNameLocked(id)
}

// ExportState copies the participant directory and active ban records for the
// persistence gateway. The copy is taken under the lock; writing it to disk
// happens outside.
func (e *Engine) ExportState() (map[int64]models.Participant, map[int64]models.BanRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	participants := make(map[int64]models.Participant, len(e.participants))
	for id, p := range e.participants {
		participants[id] = *p
	}
	return participants, e.bans.Export()
}

// ImportState merges snapshot data loaded at startup. In-memory entries take
// precedence so a stale snapshot can never clobber fresher runtime state, and
// live-session bookkeeping (partner pointers) is not restored: sessions do not
// survive a restart.
func (e *Engine) ImportState(participants map[int64]models.Participant, bans map[int64]models.BanRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range participants {
		if _, ok := e.participants[id]; ok {
			continue
		}
		restored := p
		restored.ID = id
		restored.PartnerID = nil
		e.participants[id] = &restored
	}
	e.bans.Import(bans)
}

// finishTeardown writes the session-end audit entry and notifies the former
// partner, once state is already committed. Notification failure here is
// logged only: the session is gone either way.
func (e *Engine) finishTeardown(actorID int64, partner *int64, reason models.EndReason) {
	if partner == nil {
		return
	}
	if err := e.audit.SessionEnd(actorID, *partner, reason); err != nil {
		e.log.Error("audit session end failed", "actor", actorID, "err", err)
	}
	if e.notifier != nil {
		if err := e.notifier.OnSessionEnded(actorID, *partner, reason); err != nil {
			e.log.Warn("session end notification undeliverable", "actor", actorID, "partner", *partner, "err", err)
		}
	}
}

func (e *Engine) notifyPaired(a, b int64) error {
	if e.notifier == nil {
		return nil
	}
	return e.notifier.OnPaired(a, b)
}

// rollbackMatch undoes a committed pair whose notification failed: both
// directory entries go away and both participants rejoin the back of the
// queue, behind anyone who kept waiting in the meantime.
func (e *Engine) rollbackMatch(a, b models.WaitingEntry) {
	e.log.Warn("rolling back match after failed delivery", "first", a.ParticipantID, "second", b.ParticipantID)
	e.mu.Lock()
	if _, ok := e.directory.Teardown(a.ParticipantID); ok {
		e.clearPartnersLocked(a.ParticipantID, b.ParticipantID)
	}
	// An admin ban can land between commit and rollback; a banned
	// participant must not sneak back into the queue.
	now := time.Now()
	for _, entry := range []models.WaitingEntry{a, b} {
		if _, banned := e.bans.Get(entry.ParticipantID); banned {
			continue
		}
		entry.EnqueuedAt = now
		e.pool.Enqueue(entry)
	}
	e.mu.Unlock()
	if err := e.audit.SessionEnd(a.ParticipantID, b.ParticipantID, models.EndPartnerUnavailable); err != nil {
		e.log.Error("audit session end failed", "actor", a.ParticipantID, "err", err)
	}
}

func (e *Engine) displayNameLocked(id int64) string {
	if p, ok := e.participants[id]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return "Unknown"
}

func (e *Engine) upsertLocked(id int64, displayName string) *models.Participant {
	p, ok := e.participants[id]
	if !ok {
		p = &models.Participant{ID: id}
		e.participants[id] = p
	}
	if displayName != "" {
		p.DisplayName = displayName
	}
	p.LastActivity = time.Now()
	return p
}

func (e *Engine) setPartnersLocked(a, b int64) {
	now := time.Now()
	if p, ok := e.participants[a]; ok {
		p.PartnerID = lo.ToPtr(b)
		p.LastActivity = now
	}
	if p, ok := e.participants[b]; ok {
		p.PartnerID = lo.ToPtr(a)
		p.LastActivity = now
	}
}

func (e *Engine) clearPartnersLocked(a, b int64) {
	if p, ok := e.participants[a]; ok {
		p.PartnerID = nil
	}
	if p, ok := e.participants[b]; ok {
		p.PartnerID = nil
	}
}
