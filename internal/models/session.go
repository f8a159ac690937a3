package models

import (
	"fmt"
	"time"
)

// EndReason explains why a session was closed.
type EndReason string

const (
	EndManual             EndReason = "manual"
	EndStartedNew         EndReason = "started_new"
	EndConnectionLost     EndReason = "connection_lost"
	EndPartnerUnavailable EndReason = "partner_unavailable"
)

// AdminEndReason builds the "admin_action:<detail>" reason for moderator
// interventions.
func AdminEndReason(detail string) EndReason {
	return EndReason("admin_action:" + detail)
}

// CanonicalSessionID derives the stable audit key for a conversation between
// two participants: the smaller ID always comes first, so both sides of the
// pair map to the same entry within a day.
func CanonicalSessionID(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d_%d", a, b)
}

// SessionUser identifies one side of a session in the audit log.
type SessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is one conversation between two participants, scoped to a calendar
// day in the audit log. Once EndedAt is set the entry is never mutated again.
type Session struct {
	Users     []SessionUser   `json:"users"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	EndReason EndReason       `json:"end_reason,omitempty"`
	EndedBy   *int64          `json:"ended_by,omitempty"`
	Messages  []MessageRecord `json:"messages"`
}
