package models

import "time"

// Participant represents anyone who has ever talked to the engine.
// A record is created on first contact and is never hard-deleted, so the
// snapshot file keeps growing with every user the bot has seen.
type Participant struct {
	// ID is the stable external identity (the Telegram chat ID).
	// It is the snapshot map key, so it is not serialized inside the record.
	ID int64 `json:"-"`
	// DisplayName is the username or first name reported by the transport.
	DisplayName string `json:"username"`
	// SelfAttr and WantAttr are the declared self / desired-partner
	// attributes. They are recorded for reporting only; matching is FIFO.
	SelfAttr string `json:"self_attr,omitempty"`
	WantAttr string `json:"want_attr,omitempty"`
	// PartnerID is set while the participant is in an active session.
	PartnerID *int64 `json:"partner,omitempty"`
	// LastActivity is updated on every interaction.
	LastActivity time.Time `json:"connect_time"`
}

// WaitingEntry is a participant sitting in the FIFO waiting pool.
type WaitingEntry struct {
	ParticipantID int64
	DisplayName   string
	SelfAttr      string
	WantAttr      string
	EnqueuedAt    time.Time
}
