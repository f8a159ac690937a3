package models

import "time"

// BanRecord is a time-boxed ban on one participant. Records expire lazily:
// they are cleared the next time someone reads them, never by a sweeper.
type BanRecord struct {
	// ParticipantID is the snapshot map key and is not serialized inside
	// the record.
	ParticipantID int64     `json:"-"`
	Until         time.Time `json:"until"`
	Reason        string    `json:"reason"`
	BannedAt      time.Time `json:"banned_at"`
}

// Expired reports whether the ban has lapsed at the given instant.
func (b BanRecord) Expired(now time.Time) bool {
	return now.After(b.Until)
}
