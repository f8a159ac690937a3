package engine

import (
	"time"

	"unknownchat/backend/internal/models"
)

// BanStore tracks per-participant ban expiry and reasons. Expiry is lazy:
// a lapsed record is cleared by whichever read touches it next, never by a
// background sweep. The Engine serializes access.
type BanStore struct {
	records map[int64]models.BanRecord
	now     func() time.Time
}

// NewBanStore builds a store using the given clock, or time.Now when nil.
func NewBanStore(clock func() time.Time) *BanStore {
	if clock == nil {
		clock = time.Now
	}
	return &BanStore{records: make(map[int64]models.BanRecord), now: clock}
}

// Ban records a ban lasting the given duration and returns the record.
// An existing ban is overwritten.
func (s *BanStore) Ban(id int64, d time.Duration, reason string) models.BanRecord {
	now := s.now()
	rec := models.BanRecord{
		ParticipantID: id,
		Until:         now.Add(d),
		Reason:        reason,
		BannedAt:      now,
	}
	s.records[id] = rec
	return rec
}

// Unban clears the id's ban, returning false if none was recorded.
func (s *BanStore) Unban(id int64) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// Get returns the active ban for the id. A record whose expiry has passed is
// deleted on the spot and reported as absent.
func (s *BanStore) Get(id int64) (models.BanRecord, bool) {
	rec, ok := s.records[id]
	if !ok {
		return models.BanRecord{}, false
	}
	if rec.Expired(s.now()) {
		delete(s.records, id)
		return models.BanRecord{}, false
	}
	return rec, true
}

// ListActive returns all bans still in force, clearing lapsed records as a
// side effect.
func (s *BanStore) ListActive() []models.BanRecord {
	now := s.now()
	active := make([]models.BanRecord, 0, len(s.records))
	for id, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, id)
			continue
		}
		active = append(active, rec)
	}
	return active
}

// Export copies all active records for snapshotting.
func (s *BanStore) Export() map[int64]models.BanRecord {
	now := s.now()
	out := make(map[int64]models.BanRecord, len(s.records))
	for id, rec := range s.records {
		if rec.Expired(now) {
			continue
		}
		out[id] = rec
	}
	return out
}

// Import merges snapshot records. In-memory records win, and expired snapshot
// entries are dropped so a stale file can never resurrect a lapsed ban.
func (s *BanStore) Import(records map[int64]models.BanRecord) {
	now := s.now()
	for id, rec := range records {
		if rec.Expired(now) {
			continue
		}
		if _, ok := s.records[id]; ok {
			continue
		}
		rec.ParticipantID = id
		s.records[id] = rec
	}
}
