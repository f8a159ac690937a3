// Package audit maintains the append-only moderation journal: one JSON file
// per calendar day, keyed by canonical session id, holding session lifecycle
// events and message metadata. The on-disk layout is what the dashboard CLI
// reads back, so field names are part of the format.
package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"unknownchat/backend/internal/models"
)

const (
	filePrefix = "chat_logs_"
	fileSuffix = ".json"
	dateLayout = "2006-01-02"
)

// DayLog is one day's journal file.
type DayLog struct {
	CreatedAt time.Time                  `json:"created_at"`
	Chats     map[string]*models.Session `json:"chats"`
}

// Journal serializes every read-modify-write of a day segment behind one
// mutex, so there is exactly one writer per segment. All I/O errors are
// returned to the caller, which logs and keeps going: the journal must never
// block pairing or messaging.
type Journal struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewJournal creates the storage directory if needed.
func NewJournal(dir string, log *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &Journal{dir: dir, log: log, now: time.Now}, nil
}

// SessionStart writes the day's entry header for the pair. A same-day
// canonical id collision (the two participants were paired before) is an
// anomaly: the journal warns and the fresh header replaces the old entry.
func (j *Journal) SessionStart(a, b int64, nameA, nameB string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := j.readDayLocked()
	id := models.CanonicalSessionID(a, b)
	if _, exists := day.Chats[id]; exists {
		j.log.Warn("canonical session id collision, overwriting entry", "session", id)
	}
	day.Chats[id] = &models.Session{
		Users: []models.SessionUser{
			{ID: a, Username: nameA},
			{ID: b, Username: nameB},
		},
		StartedAt: j.now(),
		Messages:  []models.MessageRecord{},
	}
	return j.writeDayLocked(day)
}

// SessionEnd closes the pair's entry with the end time, reason and acting
// participant. A missing entry (session spanned midnight, or the start event
// was lost) is logged as an anomaly and is not an error.
func (j *Journal) SessionEnd(actorID, otherID int64, reason models.EndReason) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := j.readDayLocked()
	id := models.CanonicalSessionID(actorID, otherID)
	entry, ok := day.Chats[id]
	if !ok {
		j.log.Warn("session end for unknown entry", "session", id, "reason", string(reason))
		return nil
	}
	now := j.now()
	entry.EndedAt = &now
	entry.EndReason = reason
	entry.EndedBy = &actorID
	return j.writeDayLocked(day)
}

// LogMessage appends the record to the day's session entry. If the entry is
// missing a bare header is created defensively so no metadata is dropped.
func (j *Journal) LogMessage(rec models.MessageRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	day := j.readDayLocked()
	id := models.CanonicalSessionID(rec.SenderID, rec.ReceiverID)
	entry, ok := day.Chats[id]
	if !ok {
		entry = &models.Session{
			Users: []models.SessionUser{
				{ID: rec.SenderID, Username: rec.SenderUsername},
				{ID: rec.ReceiverID, Username: rec.ReceiverUsername},
			},
			Messages: []models.MessageRecord{},
		}
		day.Chats[id] = entry
	}
	entry.Messages = append(entry.Messages, rec)
	return j.writeDayLocked(day)
}

// RecentSessions returns up to limit of today's entries, most recently
// started first.
func (j *Journal) RecentSessions(limit int) ([]models.Session, error) {
	j.mu.Lock()
	day := j.readDayLocked()
	j.mu.Unlock()

	sessions := make([]models.Session, 0, len(day.Chats))
	for _, entry := range day.Chats {
		sessions = append(sessions, *entry)
	}
	sort.Slice(sessions, func(i, k int) bool {
		return sessions[i].StartedAt.After(sessions[k].StartedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (j *Journal) path() string {
	return filepath.Join(j.dir, filePrefix+j.now().Format(dateLayout)+fileSuffix)
}

// readDayLocked loads the current day's file. A missing or corrupted file
// yields a fresh empty day, matching the recovery behavior of the dashboard.
func (j *Journal) readDayLocked() *DayLog {
	data, err := os.ReadFile(j.path())
	if err != nil {
		if !os.IsNotExist(err) {
			j.log.Warn("unreadable journal file, starting fresh", "path", j.path(), "err", err)
		}
		return &DayLog{CreatedAt: j.now(), Chats: make(map[string]*models.Session)}
	}
	var day DayLog
	if err := json.Unmarshal(data, &day); err != nil {
		j.log.Warn("corrupted journal file, starting fresh", "path", j.path(), "err", err)
		return &DayLog{CreatedAt: j.now(), Chats: make(map[string]*models.Session)}
	}
	if day.Chats == nil {
		day.Chats = make(map[string]*models.Session)
	}
	return &day
}

func (j *Journal) writeDayLocked(day *DayLog) error {
	data, err := json.MarshalIndent(day, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal day: %w", err)
	}
	if err := os.WriteFile(j.path(), data, 0o644); err != nil {
		return fmt.Errorf("writing journal day: %w", err)
	}
	return nil
}

// ListDates scans a journal directory for day files, newest first. It is
// package-level so the dashboard can read a directory without a Journal.
func ListDates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

// LoadDate reads one day's journal file by its YYYY-MM-DD date.
func LoadDate(dir, date string) (*DayLog, error) {
	data, err := os.ReadFile(filepath.Join(dir, filePrefix+date+fileSuffix))
	if err != nil {
		return nil, err
	}
	var day DayLog
	if err := json.Unmarshal(data, &day); err != nil {
		return nil, fmt.Errorf("decoding journal for %s: %w", date, err)
	}
	if day.Chats == nil {
		day.Chats = make(map[string]*models.Session)
	}
	return &day, nil
}
