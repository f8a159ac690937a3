package engine

import "unknownchat/backend/internal/models"

// WaitingPool is the strict FIFO queue of participants looking for a partner.
// Declared preference attributes ride along on each entry but are never
// consulted when dequeuing: earliest-waiting wins, which keeps waits bounded.
//
// The pool is not self-locking. All access goes through the owning Engine's
// critical section, so that the ban check, queue mutation and directory write
// stay atomic relative to each other.
type WaitingPool struct {
	order   []int64
	entries map[int64]models.WaitingEntry
}

func NewWaitingPool() *WaitingPool {
	return &WaitingPool{entries: make(map[int64]models.WaitingEntry)}
}

// Enqueue appends the entry to the back of the queue. It is a no-op returning
// false if the id is already waiting.
func (p *WaitingPool) Enqueue(e models.WaitingEntry) bool {
	if _, ok := p.entries[e.ParticipantID]; ok {
		return false
	}
	p.entries[e.ParticipantID] = e
	p.order = append(p.order, e.ParticipantID)
	return true
}

// DequeuePair removes and returns the two oldest entries, or false if fewer
// than two participants are waiting.
func (p *WaitingPool) DequeuePair() (models.WaitingEntry, models.WaitingEntry, bool) {
	if len(p.order) < 2 {
		return models.WaitingEntry{}, models.WaitingEntry{}, false
	}
	first := p.entries[p.order[0]]
	second := p.entries[p.order[1]]
	delete(p.entries, p.order[0])
	delete(p.entries, p.order[1])
	p.order = p.order[2:]
	return first, second, true
}

// Remove drops the id from the queue, returning false if it was not waiting.
func (p *WaitingPool) Remove(id int64) bool {
	if _, ok := p.entries[id]; !ok {
		return false
	}
	delete(p.entries, id)
	for i, queued := range p.order {
		if queued == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the id is currently waiting.
func (p *WaitingPool) Contains(id int64) bool {
	_, ok := p.entries[id]
	return ok
}

// Len returns the number of waiting participants.
func (p *WaitingPool) Len() int { return len(p.order) }

// Entries returns a copy of the queue in FIFO order, for reporting.
func (p *WaitingPool) Entries() []models.WaitingEntry {
	out := make([]models.WaitingEntry, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.entries[id])
	}
	return out
}
