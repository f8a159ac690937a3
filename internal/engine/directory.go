package engine

// SessionDirectory is the symmetric map of currently paired participants.
// Every live session occupies exactly two keys, each pointing at the other,
// so a lookup from either side answers in one step.
//
// Like the WaitingPool it is not self-locking; the Engine serializes access.
type SessionDirectory struct {
	partners map[int64]int64
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{partners: make(map[int64]int64)}
}

// Pair writes both directions of the session. It fails with ErrConflict if
// either id is already in a session, and ErrValidation for a self-pair.
func (d *SessionDirectory) Pair(a, b int64) error {
	if a == b || a == 0 || b == 0 {
		return ErrValidation
	}
	if _, ok := d.partners[a]; ok {
		return ErrConflict
	}
	if _, ok := d.partners[b]; ok {
		return ErrConflict
	}
	d.partners[a] = b
	d.partners[b] = a
	return nil
}

// PartnerOf returns the current partner of the id.
func (d *SessionDirectory) PartnerOf(id int64) (int64, bool) {
	partner, ok := d.partners[id]
	return partner, ok
}

// Teardown removes both directions of the id's session and returns the
// partner so the caller can notify them. It returns false if the id was not
// in a session.
func (d *SessionDirectory) Teardown(id int64) (int64, bool) {
	partner, ok := d.partners[id]
	if !ok {
		return 0, false
	}
	delete(d.partners, id)
	delete(d.partners, partner)
	return partner, true
}

// IsActive reports whether the id is currently in a session.
func (d *SessionDirectory) IsActive(id int64) bool {
	_, ok := d.partners[id]
	return ok
}

// Len returns the number of live sessions.
func (d *SessionDirectory) Len() int { return len(d.partners) / 2 }

// ActivePairs returns each live session once, smaller id first.
func (d *SessionDirectory) ActivePairs() [][2]int64 {
	pairs := make([][2]int64, 0, len(d.partners)/2)
	for a, b := range d.partners {
		if a < b {
			pairs = append(pairs, [2]int64{a, b})
		}
	}
	return pairs
}
