package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation rejects operations on a malformed or missing participant id.
	ErrValidation = errors.New("invalid participant id")
	// ErrConflict rejects pairing an id that is already waiting or paired.
	ErrConflict = errors.New("participant already waiting or paired")
	// ErrNotFound is returned by teardown or ban lookups that miss.
	ErrNotFound = errors.New("no matching session, queue entry or ban record")
)

// BannedError rejects a pairing request while a ban is in force. It carries
// the reason and expiry so the transport can show them to the user.
type BannedError struct {
	Reason string
	Until  time.Time
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("banned until %s: %s", e.Until.Format(time.RFC3339), e.Reason)
}

// DeliveryError reports that notifying a matched participant failed. By the
// time the caller sees it, the match has already been rolled back and both
// participants are waiting again.
type DeliveryError struct {
	ParticipantID int64
	Err           error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %d failed: %v", e.ParticipantID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
