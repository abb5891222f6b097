/*
Package privatemsg implements private messages between two users.

A message has two sides, the sender's and the recipient's, and each side
deletes independently. A side is Active, Trashed (deleted but recoverable for
a while) or Purged (gone for that user). The row is stored with two columns
per side; everything in this package reads and writes them through
SideState so the two can't disagree.
*/
package privatemsg

import (
	"time"

	"git.cdm.community/cdm/cdm/src/models"
)

type Side int

const (
	SenderSide Side = iota + 1
	RecipientSide
)

func (s Side) String() string {
	switch s {
	case SenderSide:
		return "sender"
	case RecipientSide:
		return "recipient"
	}
	return "unknown"
}

type SideKind int

const (
	Active SideKind = iota
	Trashed
	Purged
)

// The deletion state of one side of a message. DeletedAt is set for Trashed
// and Purged.
type SideState struct {
	Kind      SideKind
	DeletedAt time.Time
}

func ActiveState() SideState { return SideState{Kind: Active} }

func TrashedState(at time.Time) SideState { return SideState{Kind: Trashed, DeletedAt: at} }

func PurgedState(at time.Time) SideState { return SideState{Kind: Purged, DeletedAt: at} }

// Rows written before the purge check existed can be purged with no deletion
// date; DeletedAt is then zero until Normalize fills it in.
func stateFromColumns(deletedAt *time.Time, purged bool) SideState {
	switch {
	case purged && deletedAt != nil:
		return PurgedState(*deletedAt)
	case purged:
		return SideState{Kind: Purged}
	case deletedAt != nil:
		return TrashedState(*deletedAt)
	}
	return ActiveState()
}

func (s SideState) columns() (deletedAt *time.Time, purged bool) {
	if s.Kind == Active {
		return nil, false
	}
	var at *time.Time
	if !s.DeletedAt.IsZero() {
		t := s.DeletedAt
		at = &t
	}
	return at, s.Kind == Purged
}

// Deleting moves an active side to the trash, stamped now. A permanent delete
// purges it, keeping the original deletion date if it was already trashed.
func (s SideState) Delete(now time.Time, permanent bool) SideState {
	switch s.Kind {
	case Active:
		if permanent {
			return PurgedState(now)
		}
		return TrashedState(now)
	case Trashed:
		if permanent {
			return PurgedState(s.DeletedAt)
		}
	}
	return s
}

// Undeleting restores a trashed side. A purged side can't come back.
func (s SideState) Undelete() (SideState, bool) {
	if s.Kind == Purged {
		return s, false
	}
	return ActiveState(), true
}

// Whether the owner of this side can see the message at all.
func (s SideState) Visible() bool {
	return s.Kind != Purged
}

func StateOf(m *models.PrivateMessage, side Side) SideState {
	switch side {
	case SenderSide:
		return stateFromColumns(m.SenderDeletedAt, m.SenderPermanentlyDeleted)
	case RecipientSide:
		return stateFromColumns(m.RecipientDeletedAt, m.RecipientPermanentlyDeleted)
	}
	panic("unknown message side")
}

func SetState(m *models.PrivateMessage, side Side, s SideState) {
	deletedAt, purged := s.columns()
	switch side {
	case SenderSide:
		m.SenderDeletedAt, m.SenderPermanentlyDeleted = deletedAt, purged
	case RecipientSide:
		m.RecipientDeletedAt, m.RecipientPermanentlyDeleted = deletedAt, purged
	default:
		panic("unknown message side")
	}
}

// The sides of the message that belong to userID. Someone writing to
// themselves owns both.
func SidesOf(m *models.PrivateMessage, userID int) []Side {
	var sides []Side
	if m.SenderID == userID {
		sides = append(sides, SenderSide)
	}
	if m.RecipientID == userID {
		sides = append(sides, RecipientSide)
	}
	return sides
}

// Deletes the message from every side userID owns. False if userID is not a
// party to the message.
func DeleteFor(m *models.PrivateMessage, userID int, permanent bool, now time.Time) bool {
	sides := SidesOf(m, userID)
	for _, side := range sides {
		SetState(m, side, StateOf(m, side).Delete(now, permanent))
	}
	return len(sides) > 0
}

// Restores the message on every side userID owns. False if userID is not a
// party, or any of their sides is already purged; nothing changes then.
func UndeleteFor(m *models.PrivateMessage, userID int) bool {
	sides := SidesOf(m, userID)
	if len(sides) == 0 {
		return false
	}
	for _, side := range sides {
		if _, ok := StateOf(m, side).Undelete(); !ok {
			return false
		}
	}
	for _, side := range sides {
		SetState(m, side, ActiveState())
	}
	return true
}

// Whether userID can see the message on at least one of their sides.
func VisibleTo(m *models.PrivateMessage, userID int) bool {
	for _, side := range SidesOf(m, userID) {
		if StateOf(m, side).Visible() {
			return true
		}
	}
	return false
}

// Normalize repairs a purged side with no deletion date by stamping it now,
// so a purged side always has one.
func Normalize(m *models.PrivateMessage, now time.Time) {
	for _, side := range []Side{SenderSide, RecipientSide} {
		s := StateOf(m, side)
		if s.Kind == Purged && s.DeletedAt.IsZero() {
			SetState(m, side, PurgedState(now))
		}
	}
}
