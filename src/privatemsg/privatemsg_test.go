package privatemsg

import (
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/models"
	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSideStateTransitions(t *testing.T) {
	later := t0.Add(time.Hour)

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, TrashedState(t0), ActiveState().Delete(t0, false))
		assert.Equal(t, PurgedState(t0), ActiveState().Delete(t0, true))
		assert.Equal(t, TrashedState(t0), TrashedState(t0).Delete(later, false), "deleting again keeps the first date")
		assert.Equal(t, PurgedState(t0), TrashedState(t0).Delete(later, true))
		assert.Equal(t, PurgedState(t0), PurgedState(t0).Delete(later, true))
	})

	t.Run("undelete", func(t *testing.T) {
		s, ok := TrashedState(t0).Undelete()
		assert.True(t, ok)
		assert.Equal(t, ActiveState(), s)

		s, ok = ActiveState().Undelete()
		assert.True(t, ok)
		assert.Equal(t, ActiveState(), s)

		s, ok = PurgedState(t0).Undelete()
		assert.False(t, ok)
		assert.Equal(t, PurgedState(t0), s)
	})

	t.Run("visibility", func(t *testing.T) {
		assert.True(t, ActiveState().Visible())
		assert.True(t, TrashedState(t0).Visible())
		assert.False(t, PurgedState(t0).Visible())
	})
}

func TestColumnsRoundTrip(t *testing.T) {
	m := &models.PrivateMessage{SenderID: 1, RecipientID: 2}
	for _, s := range []SideState{ActiveState(), TrashedState(t0), PurgedState(t0)} {
		SetState(m, SenderSide, s)
		assert.Equal(t, s, StateOf(m, SenderSide))
		assert.Equal(t, ActiveState(), StateOf(m, RecipientSide))
	}
	assert.True(t, m.SenderPermanentlyDeleted)
	assert.Equal(t, t0, *m.SenderDeletedAt)
}

func TestSidesAreIndependent(t *testing.T) {
	m := &models.PrivateMessage{SenderID: 1, RecipientID: 2}

	assert.True(t, DeleteFor(m, 1, true, t0))
	assert.False(t, VisibleTo(m, 1))
	assert.True(t, VisibleTo(m, 2))
	assert.Nil(t, m.RecipientDeletedAt)
	assert.False(t, m.RecipientPermanentlyDeleted)

	assert.True(t, DeleteFor(m, 2, false, t0))
	assert.True(t, VisibleTo(m, 2))
	assert.True(t, UndeleteFor(m, 2))
	assert.Equal(t, ActiveState(), StateOf(m, RecipientSide))

	assert.False(t, UndeleteFor(m, 1), "purged sides stay purged")
	assert.Equal(t, PurgedState(t0), StateOf(m, SenderSide))
}

func TestThirdParty(t *testing.T) {
	m := &models.PrivateMessage{SenderID: 1, RecipientID: 2}
	assert.Empty(t, SidesOf(m, 3))
	assert.False(t, DeleteFor(m, 3, true, t0))
	assert.False(t, UndeleteFor(m, 3))
	assert.False(t, VisibleTo(m, 3))
	assert.Equal(t, ActiveState(), StateOf(m, SenderSide))
	assert.Equal(t, ActiveState(), StateOf(m, RecipientSide))
}

func TestMessageToSelf(t *testing.T) {
	m := &models.PrivateMessage{SenderID: 1, RecipientID: 1}
	assert.Equal(t, []Side{SenderSide, RecipientSide}, SidesOf(m, 1))

	DeleteFor(m, 1, false, t0)
	assert.Equal(t, TrashedState(t0), StateOf(m, SenderSide))
	assert.Equal(t, TrashedState(t0), StateOf(m, RecipientSide))

	// One purged side blocks restoring the other.
	SetState(m, SenderSide, PurgedState(t0))
	assert.False(t, UndeleteFor(m, 1))
	assert.Equal(t, TrashedState(t0), StateOf(m, RecipientSide))
	assert.True(t, VisibleTo(m, 1))
}

func TestNormalize(t *testing.T) {
	m := &models.PrivateMessage{
		SenderID:                 1,
		RecipientID:              2,
		SenderPermanentlyDeleted: true,
	}
	assert.Equal(t, Purged, StateOf(m, SenderSide).Kind)
	assert.True(t, StateOf(m, SenderSide).DeletedAt.IsZero())

	Normalize(m, t0)
	assert.Equal(t, PurgedState(t0), StateOf(m, SenderSide))
	assert.Equal(t, ActiveState(), StateOf(m, RecipientSide))

	Normalize(m, t0.Add(time.Hour))
	assert.Equal(t, t0, *m.SenderDeletedAt, "already dated sides are left alone")
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Hello", ReplySubject("Hello"))
	assert.Equal(t, "Re: Hello", ReplySubject("Re: Hello"))
	assert.Equal(t, "Re: ", ReplySubject(""))
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "sender", SenderSide.String())
	assert.Equal(t, "recipient", RecipientSide.String())
	assert.Equal(t, "unknown", Side(0).String())
}
