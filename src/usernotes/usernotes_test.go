package usernotes

import (
	"context"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"git.cdm.community/cdm/cdm/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanManageNotes(t *testing.T) {
	assert.False(t, canManageNotes(nil))
	assert.False(t, canManageNotes(&models.User{ID: 1}))
	assert.True(t, canManageNotes(&models.User{ID: 1, IsStaff: true}))
	assert.True(t, canManageNotes(&models.User{ID: 1, IsSuperuser: true}))
}

func TestUserNotes(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	staff := dbtest.CreateUser(t, tx)
	_, err := tx.Exec(ctx, `UPDATE auth_user SET is_staff = TRUE WHERE id = $1`, staff.ID)
	require.NoError(t, err)
	staff.IsStaff = true
	otherStaff := dbtest.CreateUser(t, tx)
	otherStaff.IsStaff = true
	target := dbtest.CreateUser(t, tx)
	regular := dbtest.CreateUser(t, tx)

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	newNote := func(title string, sticky bool) models.UserNote {
		return models.UserNote{Title: title, TargetUserID: target.ID, Sticky: sticky}
	}

	_, err = SaveUserNote(ctx, tx, regular, changes.New(newNote("nope", false)), t0)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = FetchNotesForUser(ctx, tx, regular, target.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	old, err := SaveUserNote(ctx, tx, staff, changes.New(newNote("old", false)), t0)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, old.AuthorID)
	assert.True(t, t0.Equal(old.CreationDate))

	pinned, err := SaveUserNote(ctx, tx, staff, changes.New(newNote("pinned", true)), t0.Add(time.Hour))
	require.NoError(t, err)
	recent, err := SaveUserNote(ctx, tx, staff, changes.New(newNote("recent", false)), t0.Add(2*time.Hour))
	require.NoError(t, err)

	notes, err := FetchNotesForUser(ctx, tx, staff, target.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, []int{pinned.ID, recent.ID, old.ID}, []int{notes[0].ID, notes[1].ID, notes[2].ID})

	// Editing bumps the modification date and moves the note up.
	edit := changes.Track(old)
	edit.Current.Description = "more context"
	edited, err := SaveUserNote(ctx, tx, otherStaff, edit, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, staff.ID, edited.AuthorID)
	assert.True(t, t0.Equal(edited.CreationDate))
	assert.True(t, t0.Add(3*time.Hour).Equal(edited.LastModificationDate))

	notes, err = FetchNotesForUser(ctx, tx, staff, target.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{pinned.ID, old.ID, recent.ID}, []int{notes[0].ID, notes[1].ID, notes[2].ID})

	assert.ErrorIs(t, DeleteUserNote(ctx, tx, regular, old.ID), ErrPermissionDenied)
	require.NoError(t, DeleteUserNote(ctx, tx, staff, old.ID))
	assert.ErrorIs(t, DeleteUserNote(ctx, tx, staff, old.ID), ErrNoteNotFound)

	_, err = SaveUserNote(ctx, tx, staff, changes.Track(old), t0)
	assert.ErrorIs(t, err, ErrNoteNotFound)
}
