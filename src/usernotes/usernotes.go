// Package usernotes keeps staff-only notes about users, like warnings given
// or context for moderators.
package usernotes

import (
	"context"
	"errors"
	"time"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

var (
	ErrNoteNotFound     = oops.NewCoded(oops.KindNotFound, "user_note_not_found", "no such user note")
	ErrPermissionDenied = oops.NewCoded(oops.KindPermissionDenied, "permission_denied", "only staff can manage user notes")
)

func canManageNotes(user *models.User) bool {
	return user != nil && (user.IsStaff || user.IsSuperuser)
}

// Saves a note written by staffer. The author of an existing note doesn't
// change when someone else edits it.
func SaveUserNote(ctx context.Context, conn db.ConnOrTx, staffer *models.User, edit changes.Edit[models.UserNote], now time.Time) (*models.UserNote, error) {
	if !canManageNotes(staffer) {
		return nil, ErrPermissionDenied
	}
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}

	note := edit.Current
	note.LastModificationDate = now

	if edit.IsNew() {
		note.AuthorID = staffer.ID
		note.CreationDate = now
		saved, err := db.QueryOne[models.UserNote](ctx, conn,
			`
			INSERT INTO user_note (
				title, author_id, target_user_id, description, sticky,
				creation_date, last_modification_date
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING $columns
			`,
			note.Title, note.AuthorID, note.TargetUserID, note.Description, note.Sticky,
			note.CreationDate, note.LastModificationDate,
		)
		if err != nil {
			return nil, oops.New(err, "failed to insert note about user %d", note.TargetUserID)
		}
		return saved, nil
	}

	saved, err := db.QueryOne[models.UserNote](ctx, conn,
		`
		UPDATE user_note
		SET
			title = $2,
			description = $3,
			sticky = $4,
			last_modification_date = $5
		WHERE id = $1
		RETURNING $columns
		`,
		edit.Original.ID,
		note.Title,
		note.Description,
		note.Sticky,
		note.LastModificationDate,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrNoteNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update user note %d", edit.Original.ID)
	}
	return saved, nil
}

// Sticky notes first, then most recently modified.
func FetchNotesForUser(ctx context.Context, conn db.ConnOrTx, viewer *models.User, targetUserID int) ([]*models.UserNote, error) {
	if !canManageNotes(viewer) {
		return nil, ErrPermissionDenied
	}
	notes, err := db.Query[models.UserNote](ctx, conn,
		`
		---- Fetch user notes
		SELECT $columns
		FROM user_note
		WHERE target_user_id = $1
		ORDER BY sticky DESC, last_modification_date DESC, id DESC
		`,
		targetUserID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch notes about user %d", targetUserID)
	}
	return notes, nil
}

func DeleteUserNote(ctx context.Context, conn db.ConnOrTx, staffer *models.User, id int) error {
	if !canManageNotes(staffer) {
		return ErrPermissionDenied
	}
	tag, err := conn.Exec(ctx, `DELETE FROM user_note WHERE id = $1`, id)
	if err != nil {
		return oops.New(err, "failed to delete user note %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}
