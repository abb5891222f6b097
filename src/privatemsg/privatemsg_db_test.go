package privatemsg

import (
	"context"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/persistentvars"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	logical  = 30 * 24 * time.Hour
	physical = 365 * 24 * time.Hour
)

func sendAt(t *testing.T, tx pgx.Tx, from, to *models.User, subject string, now time.Time) *models.PrivateMessage {
	t.Helper()
	m, err := SendMessage(context.Background(), tx, notify.Discard, from, NewMessage{
		Recipients: []string{to.Username},
		Subject:    subject,
		Body:       "Hi **there**",
	}, now)
	require.NoError(t, err)
	return m
}

func countMessages(t *testing.T, tx pgx.Tx) int {
	t.Helper()
	n, err := db.QueryOneScalar[int](context.Background(), tx, `SELECT COUNT(*) FROM privatemsg_message`)
	require.NoError(t, err)
	return n
}

func ids(msgs []*models.PrivateMessage) []int {
	result := make([]int, len(msgs))
	for i, m := range msgs {
		result[i] = m.ID
	}
	return result
}

func TestSendMessage(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)

	rec := &notify.Recorder{}
	m, err := SendMessage(ctx, tx, rec, s, NewMessage{
		Recipients: []string{" " + r.Username + " "},
		Subject:    "Hello",
		Body:       "Hi **there**",
	}, t0)
	require.NoError(t, err)
	assert.Equal(t, s.ID, m.SenderID)
	assert.Equal(t, r.ID, m.RecipientID)
	assert.Contains(t, m.BodyHtml, "<strong>there</strong>")
	assert.True(t, t0.Equal(m.SentAt))
	assert.Nil(t, m.ReadAt)
	assert.Equal(t, []int{r.ID}, rec.Recipients())

	profile, err := FetchOrCreateProfile(ctx, tx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.LastSentPrivateMsgDate)
	assert.True(t, t0.Equal(*profile.LastSentPrivateMsgDate))

	unread, err := CountUnread(ctx, tx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, MarkRead(ctx, tx, m.ID, s.ID, t0), "the sender can't mark it read")
	unread, err = CountUnread(ctx, tx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, MarkRead(ctx, tx, m.ID, r.ID, t0.Add(time.Minute)))
	unread, err = CountUnread(ctx, tx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestSendChecks(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)
	other := dbtest.CreateUser(t, tx)

	trySend := func(names ...string) error {
		_, err := SendMessage(ctx, tx, notify.Discard, s, NewMessage{Recipients: names, Subject: "x"}, t0)
		return err
	}

	assert.ErrorIs(t, trySend(r.Username, other.Username), ErrMultipleRecipients)
	assert.ErrorIs(t, trySend(), ErrUnknownRecipient)
	assert.ErrorIs(t, trySend("nobody-by-this-name"), ErrUnknownRecipient)

	require.NoError(t, SaveProfileSettings(ctx, tx, &models.PrivateMessageUserProfile{
		UserID:             r.ID,
		NotifyOnNewPrivmsg: true,
		AcceptPrivmsg:      false,
	}))
	err := trySend(r.Username)
	assert.ErrorIs(t, err, ErrRecipientRefusesPrivateMsg)
	assert.Equal(t, "recipient_refuse_privatemsg", oops.CodeOf(err))

	dbtest.DeactivateUser(t, tx, other)
	assert.ErrorIs(t, trySend(other.Username), ErrRecipientAccountClosed)

	dbtest.DeactivateUser(t, tx, s)
	assert.ErrorIs(t, trySend(r.Username), ErrSenderInactive)

	assert.Equal(t, 0, countMessages(t, tx))
}

func TestSendFlooding(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)

	sendAt(t, tx, s, r, "first", t0)

	_, err := SendMessage(ctx, tx, notify.Discard, s, NewMessage{
		Recipients: []string{r.Username},
		Subject:    "second",
	}, t0.Add(30*time.Second))
	assert.Equal(t, antiflood.Code, oops.CodeOf(err))
	var floodErr *antiflood.Error
	require.ErrorAs(t, err, &floodErr)
	assert.Equal(t, "privatemsg", floodErr.Module)
	assert.Equal(t, 30*time.Second, floodErr.Remaining)
	assert.Equal(t, 1, countMessages(t, tx))

	sendAt(t, tx, s, r, "third", t0.Add(time.Minute))
	assert.Equal(t, 2, countMessages(t, tx))
}

func TestNoNotificationWhenDisabled(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)

	require.NoError(t, SaveProfileSettings(ctx, tx, &models.PrivateMessageUserProfile{
		UserID:             r.ID,
		NotifyOnNewPrivmsg: false,
		AcceptPrivmsg:      true,
	}))

	rec := &notify.Recorder{}
	_, err := SendMessage(ctx, tx, rec, s, NewMessage{Recipients: []string{r.Username}, Subject: "quiet"}, t0)
	require.NoError(t, err)
	assert.Empty(t, rec.Sent())
}

func TestReply(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	a := dbtest.CreateUser(t, tx)
	b := dbtest.CreateUser(t, tx)
	c := dbtest.CreateUser(t, tx)

	original := sendAt(t, tx, a, b, "Plans", t0)

	reply, err := ReplyToMessage(ctx, tx, notify.Discard, b, original.ID, "", "Sounds good", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, a.ID, reply.RecipientID)
	assert.Equal(t, "Re: Plans", reply.Subject)
	require.NotNil(t, reply.ParentMsgID)
	assert.Equal(t, original.ID, *reply.ParentMsgID)

	again, err := ReplyToMessage(ctx, tx, notify.Discard, a, reply.ID, "", "Great", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, b.ID, again.RecipientID)
	assert.Equal(t, "Re: Plans", again.Subject, "the prefix is added once")

	custom, err := ReplyToMessage(ctx, tx, notify.Discard, b, again.ID, "New topic", "!", t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "New topic", custom.Subject)

	_, err = ReplyToMessage(ctx, tx, notify.Discard, c, original.ID, "", "me too", t0.Add(4*time.Minute))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// A follow-up to your own message goes back to you, not to the other party.
	followUp, err := ReplyToMessage(ctx, tx, notify.Discard, a, original.ID, "", "Also", t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, a.ID, followUp.SenderID)
	assert.Equal(t, a.ID, followUp.RecipientID)
}

func TestBlockedReply(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	r := dbtest.CreateUser(t, tx)
	s := dbtest.CreateUser(t, tx)

	fromR := sendAt(t, tx, r, s, "Hello", t0)
	require.NoError(t, BlockUser(ctx, tx, r.ID, s.ID, t0.Add(time.Minute)))

	_, err := ReplyToMessage(ctx, tx, notify.Discard, s, fromR.ID, "", "Please", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrRecipientHasBlockedUser)
	assert.Equal(t, "recipient_has_blocked_user", oops.CodeOf(err))

	_, err = SendMessage(ctx, tx, notify.Discard, s, NewMessage{Recipients: []string{r.Username}}, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrRecipientHasBlockedUser)
	assert.Equal(t, 1, countMessages(t, tx))

	// The block is one-way.
	sendAt(t, tx, r, s, "Still talking", t0.Add(4*time.Minute))

	require.NoError(t, UnblockUser(ctx, tx, r.ID, s.ID))
	sendAt(t, tx, s, r, "Thanks", t0.Add(5*time.Minute))
	assert.Equal(t, 3, countMessages(t, tx))
}

func TestBlockRegistry(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, tx)
	a := dbtest.CreateUser(t, tx)
	b := dbtest.CreateUser(t, tx)

	require.NoError(t, BlockUser(ctx, tx, u.ID, a.ID, t0))
	require.NoError(t, BlockUser(ctx, tx, u.ID, b.ID, t0.Add(time.Hour)))
	require.NoError(t, BlockUser(ctx, tx, u.ID, u.ID, t0), "self blocks are accepted")

	blocked, err := HasBlockedUser(ctx, tx, u.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, blocked)
	blocked, err = HasBlockedUser(ctx, tx, a.ID, u.ID)
	require.NoError(t, err)
	assert.False(t, blocked)

	list, err := FetchBlockedUsers(ctx, tx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, UnblockUser(ctx, tx, u.ID, b.ID))
	blocked, err = HasBlockedUser(ctx, tx, u.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, blocked)

	// Blocking again reactivates the same row.
	require.NoError(t, BlockUser(ctx, tx, u.ID, b.ID, t0.Add(2*time.Hour)))
	rows, err := db.QueryOneScalar[int](ctx, tx,
		`SELECT COUNT(*) FROM privatemsg_blocked_user WHERE user_id = $1 AND blocked_user_id = $2`,
		u.ID, b.ID,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
}

func TestMailboxViews(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)
	stranger := dbtest.CreateUser(t, tx)

	m1 := sendAt(t, tx, s, r, "one", t0)
	m2 := sendAt(t, tx, s, r, "two", t0.Add(time.Hour))

	inbox, err := FetchInbox(ctx, tx, r.ID, MailboxQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{m2.ID, m1.ID}, ids(inbox))

	outbox, err := FetchOutbox(ctx, tx, s.ID, MailboxQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{m2.ID}, ids(outbox))

	_, err = FetchMessageForUser(ctx, tx, m1.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = FetchMessageForUser(ctx, tx, m1.ID+m2.ID+1000, r.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	// The recipient trashes m1; the sender still sees it.
	deletedAt := t0.Add(2 * time.Hour)
	_, err = DeleteFromUserSide(ctx, tx, m1.ID, r.ID, false, deletedAt)
	require.NoError(t, err)

	inbox, err = FetchInbox(ctx, tx, r.ID, MailboxQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{m2.ID}, ids(inbox))
	outbox, err = FetchOutbox(ctx, tx, s.ID, MailboxQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{m2.ID, m1.ID}, ids(outbox))

	trash, err := FetchTrash(ctx, tx, r.ID, deletedAt.Add(time.Hour), logical)
	require.NoError(t, err)
	assert.Equal(t, []int{m1.ID}, ids(trash))
	trash, err = FetchTrash(ctx, tx, s.ID, deletedAt.Add(time.Hour), logical)
	require.NoError(t, err)
	assert.Empty(t, trash)
	trash, err = FetchTrash(ctx, tx, r.ID, deletedAt.Add(logical+time.Hour), logical)
	require.NoError(t, err)
	assert.Empty(t, trash, "old deletions fall out of the trash")

	_, err = DeleteFromUserSide(ctx, tx, m1.ID, stranger.ID, false, deletedAt)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Undelete brings it back.
	_, err = UndeleteFromUserSide(ctx, tx, m1.ID, r.ID, deletedAt.Add(time.Hour))
	require.NoError(t, err)
	inbox, err = FetchInbox(ctx, tx, r.ID, MailboxQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{m2.ID, m1.ID}, ids(inbox))
}

func TestEmptyTrash(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)

	m1 := sendAt(t, tx, s, r, "one", t0)
	m2 := sendAt(t, tx, r, s, "two", t0.Add(time.Hour))
	m3 := sendAt(t, tx, s, r, "three", t0.Add(2*time.Hour))

	deletedAt := t0.Add(3 * time.Hour)
	for _, id := range []int{m1.ID, m2.ID} {
		_, err := DeleteFromUserSide(ctx, tx, id, r.ID, false, deletedAt)
		require.NoError(t, err)
	}

	purged, err := EmptyTrash(ctx, tx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	purged, err = EmptyTrash(ctx, tx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	for _, id := range []int{m1.ID, m2.ID} {
		_, err = FetchMessageForUser(ctx, tx, id, r.ID)
		assert.ErrorIs(t, err, ErrMessageNotFound)
		_, err = FetchMessageForUser(ctx, tx, id, s.ID)
		assert.NoError(t, err, "the other side keeps its copy")
	}
	_, err = FetchMessageForUser(ctx, tx, m3.ID, r.ID)
	assert.NoError(t, err)

	_, err = UndeleteFromUserSide(ctx, tx, m1.ID, r.ID, deletedAt)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	m, err := fetchMessage(ctx, tx, m1.ID, false)
	require.NoError(t, err)
	assert.Equal(t, Purged, StateOf(m, RecipientSide).Kind)
	assert.True(t, deletedAt.Equal(StateOf(m, RecipientSide).DeletedAt), "purging keeps the deletion date")
}

func TestPermanentDeleteDatesThePurge(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)
	m := sendAt(t, tx, s, r, "gone", t0)

	saved, err := DeleteFromUserSide(ctx, tx, m.ID, s.ID, true, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, saved.SenderDeletedAt)
	assert.True(t, saved.SenderPermanentlyDeleted)
	assert.Nil(t, saved.RecipientDeletedAt)
}

func TestCleanup(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)
	now := t0.Add(800 * 24 * time.Hour)

	// The sender deleted long ago; the recipient never did.
	oneSided := sendAt(t, tx, s, r, "one sided", t0)
	_, err := DeleteFromUserSide(ctx, tx, oneSided.ID, s.ID, false, now.Add(-logical-24*time.Hour))
	require.NoError(t, err)

	// Both deleted long ago.
	bothOld := sendAt(t, tx, s, r, "both old", t0.Add(time.Hour))
	for _, u := range []*models.User{s, r} {
		_, err := DeleteFromUserSide(ctx, tx, bothOld.ID, u.ID, false, now.Add(-physical-24*time.Hour))
		require.NoError(t, err)
	}

	// Both deleted, one recently.
	mixed := sendAt(t, tx, s, r, "mixed", t0.Add(2*time.Hour))
	_, err = DeleteFromUserSide(ctx, tx, mixed.ID, s.ID, false, now.Add(-physical-24*time.Hour))
	require.NoError(t, err)
	_, err = DeleteFromUserSide(ctx, tx, mixed.ID, r.ID, false, now.Add(-24*time.Hour))
	require.NoError(t, err)

	res, err := DeleteDeletedMessages(ctx, tx, now, logical, physical)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{Deleted: 1, SenderPurged: 2, RecipientPurged: 0}, res)

	m, err := fetchMessage(ctx, tx, oneSided.ID, false)
	require.NoError(t, err, "the row survives while the recipient keeps it")
	assert.True(t, m.SenderPermanentlyDeleted)
	assert.False(t, m.RecipientPermanentlyDeleted)
	inbox, err := FetchInbox(ctx, tx, r.ID, MailboxQuery{})
	require.NoError(t, err)
	assert.Equal(t, []int{oneSided.ID}, ids(inbox))

	_, err = fetchMessage(ctx, tx, bothOld.ID, false)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	m, err = fetchMessage(ctx, tx, mixed.ID, false)
	require.NoError(t, err)
	assert.Equal(t, Purged, StateOf(m, SenderSide).Kind)
	assert.Equal(t, Trashed, StateOf(m, RecipientSide).Kind)

	last, err := persistentvars.Fetch[time.Time](ctx, tx, persistentvars.LastMessageCleanup)
	require.NoError(t, err)
	assert.True(t, now.Equal(*last))

	before := snapshot(t, tx)
	res, err = DeleteDeletedMessages(ctx, tx, now, logical, physical)
	require.NoError(t, err)
	assert.Equal(t, CleanupResult{}, res)
	assert.Equal(t, before, snapshot(t, tx), "a second run changes nothing")
}

func snapshot(t *testing.T, tx pgx.Tx) []*models.PrivateMessage {
	t.Helper()
	msgs, err := db.Query[models.PrivateMessage](context.Background(), tx,
		`SELECT $columns FROM privatemsg_message ORDER BY id`,
	)
	require.NoError(t, err)
	return msgs
}

func TestRerenderMessages(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	s := dbtest.CreateUser(t, tx)
	r := dbtest.CreateUser(t, tx)
	m := sendAt(t, tx, s, r, "render", t0)

	_, err := tx.Exec(ctx, `UPDATE privatemsg_message SET body_html = 'stale' WHERE id = $1`, m.ID)
	require.NoError(t, err)

	stats, err := rerenderMessages(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rows)

	fresh, err := fetchMessage(ctx, tx, m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, m.BodyHtml, fresh.BodyHtml)
	assert.True(t, m.SentAt.Equal(fresh.SentAt))
}
