package bugtracker

import (
	"context"
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/dbtest"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func createTicket(t *testing.T, tx pgx.Tx, n notify.Notifier, submitter *models.User, now time.Time) *models.IssueTicket {
	t.Helper()
	ticket, err := CreateTicket(context.Background(), tx, n, submitter,
		models.NewIssueTicket(0, "Crash on start", "It *crashes*."),
		CreateTicketOptions{Now: now},
	)
	require.NoError(t, err)
	return ticket
}

func TestTicketMetadataChange(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, tx)

	ticket := createTicket(t, tx, notify.Discard, u, start)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Equal(t, models.TicketPriorityNeedReview, ticket.Priority)
	assert.Equal(t, models.TicketDifficultyNormal, ticket.Difficulty)
	assert.Contains(t, ticket.DescriptionHtml, "<em>crashes</em>")
	assert.True(t, start.Equal(ticket.SubmissionDate))

	history, err := FetchChanges(ctx, tx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, history, "creating a ticket records no change")

	ip := netip.MustParsePrefix("10.0.0.1/32")
	edit := changes.Track(ticket)
	edit.Current.Difficulty = models.TicketDifficultyImportant
	later := start.Add(time.Hour)
	saved, comment, err := SaveTicket(ctx, tx, notify.Discard, edit, ChangeOptions{
		Comment:  "x",
		Author:   u,
		AuthorIP: &ip,
		Now:      later,
	})
	require.NoError(t, err)
	assert.True(t, start.Equal(saved.SubmissionDate))
	assert.True(t, later.Equal(saved.LastModificationDate))

	require.NotNil(t, comment)
	assert.Equal(t, "x", comment.Body)
	assert.Equal(t, u.ID, comment.AuthorID)
	require.NotNil(t, comment.AuthorIPAddress)
	assert.Equal(t, ip.Addr(), comment.AuthorIPAddress.Addr())

	history, err = FetchChanges(ctx, tx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "difficulty", history[0].FieldName)
	assert.Equal(t, "normal", history[0].OldValue)
	assert.Equal(t, "important", history[0].NewValue)
	assert.Equal(t, comment.ID, history[0].CommentID)

	comments, err := FetchComments(ctx, tx, ticket.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
}

func TestTicketChangeFromStaleSnapshot(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, tx)
	ticket := createTicket(t, tx, notify.Discard, u, start)

	first := changes.Track(ticket)
	second := changes.Track(ticket)

	first.Current.Status = models.TicketStatusConfirmed
	_, _, err := SaveTicket(ctx, tx, notify.Discard, first, ChangeOptions{Author: u, Now: start.Add(time.Hour)})
	require.NoError(t, err)

	second.Current.Status = models.TicketStatusClosed
	_, comment, err := SaveTicket(ctx, tx, notify.Discard, second, ChangeOptions{Author: u, Now: start.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, comment)

	history, err := FetchChanges(ctx, tx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "open", history[0].OldValue)
	assert.Equal(t, "confirmed", history[0].NewValue)
	assert.Equal(t, "confirmed", history[1].OldValue, "old value is what was stored, not what was loaded")
	assert.Equal(t, "closed", history[1].NewValue)
	assert.Equal(t, comment.ID, history[1].CommentID)
}

func TestTicketChangeAtomicity(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	submitter := dbtest.CreateUser(t, tx)
	assignee := dbtest.CreateUser(t, tx)
	staff := dbtest.CreateUser(t, tx, models.PermEditAnyTicket)

	component, err := SaveComponent(ctx, tx, changes.New(models.IssueComponent{InternalName: "renderer", Name: "Renderer"}))
	require.NoError(t, err)

	ticket := createTicket(t, tx, notify.Discard, submitter, start)

	edit := changes.Track(ticket)
	edit.Current.Status = models.TicketStatusConfirmed
	edit.Current.ComponentID = &component.ID
	edit.Current.AssignedToID = &assignee.ID
	edit.Current.Title = "Crash on start (macOS)"
	saved, comment, err := SaveTicket(ctx, tx, notify.Discard, edit, ChangeOptions{Author: staff, Now: start.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, comment)
	assert.Equal(t, staff.ID, comment.AuthorID)
	assert.Equal(t, "", comment.Body)

	history, err := FetchChanges(ctx, tx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	got := map[string][2]string{}
	for _, c := range history {
		assert.Equal(t, comment.ID, c.CommentID)
		got[c.FieldName] = [2]string{c.OldValue, c.NewValue}
	}
	assert.Equal(t, map[string][2]string{
		"assigned_to": {"", assignee.Username},
		"component":   {"", "renderer"},
		"status":      {"open", "confirmed"},
	}, got)

	t.Run("untracked edit makes no comment", func(t *testing.T) {
		edit := changes.Track(saved)
		edit.Current.Description = "Only on macOS."
		_, comment, err := SaveTicket(ctx, tx, notify.Discard, edit, ChangeOptions{Now: start.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.Nil(t, comment)

		count, err := CountComments(ctx, tx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("author defaults to submitter", func(t *testing.T) {
		reloaded, err := FetchTicket(ctx, tx, ticket.ID)
		require.NoError(t, err)
		edit := changes.Track(reloaded)
		edit.Current.AssignedToID = nil
		_, comment, err := SaveTicket(ctx, tx, notify.Discard, edit, ChangeOptions{Now: start.Add(3 * time.Hour)})
		require.NoError(t, err)
		require.NotNil(t, comment)
		assert.Equal(t, submitter.ID, comment.AuthorID)
	})
}

func TestSubscriptions(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	submitter := dbtest.CreateUser(t, tx)
	other := dbtest.CreateUser(t, tx)

	ticket := createTicket(t, tx, notify.Discard, submitter, start)

	subscribed, err := IsSubscribed(ctx, tx, ticket.ID, submitter.ID)
	require.NoError(t, err)
	assert.True(t, subscribed, "submitters are subscribed by default")

	require.NoError(t, Unsubscribe(ctx, tx, ticket.ID, other.ID), "unsubscribing without a subscription is a no-op")
	require.NoError(t, Subscribe(ctx, tx, ticket.ID, other.ID))
	require.NoError(t, Subscribe(ctx, tx, ticket.ID, other.ID))

	subscribers, err := FetchSubscribers(ctx, tx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, subscribers, 2)

	require.NoError(t, Unsubscribe(ctx, tx, ticket.ID, other.ID))
	subscribers, err = FetchSubscribers(ctx, tx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, subscribers, 1)
	assert.Equal(t, submitter.ID, subscribers[0].ID)

	rows, err := db.QueryOneScalar[int](ctx, tx, "SELECT COUNT(*) FROM bugtracker_issue_subscription WHERE issue_id = $1", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rows, "unsubscribing keeps the row")

	require.NoError(t, Subscribe(ctx, tx, ticket.ID, other.ID))
	subscribed, err = IsSubscribed(ctx, tx, ticket.ID, other.ID)
	require.NoError(t, err)
	assert.True(t, subscribed)
}

func TestNotifications(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	submitter := dbtest.CreateUser(t, tx)
	watcher := dbtest.CreateUser(t, tx)
	commenter := dbtest.CreateUser(t, tx)
	quiet := dbtest.CreateUser(t, tx)

	for _, u := range []*models.User{submitter, watcher} {
		require.NoError(t, SaveProfileSettings(ctx, tx, &models.BugTrackerUserProfile{
			UserID:                 u.ID,
			NotifyOfNewIssue:       true,
			NotifyOfReplyByDefault: true,
		}))
	}
	require.NoError(t, SaveProfileSettings(ctx, tx, &models.BugTrackerUserProfile{UserID: quiet.ID}))

	var rec notify.Recorder
	ticket := createTicket(t, tx, &rec, submitter, start)
	assert.Equal(t, []int{watcher.ID}, rec.Recipients(), "the submitter is not told about their own issue")

	var replies notify.Recorder
	_, err := PostComment(ctx, tx, &replies, ticket.ID, commenter, "Same here", CommentOptions{Now: start.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []int{submitter.ID}, replies.Recipients())

	var more notify.Recorder
	_, err = PostComment(ctx, tx, &more, ticket.ID, quiet, "Me too", CommentOptions{Now: start.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{submitter.ID, commenter.ID}, more.Recipients())

	subscribed, err := IsSubscribed(ctx, tx, ticket.ID, quiet.ID)
	require.NoError(t, err)
	assert.False(t, subscribed, "quiet does not subscribe on reply")

	n := more.Sent()[0]
	assert.Equal(t, tmplNewCommentTitle, n.TitleTemplate)
	assert.Contains(t, n.Context["Url"], "/tickets/comments/")
}

func TestCommentFlooding(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, tx)

	ticket := createTicket(t, tx, notify.Discard, u, start)

	_, err := PostComment(ctx, tx, notify.Discard, ticket.ID, u, "too soon", CommentOptions{Now: start.Add(time.Second)})
	require.Error(t, err)
	assert.Equal(t, antiflood.Code, oops.CodeOf(err))
	var floodErr *antiflood.Error
	require.ErrorAs(t, err, &floodErr)
	assert.Equal(t, 59*time.Second, floodErr.Remaining)

	count, err := CountComments(ctx, tx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "a refused post writes nothing")

	profile, err := FetchOrCreateProfile(ctx, tx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.LastCommentDate)
	assert.True(t, start.Equal(*profile.LastCommentDate), "a refused post does not rearm the timer")

	_, err = PostComment(ctx, tx, notify.Discard, ticket.ID, u, "patient", CommentOptions{Now: start.Add(time.Minute)})
	require.NoError(t, err)

	_, err = PostComment(ctx, tx, notify.Discard, ticket.ID+1000, u, "lost", CommentOptions{Now: start.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCommentEditingAndLocation(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	author := dbtest.CreateUser(t, tx)
	stranger := dbtest.CreateUser(t, tx)
	moderator := dbtest.CreateUser(t, tx, models.PermEditAnyTicket)

	ticket := createTicket(t, tx, notify.Discard, author, start)

	var posted []*models.IssueComment
	for i := 0; i < 4; i++ {
		c, err := PostComment(ctx, tx, notify.Discard, ticket.ID, author, "comment", CommentOptions{Now: start.Add(time.Duration(i+1) * time.Hour)})
		require.NoError(t, err)
		posted = append(posted, c)
	}

	loc, err := CommentLocation(ctx, tx, posted[2], 2)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loc, "?page=2#comment-"+strconv.Itoa(posted[2].ID)), loc)

	loc, err = CommentLocation(ctx, tx, posted[0], 2)
	require.NoError(t, err)
	assert.Contains(t, loc, "page=1")

	page, err := FetchComments(ctx, tx, ticket.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, posted[2].ID, page[0].ID)

	edit := changes.Track(posted[0])
	edit.Current.Body = "**edited**"
	_, err = EditComment(ctx, tx, stranger, edit, start.Add(10*time.Hour))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	edited, err := EditComment(ctx, tx, moderator, edit, start.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, edited.BodyHtml, "<strong>edited</strong>")
	assert.True(t, start.Add(10*time.Hour).Equal(edited.LastModificationDate))
	assert.True(t, posted[0].PubDate.Equal(edited.PubDate))
}

func TestTicketListing(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	u := dbtest.CreateUser(t, tx)

	open := createTicket(t, tx, notify.Discard, u, start)
	closed := createTicket(t, tx, notify.Discard, u, start.Add(time.Hour))
	edit := changes.Track(closed)
	edit.Current.Status = models.TicketStatusClosed
	_, _, err := SaveTicket(ctx, tx, notify.Discard, edit, ChangeOptions{Now: start.Add(2 * time.Hour)})
	require.NoError(t, err)

	unresolved, err := FetchTickets(ctx, tx, TicketsQuery{Statuses: UnresolvedStatuses()})
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, open.ID, unresolved[0].ID)

	all, err := FetchTickets(ctx, tx, TicketsQuery{SubmitterID: &u.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, closed.ID, all[0].ID, "most recently modified first")

	count, err := CountTickets(ctx, tx, TicketsQuery{Statuses: []models.TicketStatus{models.TicketStatusClosed}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	paged, err := FetchTickets(ctx, tx, TicketsQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, open.ID, paged[0].ID)
}

func TestRerenderTicketsAndComments(t *testing.T) {
	tx := dbtest.Begin(t)
	ctx := context.Background()
	titled := dbtest.CreateUser(t, tx, models.PermAllowTitles)

	ticket, err := CreateTicket(ctx, tx, notify.Discard, titled,
		models.NewIssueTicket(0, "Headings", "# Steps"),
		CreateTicketOptions{Now: start},
	)
	require.NoError(t, err)
	assert.Contains(t, ticket.DescriptionHtml, "<h1")

	_, err = tx.Exec(ctx, "UPDATE bugtracker_issue_ticket SET description_html = '' WHERE id = $1", ticket.ID)
	require.NoError(t, err)

	for _, h := range RerenderHandlers {
		stats, err := h.Rerender(ctx, tx)
		require.NoError(t, err, h.Kind)
		assert.Zero(t, stats.Failed)
	}

	reloaded, err := FetchTicket(ctx, tx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.DescriptionHtml, reloaded.DescriptionHtml)
	assert.True(t, ticket.LastModificationDate.Equal(reloaded.LastModificationDate))
}

func TestUnknownSubmitter(t *testing.T) {
	tx := dbtest.Begin(t)
	ticket := models.NewIssueTicket(1_000_000, "Ghost", "")
	_, _, err := SaveTicket(context.Background(), tx, notify.Discard, changes.New(ticket), ChangeOptions{})
	assert.ErrorIs(t, err, ErrUnknownSubmitter)
}
