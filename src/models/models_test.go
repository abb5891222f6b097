package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserHas(t *testing.T) {
	var anon *User
	assert.False(t, anon.Has(PermCanSeePreview))
	assert.Nil(t, anon.IDOrNil())

	u := &User{ID: 3, Permissions: []string{PermAllowTitles}}
	assert.True(t, u.Has(PermAllowTitles))
	assert.False(t, u.Has(PermCanSeePreview))
	assert.Equal(t, 3, *u.IDOrNil())

	admin := &User{IsSuperuser: true}
	assert.True(t, admin.Has(PermCanSeePreview))
}

func TestValidate(t *testing.T) {
	t.Run("ticket defaults are valid", func(t *testing.T) {
		ticket := NewIssueTicket(1, "Crash on start", "it crashes")
		assert.NoError(t, Validate(ticket))
	})
	t.Run("unknown enum value", func(t *testing.T) {
		ticket := NewIssueTicket(1, "Crash on start", "")
		ticket.Difficulty = "impossible"
		err := Validate(ticket)
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "Difficulty failed oneof")
	})
	t.Run("note type", func(t *testing.T) {
		assert.NoError(t, Validate(ArticleNote{Type: NoteTypeWarning}))
		assert.Error(t, Validate(ArticleNote{Type: "shouting"}))
	})
	t.Run("license url", func(t *testing.T) {
		assert.NoError(t, Validate(License{Name: "CC-BY"}))
		assert.NoError(t, Validate(License{Name: "CC-BY", SourceUrl: "https://creativecommons.org/licenses/by/4.0/"}))
		assert.Error(t, Validate(License{Name: "CC-BY", SourceUrl: "not a url"}))
	})
	t.Run("snippet tab size", func(t *testing.T) {
		s := CodeSnippet{Title: "t", Filename: "a.go", CodeLanguage: "go", TabSize: 0}
		assert.Error(t, Validate(s))
		s.TabSize = 4
		assert.NoError(t, Validate(s))
	})
	t.Run("long slug", func(t *testing.T) {
		long := make([]byte, 256)
		for i := range long {
			long[i] = 'a'
		}
		assert.Error(t, Validate(ArticleTag{Name: "x", Slug: string(long)}))
	})
	t.Run("markup length is capped", func(t *testing.T) {
		a := Article{Title: "t", AuthorID: 1, Status: ArticleStatusDraft}
		a.Content = strings.Repeat("x", 200000)
		assert.NoError(t, Validate(a))
		a.Content += "x"
		err := Validate(a)
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "Content failed max")
	})
}

func TestTicketStatusResolved(t *testing.T) {
	assert.False(t, TicketStatusOpen.IsResolved())
	assert.True(t, TicketStatusClosed.IsResolved())
}

func TestProfileFlooding(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Second

	bt := &BugTrackerUserProfile{}
	assert.False(t, bt.IsFlooding(now, window))
	last := now.Add(-window)
	bt.LastCommentDate = &last
	assert.False(t, bt.IsFlooding(now, window))
	last = now.Add(-window + time.Second)
	assert.True(t, bt.IsFlooding(now, window))

	pm := &PrivateMessageUserProfile{}
	assert.False(t, pm.IsFlooding(now, window))
	pm.LastSentPrivateMsgDate = &now
	assert.True(t, pm.IsFlooding(now, window))
}
