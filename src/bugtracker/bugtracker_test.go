package bugtracker

import (
	"testing"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/utils"
	"github.com/stretchr/testify/assert"
)

func TestPlanTicketChanges(t *testing.T) {
	base := models.NewIssueTicket(1, "Crash", "boom")
	base.ID = 4

	diffOf := func(mutate func(t *models.IssueTicket)) changes.Diff {
		edit := changes.Track(&base)
		mutate(&edit.Current)
		return edit.Diff().Only(trackedColumns()...)
	}

	t.Run("difficulty", func(t *testing.T) {
		diff := diffOf(func(t *models.IssueTicket) { t.Difficulty = models.TicketDifficultyImportant })
		assert.Equal(t, []models.IssueChange{
			{FieldName: "difficulty", OldValue: "normal", NewValue: "important"},
		}, planTicketChanges(diff, changeNames{}))
	})

	t.Run("untracked fields make no changes", func(t *testing.T) {
		diff := diffOf(func(t *models.IssueTicket) {
			t.Title = "Crash on start"
			t.Description = "it goes boom"
		})
		assert.Empty(t, planTicketChanges(diff, changeNames{}))
	})

	t.Run("foreign keys are named", func(t *testing.T) {
		diff := diffOf(func(t *models.IssueTicket) {
			t.ComponentID = utils.Ptr(3)
			t.AssignedToID = utils.Ptr(9)
		})
		names := changeNames{
			Components: map[int]string{3: "renderer"},
			Usernames:  map[int]string{9: "alice"},
		}
		assert.Equal(t, []models.IssueChange{
			{FieldName: "assigned_to", OldValue: "", NewValue: "alice"},
			{FieldName: "component", OldValue: "", NewValue: "renderer"},
		}, planTicketChanges(diff, names))
		assert.ElementsMatch(t, []int{3}, referencedIDs(diff, "component_id"))
	})

	t.Run("unknown reference is empty", func(t *testing.T) {
		withComponent := base
		withComponent.ComponentID = utils.Ptr(3)
		edit := changes.Track(&withComponent)
		edit.Current.ComponentID = utils.Ptr(5)
		diff := edit.Diff().Only(trackedColumns()...)
		assert.ElementsMatch(t, []int{3, 5}, referencedIDs(diff, "component_id"))

		planned := planTicketChanges(diff, changeNames{Components: map[int]string{3: "renderer"}})
		assert.Equal(t, []models.IssueChange{
			{FieldName: "component", OldValue: "renderer", NewValue: ""},
		}, planned)
	})

	t.Run("alphabetical", func(t *testing.T) {
		diff := diffOf(func(t *models.IssueTicket) {
			t.Status = models.TicketStatusClosed
			t.Priority = models.TicketPriorityMajor
			t.Difficulty = models.TicketDifficultyEasy
		})
		var fields []string
		for _, c := range planTicketChanges(diff, changeNames{}) {
			fields = append(fields, c.FieldName)
		}
		assert.Equal(t, []string{"difficulty", "priority", "status"}, fields)
	})
}

func TestCommentPage(t *testing.T) {
	assert.Equal(t, 1, CommentPage(1, 15))
	assert.Equal(t, 1, CommentPage(15, 15))
	assert.Equal(t, 2, CommentPage(16, 15))
	assert.Equal(t, 3, CommentPage(31, 15))
	assert.Equal(t, 1, CommentPage(0, 15))
	assert.Equal(t, 1, CommentPage(7, 0))
}

func TestCanEditTicket(t *testing.T) {
	ticket := &models.IssueTicket{SubmitterID: 1}
	assert.False(t, CanEditTicket(nil, ticket))
	assert.True(t, CanEditTicket(&models.User{ID: 1}, ticket))
	assert.False(t, CanEditTicket(&models.User{ID: 2}, ticket))
	assert.True(t, CanEditTicket(&models.User{ID: 2, IsStaff: true}, ticket))
	assert.True(t, CanEditTicket(&models.User{ID: 2, Permissions: []string{models.PermEditAnyTicket}}, ticket))
}

func TestUnresolvedStatuses(t *testing.T) {
	statuses := UnresolvedStatuses()
	assert.Contains(t, statuses, models.TicketStatusOpen)
	assert.NotContains(t, statuses, models.TicketStatusClosed)
	for _, s := range statuses {
		assert.False(t, s.IsResolved())
	}
}
