package models

import (
	"net/netip"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
)

type TicketStatus string

const (
	TicketStatusOpen        TicketStatus = "open"
	TicketStatusNeedDetails TicketStatus = "need_details"
	TicketStatusConfirmed   TicketStatus = "confirmed"
	TicketStatusWorkingOn   TicketStatus = "working_on"
	TicketStatusDeferred    TicketStatus = "deferred"
	TicketStatusDuplicate   TicketStatus = "duplicate"
	TicketStatusWontFix     TicketStatus = "wontfix"
	TicketStatusClosed      TicketStatus = "closed"
	TicketStatusInvalid     TicketStatus = "invalid"
	TicketStatusWorksForMe  TicketStatus = "worksforme"
)

// IsResolved is true for the statuses that take a ticket out of the open list.
func (s TicketStatus) IsResolved() bool {
	switch s {
	case TicketStatusDuplicate, TicketStatusWontFix, TicketStatusClosed, TicketStatusInvalid, TicketStatusWorksForMe:
		return true
	}
	return false
}

type TicketPriority string

const (
	TicketPriorityGodzilla   TicketPriority = "godzilla"
	TicketPriorityCritical   TicketPriority = "critical"
	TicketPriorityMajor      TicketPriority = "major"
	TicketPriorityMinor      TicketPriority = "minor"
	TicketPriorityTrivial    TicketPriority = "trivial"
	TicketPriorityNeedReview TicketPriority = "needreview"
	TicketPriorityFeature    TicketPriority = "feature"
	TicketPriorityWishlist   TicketPriority = "wishlist"
	TicketPriorityInvalid    TicketPriority = "invalid"
)

type TicketDifficulty string

const (
	TicketDifficultyDesign    TicketDifficulty = "design"
	TicketDifficultyImportant TicketDifficulty = "important"
	TicketDifficultyNormal    TicketDifficulty = "normal"
	TicketDifficultyEasy      TicketDifficulty = "easy"
)

type IssueComponent struct {
	ID           int    `db:"id"`
	InternalName string `db:"internal_name" validate:"required,max=255"`
	Name         string `db:"name" validate:"required,max=255"`
	Description  string `db:"description"`
}

type IssueTicket struct {
	ID int `db:"id"`

	Title           string `db:"title" validate:"required,max=255"`
	Description     string `db:"description" validate:"max=200000"`
	DescriptionHtml string `db:"description_html"`
	DescriptionText string `db:"description_text"`

	ComponentID        *int          `db:"component_id"`
	SubmitterID        int           `db:"submitter_id" validate:"required"`
	AssignedToID       *int          `db:"assigned_to_id"`
	SubmitterIPAddress *netip.Prefix `db:"submitter_ip_address"`

	Status     TicketStatus     `db:"status" validate:"oneof=open need_details confirmed working_on deferred duplicate wontfix closed invalid worksforme"`
	Priority   TicketPriority   `db:"priority" validate:"oneof=godzilla critical major minor trivial needreview feature wishlist invalid"`
	Difficulty TicketDifficulty `db:"difficulty" validate:"oneof=design important normal easy"`

	SubmissionDate       time.Time `db:"submission_date"`
	LastModificationDate time.Time `db:"last_modification_date"`
}

// A ticket with the defaults a new submission starts with.
func NewIssueTicket(submitterID int, title, description string) IssueTicket {
	return IssueTicket{
		SubmitterID: submitterID,
		Title:       title,
		Description: description,
		Status:      TicketStatusOpen,
		Priority:    TicketPriorityNeedReview,
		Difficulty:  TicketDifficultyNormal,
	}
}

type IssueComment struct {
	ID      int `db:"id"`
	IssueID int `db:"issue_id"`

	AuthorID        int           `db:"author_id"`
	AuthorIPAddress *netip.Prefix `db:"author_ip_address"`

	PubDate              time.Time `db:"pub_date"`
	LastModificationDate time.Time `db:"last_modification_date"`

	Body     string `db:"body"`
	BodyHtml string `db:"body_html"`
	BodyText string `db:"body_text"`
}

type IssueChange struct {
	ID         int       `db:"id"`
	IssueID    int       `db:"issue_id"`
	CommentID  int       `db:"comment_id"`
	ChangeDate time.Time `db:"change_date"`
	FieldName  string    `db:"field_name"`
	OldValue   string    `db:"old_value"`
	NewValue   string    `db:"new_value"`
}

type IssueTicketSubscription struct {
	ID      int  `db:"id"`
	IssueID int  `db:"issue_id"`
	UserID  int  `db:"user_id"`
	Active  bool `db:"active"`
}

type BugTrackerUserProfile struct {
	UserID                 int        `db:"user_id"`
	NotifyOfNewIssue       bool       `db:"notify_of_new_issue"`
	NotifyOfReplyByDefault bool       `db:"notify_of_reply_by_default"`
	LastCommentDate        *time.Time `db:"last_comment_date"`
}

// IsFlooding reports whether the user commented less than window ago.
func (p *BugTrackerUserProfile) IsFlooding(now time.Time, window time.Duration) bool {
	return antiflood.IsFlooding(p.LastCommentDate, window, now)
}
