package blog

import (
	"time"

	"git.cdm.community/cdm/cdm/src/models"
)

// Whether readers can see the article at time now.
func IsPublished(a *models.Article, now time.Time) bool {
	if a.Status != models.ArticleStatusPublished || a.PubDate == nil {
		return false
	}
	if a.PubDate.After(now) {
		return false
	}
	return a.ExpirationDate == nil || !now.After(*a.ExpirationDate)
}

// A gone article was deleted or has expired. Gone takes precedence over
// published: an expired article keeps its published status.
func IsGone(a *models.Article, now time.Time) bool {
	if a.Status == models.ArticleStatusDeleted {
		return true
	}
	return a.ExpirationDate != nil && now.After(*a.ExpirationDate)
}

func RequiresMembership(a *models.Article, now time.Time) bool {
	if !a.MembershipRequired {
		return false
	}
	return a.MembershipRequiredExpirationDate == nil || !now.After(*a.MembershipRequiredExpirationDate)
}

// Authors can always preview their own articles. Anyone else needs the
// can_see_preview capability.
func CanSeePreview(a *models.Article, user *models.User) bool {
	if user == nil {
		return false
	}
	return user.ID == a.AuthorID || user.Has(models.PermCanSeePreview)
}

// An article is old when its content hasn't changed for longer than
// threshold. Unpublished articles are never old.
func IsOld(a *models.Article, now time.Time, threshold time.Duration) bool {
	ref := a.LastContentModificationDate
	if ref == nil {
		ref = a.PubDate
	}
	if ref == nil {
		return false
	}
	return ref.Before(now.Add(-threshold))
}

type Visibility int

const (
	VisibilityNotFound Visibility = iota
	VisibilityVisible
	// Not published, but the user may look at it anyway.
	VisibilityPreview
	VisibilityGone
)

func (v Visibility) String() string {
	switch v {
	case VisibilityVisible:
		return "visible"
	case VisibilityPreview:
		return "preview"
	case VisibilityGone:
		return "gone"
	}
	return "not_found"
}

/*
Decides what a user requesting the article at time now gets. Gone is checked
first, then publication, then preview rights. Callers map gone to 410, not
found to 404 and the rest to 200.
*/
func VisibilityFor(a *models.Article, user *models.User, now time.Time) Visibility {
	if IsGone(a, now) {
		return VisibilityGone
	}
	if IsPublished(a, now) {
		return VisibilityVisible
	}
	if CanSeePreview(a, user) {
		return VisibilityPreview
	}
	return VisibilityNotFound
}
