package models

import (
	"slices"
	"time"
)

// Capabilities a user can be granted. They are stored as plain strings in
// auth_user.permissions.
const (
	PermCanSeePreview   = "can_see_preview"
	PermAllowTitles     = "allow_titles"
	PermAllowAlertsBox  = "allow_alerts_box"
	PermAllowTextColors = "allow_text_colors"
	PermAllowCdmExtra   = "allow_cdm_extra"
	PermAllowRawLink    = "allow_raw_link"
	PermEditAnyArticle  = "edit_any_article"
	PermEditAnyTicket   = "edit_any_ticket"
)

type User struct {
	ID int `db:"id"`

	Username string `db:"username" validate:"required,max=150"`
	Email    string `db:"email"`

	IsActive    bool `db:"is_active"`
	IsStaff     bool `db:"is_staff"`
	IsSuperuser bool `db:"is_superuser"`

	Permissions []string  `db:"permissions"`
	DateJoined  time.Time `db:"date_joined"`
}

// Has reports whether the user holds a capability. Superusers hold all of
// them. A nil user holds none, which lets anonymous callers pass nil.
func (u *User) Has(perm string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	return slices.Contains(u.Permissions, perm)
}

// IDOrNil returns a pointer to the user's id, or nil for an anonymous user.
func (u *User) IDOrNil() *int {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
