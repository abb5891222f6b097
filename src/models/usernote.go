package models

import "time"

type UserNote struct {
	ID           int    `db:"id"`
	Title        string `db:"title" validate:"required,max=255"`
	AuthorID     int    `db:"author_id"`
	TargetUserID int    `db:"target_user_id"`
	Description  string `db:"description"`
	Sticky       bool   `db:"sticky"`

	CreationDate         time.Time `db:"creation_date"`
	LastModificationDate time.Time `db:"last_modification_date"`
}
