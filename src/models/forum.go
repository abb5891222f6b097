package models

import (
	"net/netip"
	"time"
)

type Forum struct {
	ID    int    `db:"id"`
	Title string `db:"title"`
	Slug  string `db:"slug"`
}

type ForumThread struct {
	ID          int       `db:"id"`
	ForumID     int       `db:"forum_id"`
	Title       string    `db:"title"`
	AuthorID    int       `db:"author_id"`
	PubDate     time.Time `db:"pub_date"`
	FirstPostID *int      `db:"first_post_id"`
}

type ForumPost struct {
	ID          int           `db:"id"`
	ThreadID    int           `db:"thread_id"`
	AuthorID    int           `db:"author_id"`
	PubDate     time.Time     `db:"pub_date"`
	ContentHtml string        `db:"content_html"`
	AuthorIP    *netip.Prefix `db:"author_ip"`
}
