package model

import (
	"errors"
	"time"
)

// Comment represents a comment on a post, ordered by creation time ascending
// within the post. Only its author may delete it.
type Comment struct {
	ID        string    `db:"id" json:"id"`
	PostID    string    `db:"post_id" json:"post_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Author    *Profile  `db:"-" json:"author,omitempty"` // Joined field
}

// Comment constraints
const (
	MaxCommentLength = 2200
)

// Comment errors
var (
	ErrCommentNotFound  = errors.New("comment not found")
	ErrNotCommentAuthor = errors.New("not the author of this comment")
	ErrCommentEmpty     = errors.New("comment body is required")
	ErrCommentTooLong   = errors.New("comment body too long")
)
