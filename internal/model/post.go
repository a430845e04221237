package model

import (
	"errors"
	"time"
)

// Media kinds for a post's single media item.
const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

// Post represents a published media item with its metadata. A post is owned by
// exactly one profile and is immutable once created, except for deletion.
type Post struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	MediaURL  string    `db:"media_url" json:"media_url"`
	MediaKind string    `db:"media_kind" json:"media_kind"`
	Caption   *string   `db:"caption" json:"caption"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Like marks that a user liked a post. Existence is boolean membership: at
// most one row per (post, user) pair, enforced by the backend.
type Like struct {
	PostID    string    `db:"post_id" json:"post_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FeedItem is a post enriched for display: author profile, aggregate counts,
// and whether the current viewer is among the likers. Derived, never persisted.
type FeedItem struct {
	Post         Post    `json:"post"`
	Author       Profile `json:"author"`
	LikeCount    int     `json:"like_count"`
	CommentCount int     `json:"comment_count"`
	Liked        bool    `json:"liked"`
}

// Post constraints
const (
	MaxPostCaptionLength = 2200
	MaxPostMediaSize     = 10 * 1024 * 1024 // 10MB per upload
)

// Post errors
var (
	ErrPostNotFound   = errors.New("post not found")
	ErrNotPostOwner   = errors.New("not the owner of this post")
	ErrCaptionTooLong = errors.New("caption too long")
	ErrNoMedia        = errors.New("a media file is required")
)
