package model

import (
	"errors"
	"time"
)

// Follow is a directed subscription edge from follower to followee. At most
// one row per pair, enforced by the backend.
type Follow struct {
	FollowerID string    `db:"follower_id" json:"follower_id"`
	FolloweeID string    `db:"followee_id" json:"followee_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SearchLimit caps the number of profiles returned by a handle search.
const SearchLimit = 10

var (
	ErrCannotFollowSelf = errors.New("cannot follow yourself")
)
