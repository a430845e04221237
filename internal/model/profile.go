package model

import (
	"errors"
	"time"
)

// Profile is the public identity of a user, keyed by the auth service's user
// id. The row is provisioned lazily on first sign-in with a probed unique
// handle.
type Profile struct {
	ID          string    `db:"id" json:"id"`
	Handle      string    `db:"handle" json:"handle"`
	DisplayName *string   `db:"display_name" json:"display_name"`
	Bio         *string   `db:"bio" json:"bio"`
	AvatarURL   *string   `db:"avatar_url" json:"avatar_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Profile constraints
const (
	MaxHandleLength = 30
	MaxBioLength    = 150

	// MaxHandleProbes bounds the base, base1, base2, ... probe sequence when
	// provisioning a handle.
	MaxHandleProbes = 50
)

// Profile errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNotSignedIn     = errors.New("not signed in")
	ErrHandleExhausted = errors.New("could not find a free handle")
)
