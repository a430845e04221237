// Package gateway defines the surface this app consumes from its hosted
// backend: a relational table store reached through generated REST calls,
// object storage for media blobs, and the auth service's session lifecycle.
//
// Two implementations exist: gateway/rest talks to the hosted service, and
// gateway/direct runs against self-hosted Postgres and S3-compatible storage.
package gateway

import (
	"context"
	"errors"
	"io"
	"time"
)

// Op is a filter operator understood by both table store implementations.
type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpILike Op = "ilike"
)

// Filter restricts a table operation to matching rows.
// For OpILike the value is a plain substring; each implementation adds its
// own wildcard syntax around it.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq matches rows where column equals value.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In matches rows where column is any of values.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// ILike matches rows where column contains substr, case-insensitively.
func ILike(column, substr string) Filter {
	return Filter{Column: column, Op: OpILike, Value: substr}
}

// Order sorts a select by a single column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a table select. Zero values mean "all columns, no filter,
// backend default order, no limit".
type Query struct {
	Columns []string
	Filters []Filter
	Order   *Order
	Limit   int
}

// TableStore is the row-level CRUD surface of the backend's table API.
// dest must be a pointer; Select expects a pointer to a slice. Insert and
// Update decode the written row into dest when dest is non-nil.
type TableStore interface {
	Select(ctx context.Context, table string, q Query, dest any) error
	Insert(ctx context.Context, table string, row any, dest any) error
	Update(ctx context.Context, table string, patch map[string]any, filters []Filter, dest any) error
	Delete(ctx context.Context, table string, filters []Filter) error
}

// BlobStore is the object-storage surface: write a blob, get its public URL.
type BlobStore interface {
	Upload(ctx context.Context, bucket, path string, r io.Reader, contentType string) error
	PublicURL(bucket, path string) string
}

// Session is the signed-in identity as reported by the auth service.
type Session struct {
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the session's access token is past its expiry.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Authenticator is the auth-service surface. CurrentSession returns (nil, nil)
// when signed out. OnChange callbacks fire on sign-in and sign-out, with nil
// on sign-out.
type Authenticator interface {
	CurrentSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	OnChange(fn func(*Session))
}

// Error taxonomy shared by both implementations. Callers that care match with
// errors.Is; everything else is a transient failure to surface non-fatally.
var (
	ErrConflict     = errors.New("gateway: conflict")
	ErrNotFound     = errors.New("gateway: not found")
	ErrUnauthorized = errors.New("gateway: unauthorized")
)
