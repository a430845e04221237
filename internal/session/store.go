// Package session tracks the signed-in viewer and provisions their profile
// row lazily on first sign-in.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

const profilesTable = "profiles"

// Store owns the viewer identity. Components that render per-viewer state
// subscribe to it instead of reading ambient globals, and clear themselves on
// the sign-out transition.
type Store struct {
	auth   gateway.Authenticator
	table  gateway.TableStore
	blobs  gateway.BlobStore
	bucket string

	mu      sync.Mutex
	session *gateway.Session
	profile *model.Profile
	subs    []func(*gateway.Session)
}

// New creates a Store. blobs and bucket serve avatar uploads and may be left
// zero when the embedding app does not expose that surface.
func New(auth gateway.Authenticator, table gateway.TableStore, blobs gateway.BlobStore, bucket string) *Store {
	return &Store{auth: auth, table: table, blobs: blobs, bucket: bucket}
}

// Init asks the gateway for an existing session once at startup and registers
// for subsequent sign-in/sign-out events. Profile provisioning failure is not
// fatal: Profile retries lazily on the next call.
func (s *Store) Init(ctx context.Context) error {
	s.auth.OnChange(s.handleChange)

	sess, err := s.auth.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("get current session: %w", err)
	}
	if sess == nil {
		return nil
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	if _, err := s.Profile(ctx); err != nil {
		log.Printf("[Session] Profile provisioning deferred: %v", err)
	}
	return nil
}

// handleChange reacts to an externally delivered sign-in/sign-out event.
func (s *Store) handleChange(sess *gateway.Session) {
	s.mu.Lock()
	s.session = sess
	s.profile = nil
	subs := make([]func(*gateway.Session), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if sess != nil {
		if _, err := s.Profile(context.Background()); err != nil {
			log.Printf("[Session] Profile provisioning deferred: %v", err)
		}
	}

	for _, fn := range subs {
		fn(sess)
	}
}

// Subscribe registers a callback for sign-in/sign-out transitions. The
// callback receives nil on sign-out; dependent view state must clear then.
func (s *Store) Subscribe(fn func(*gateway.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Viewer returns the current viewer's id, or ("", false) when signed out.
func (s *Store) Viewer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return "", false
	}
	return s.session.UserID, true
}

// Profile returns the viewer's profile, creating the row on first sign-in.
// A nil error guarantees a non-nil profile.
func (s *Store) Profile(ctx context.Context) (*model.Profile, error) {
	s.mu.Lock()
	sess := s.session
	if s.profile != nil {
		p := *s.profile
		s.mu.Unlock()
		return &p, nil
	}
	s.mu.Unlock()

	if sess == nil {
		return nil, model.ErrNotSignedIn
	}

	profile, err := s.ensureProfile(ctx, sess)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// The session may have changed while we were provisioning; only cache
	// the profile if it still belongs to the current viewer.
	if s.session != nil && s.session.UserID == profile.ID {
		s.profile = profile
	}
	s.mu.Unlock()

	return profile, nil
}

// ensureProfile fetches the viewer's profile row, creating it with a probed
// unique handle when absent.
func (s *Store) ensureProfile(ctx context.Context, sess *gateway.Session) (*model.Profile, error) {
	existing, err := s.lookupProfile(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	return s.createProfile(ctx, sess)
}

// lookupProfile fetches the profile row for userID, or (nil, nil) when absent.
func (s *Store) lookupProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var existing []model.Profile
	err := s.table.Select(ctx, profilesTable, gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("id", userID)},
		Limit:   1,
	}, &existing)
	if err != nil {
		return nil, fmt.Errorf("look up profile: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	p := existing[0]
	return &p, nil
}

// createProfile probes handle candidates base, base1, base2, ... until an
// unused one is found. A unique violation on insert means another client won
// the race for that handle; probing resumes at the next candidate.
func (s *Store) createProfile(ctx context.Context, sess *gateway.Session) (*model.Profile, error) {
	base := HandleFromEmail(sess.Email)

	for i := 0; i < model.MaxHandleProbes; i++ {
		candidate := base
		if i > 0 {
			candidate = base + strconv.Itoa(i)
		}

		var taken []model.Profile
		err := s.table.Select(ctx, profilesTable, gateway.Query{
			Columns: []string{"id"},
			Filters: []gateway.Filter{gateway.Eq("handle", candidate)},
			Limit:   1,
		}, &taken)
		if err != nil {
			return nil, fmt.Errorf("probe handle %q: %w", candidate, err)
		}
		if len(taken) > 0 {
			continue
		}

		row := model.Profile{
			ID:        sess.UserID,
			Handle:    candidate,
			CreatedAt: time.Now().UTC(),
		}
		var inserted model.Profile
		if err := s.table.Insert(ctx, profilesTable, row, &inserted); err != nil {
			if errors.Is(err, gateway.ErrConflict) {
				// The conflict may be on the id, not the handle: this user
				// provisioning concurrently from another client. Adopt that
				// row instead of burning through the probe sequence.
				if existing, lerr := s.lookupProfile(ctx, sess.UserID); lerr == nil && existing != nil {
					return existing, nil
				}
				continue
			}
			return nil, fmt.Errorf("create profile: %w", err)
		}
		log.Printf("[Session] Created profile %s with handle %q", inserted.ID, inserted.Handle)
		return &inserted, nil
	}

	return nil, model.ErrHandleExhausted
}

// HandleFromEmail derives a handle base from the email's local part: lowered
// and reduced to [a-z0-9_]. An empty result falls back to "user".
func HandleFromEmail(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)

	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	handle := b.String()
	if handle == "" {
		return "user"
	}
	if len(handle) > model.MaxHandleLength {
		handle = handle[:model.MaxHandleLength]
	}
	return handle
}
