package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// =============================================================================
// MOCKS
// =============================================================================

type mockAuth struct {
	currentFn func(ctx context.Context) (*gateway.Session, error)

	mu       sync.Mutex
	onChange func(*gateway.Session)
}

func (m *mockAuth) CurrentSession(ctx context.Context) (*gateway.Session, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx)
	}
	return nil, nil
}

func (m *mockAuth) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAuth) SignUp(ctx context.Context, email, password string) (*gateway.Session, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAuth) SignOut(ctx context.Context) error { return nil }

func (m *mockAuth) OnChange(fn func(*gateway.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// fire delivers a session change event the way the gateway would.
func (m *mockAuth) fire(sess *gateway.Session) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(sess)
	}
}

type mockTable struct {
	selectFn func(ctx context.Context, table string, q gateway.Query, dest any) error
	insertFn func(ctx context.Context, table string, row any, dest any) error
	updateFn func(ctx context.Context, table string, patch map[string]any, filters []gateway.Filter, dest any) error
}

func (m *mockTable) Select(ctx context.Context, table string, q gateway.Query, dest any) error {
	return m.selectFn(ctx, table, q, dest)
}

func (m *mockTable) Insert(ctx context.Context, table string, row any, dest any) error {
	return m.insertFn(ctx, table, row, dest)
}

func (m *mockTable) Update(ctx context.Context, table string, patch map[string]any, filters []gateway.Filter, dest any) error {
	return m.updateFn(ctx, table, patch, filters, dest)
}

func (m *mockTable) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	return nil
}

// profileTable simulates the profiles table for handle probing: rowByID maps
// viewer id to an existing row, taken is the set of handles in use.
type profileTable struct {
	mockTable
	mu       sync.Mutex
	rowByID  map[string]model.Profile
	taken    map[string]bool
	inserted []model.Profile
}

func newProfileTable(takenHandles ...string) *profileTable {
	pt := &profileTable{
		rowByID: make(map[string]model.Profile),
		taken:   make(map[string]bool),
	}
	for _, h := range takenHandles {
		pt.taken[h] = true
	}
	pt.selectFn = pt.doSelect
	pt.insertFn = pt.doInsert
	return pt
}

func (pt *profileTable) doSelect(ctx context.Context, table string, q gateway.Query, dest any) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	out := dest.(*[]model.Profile)
	for _, f := range q.Filters {
		switch f.Column {
		case "id":
			if row, ok := pt.rowByID[f.Value.(string)]; ok {
				*out = append(*out, row)
			}
			return nil
		case "handle":
			if pt.taken[f.Value.(string)] {
				*out = append(*out, model.Profile{ID: "someone-else", Handle: f.Value.(string)})
			}
			return nil
		}
	}
	return nil
}

func (pt *profileTable) doInsert(ctx context.Context, table string, row any, dest any) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	p := row.(model.Profile)
	if pt.taken[p.Handle] {
		return gateway.ErrConflict
	}
	if _, exists := pt.rowByID[p.ID]; exists {
		return gateway.ErrConflict
	}
	pt.taken[p.Handle] = true
	pt.rowByID[p.ID] = p
	pt.inserted = append(pt.inserted, p)
	if d, ok := dest.(*model.Profile); ok && d != nil {
		*d = p
	}
	return nil
}

// =============================================================================
// PROVISIONING TESTS
// =============================================================================

func session(id, email string) *gateway.Session {
	return &gateway.Session{UserID: id, Email: email, AccessToken: "tok"}
}

func TestProfile_ProbesPastTakenHandles(t *testing.T) {
	// "alice" and "alice1" are taken; alice@example.com must land on alice2.
	pt := newProfileTable("alice", "alice1")
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-1", "alice@example.com"), nil
	}}

	store := New(auth, pt, nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	p, err := store.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Handle != "alice2" {
		t.Errorf("handle = %q, want alice2", p.Handle)
	}
	if p.ID != "u-1" {
		t.Errorf("id = %q, want u-1", p.ID)
	}
}

func TestProfile_InsertConflictResumesProbing(t *testing.T) {
	// The probe select says "bob" is free, but another client inserts it
	// first: the unique violation must advance to bob1, not fail.
	pt := newProfileTable()
	raced := false
	base := pt.selectFn
	pt.selectFn = func(ctx context.Context, table string, q gateway.Query, dest any) error {
		for _, f := range q.Filters {
			if f.Column == "handle" && f.Value.(string) == "bob" && !raced {
				raced = true
				pt.mu.Lock()
				pt.taken["bob"] = true
				pt.mu.Unlock()
				return nil // probe reports free; insert will conflict
			}
		}
		return base(ctx, table, q, dest)
	}
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-2", "bob@example.com"), nil
	}}

	store := New(auth, pt, nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	p, err := store.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Handle != "bob1" {
		t.Errorf("handle = %q, want bob1 after insert conflict", p.Handle)
	}
}

func TestProfile_IdConflictAdoptsConcurrentRow(t *testing.T) {
	// Another client provisions the same user between our initial lookup and
	// the insert: the id conflict must adopt that row, not walk the probe
	// sequence into exhaustion.
	pt := newProfileTable()
	raced := false
	base := pt.selectFn
	pt.selectFn = func(ctx context.Context, table string, q gateway.Query, dest any) error {
		for _, f := range q.Filters {
			if f.Column == "id" && !raced {
				raced = true
				pt.mu.Lock()
				pt.rowByID["u-8"] = model.Profile{ID: "u-8", Handle: "heidi"}
				pt.taken["heidi"] = true
				pt.mu.Unlock()
				return nil // lookup ran before the other client's insert
			}
		}
		return base(ctx, table, q, dest)
	}
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-8", "heidi@example.com"), nil
	}}

	store := New(auth, pt, nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	p, err := store.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.ID != "u-8" || p.Handle != "heidi" {
		t.Errorf("profile = %+v, want the concurrently created row", p)
	}
	if len(pt.inserted) != 0 {
		t.Errorf("inserted %d rows, want 0 after adopting the existing one", len(pt.inserted))
	}
}

func TestProfile_ExistingRowIsNotRecreated(t *testing.T) {
	pt := newProfileTable()
	pt.rowByID["u-3"] = model.Profile{ID: "u-3", Handle: "carol"}
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-3", "carol@example.com"), nil
	}}

	store := New(auth, pt, nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	p, err := store.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Handle != "carol" {
		t.Errorf("handle = %q, want carol", p.Handle)
	}
	if len(pt.inserted) != 0 {
		t.Errorf("inserted %d rows for an existing profile, want 0", len(pt.inserted))
	}
}

func TestProfile_ProvisioningFailureRetriesLazily(t *testing.T) {
	pt := newProfileTable()
	failing := true
	base := pt.selectFn
	pt.selectFn = func(ctx context.Context, table string, q gateway.Query, dest any) error {
		if failing {
			return errors.New("backend unavailable")
		}
		return base(ctx, table, q, dest)
	}
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-4", "dave@example.com"), nil
	}}

	store := New(auth, pt, nil, "")
	// Init must succeed even though provisioning fails.
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := store.Profile(context.Background()); err == nil {
		t.Fatal("expected error while backend is unavailable")
	}

	failing = false
	p, err := store.Profile(context.Background())
	if err != nil {
		t.Fatalf("profile after recovery: %v", err)
	}
	if p.Handle != "dave" {
		t.Errorf("handle = %q, want dave", p.Handle)
	}
}

func TestProfile_SignedOut(t *testing.T) {
	store := New(&mockAuth{}, newProfileTable(), nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := store.Profile(context.Background()); !errors.Is(err, model.ErrNotSignedIn) {
		t.Fatalf("err = %v, want ErrNotSignedIn", err)
	}
}

// =============================================================================
// SESSION LIFECYCLE TESTS
// =============================================================================

func TestViewer_FollowsSessionChanges(t *testing.T) {
	auth := &mockAuth{}
	store := New(auth, newProfileTable(), nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	if _, ok := store.Viewer(); ok {
		t.Fatal("viewer present before sign-in")
	}

	auth.fire(session("u-5", "erin@example.com"))
	if id, ok := store.Viewer(); !ok || id != "u-5" {
		t.Fatalf("viewer = %q/%v after sign-in, want u-5/true", id, ok)
	}

	auth.fire(nil)
	if _, ok := store.Viewer(); ok {
		t.Fatal("viewer still present after sign-out")
	}
}

func TestSubscribe_NotifiedOnSignOut(t *testing.T) {
	auth := &mockAuth{}
	store := New(auth, newProfileTable(), nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	var events []*gateway.Session
	store.Subscribe(func(sess *gateway.Session) {
		events = append(events, sess)
	})

	auth.fire(session("u-6", "frank@example.com"))
	auth.fire(nil)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0] == nil || events[0].UserID != "u-6" {
		t.Errorf("first event = %+v, want sign-in for u-6", events[0])
	}
	if events[1] != nil {
		t.Errorf("second event = %+v, want nil sign-out", events[1])
	}
}

func TestSignOut_ClearsCachedProfile(t *testing.T) {
	pt := newProfileTable()
	auth := &mockAuth{currentFn: func(context.Context) (*gateway.Session, error) {
		return session("u-7", "grace@example.com"), nil
	}}
	store := New(auth, pt, nil, "")
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := store.Profile(context.Background()); err != nil {
		t.Fatalf("profile: %v", err)
	}

	auth.fire(nil)
	if _, err := store.Profile(context.Background()); !errors.Is(err, model.ErrNotSignedIn) {
		t.Fatalf("err = %v after sign-out, want ErrNotSignedIn", err)
	}
}

// =============================================================================
// HANDLE DERIVATION TESTS
// =============================================================================

func TestHandleFromEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "alice"},
		{"Bob.Smith+tag@example.com", "bobsmithtag"},
		{"under_score@example.com", "under_score"},
		{"123digits@example.com", "123digits"},
		{"----@example.com", "user"},
		{"", "user"},
		{strings.Repeat("a", 40) + "@example.com", strings.Repeat("a", model.MaxHandleLength)},
	}
	for _, tt := range tests {
		if got := HandleFromEmail(tt.email); got != tt.want {
			t.Errorf("HandleFromEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}
