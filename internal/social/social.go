// Package social maintains the viewer's followee set and searches profiles
// by handle fragment.
package social

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"lumigram/internal/feed"
	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

type Social struct {
	table   gateway.TableStore
	viewers feed.Viewers
	errFn   func(error)

	mu        sync.Mutex
	followees map[string]struct{}

	pending sync.WaitGroup
}

func New(table gateway.TableStore, viewers feed.Viewers, errFn func(error)) *Social {
	return &Social{
		table:     table,
		viewers:   viewers,
		errFn:     errFn,
		followees: make(map[string]struct{}),
	}
}

// Load fetches the viewer's followee set. Signed out, the set is empty.
func (s *Social) Load(ctx context.Context) error {
	viewerID, ok := s.viewers.Viewer()
	if !ok {
		s.Clear()
		return nil
	}

	var edges []model.Follow
	err := s.table.Select(ctx, "follows", gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("follower_id", viewerID)},
	}, &edges)
	if err != nil {
		return fmt.Errorf("load followees: %w", err)
	}

	set := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		set[e.FolloweeID] = struct{}{}
	}

	s.mu.Lock()
	s.followees = set
	s.mu.Unlock()
	return nil
}

// Following reports whether the viewer follows userID.
func (s *Social) Following(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.followees[userID]
	return ok
}

// Followees returns the followee ids, sorted for stable output.
func (s *Social) Followees() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.followees))
	for id := range s.followees {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ToggleFollow inserts or deletes the follow edge, mutating the local set
// first. A failed write reverses the local change.
func (s *Social) ToggleFollow(ctx context.Context, userID string) error {
	viewerID, ok := s.viewers.Viewer()
	if !ok {
		return model.ErrNotSignedIn
	}
	if userID == viewerID {
		return model.ErrCannotFollowSelf
	}

	s.mu.Lock()
	_, following := s.followees[userID]
	follow := !following
	if follow {
		s.followees[userID] = struct{}{}
	} else {
		delete(s.followees, userID)
	}
	s.mu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		var err error
		if follow {
			row := model.Follow{FollowerID: viewerID, FolloweeID: userID, CreatedAt: time.Now().UTC()}
			err = s.table.Insert(ctx, "follows", row, nil)
			if errors.Is(err, gateway.ErrConflict) {
				err = nil
			}
		} else {
			err = s.table.Delete(ctx, "follows", []gateway.Filter{
				gateway.Eq("follower_id", viewerID),
				gateway.Eq("followee_id", userID),
			})
		}
		if err == nil {
			return
		}

		s.mu.Lock()
		if follow {
			delete(s.followees, userID)
		} else {
			s.followees[userID] = struct{}{}
		}
		s.mu.Unlock()
		s.report(fmt.Errorf("toggle follow %s: %w", userID, err))
	}()
	return nil
}

// Search matches profiles whose handle contains query, case-insensitively,
// capped at SearchLimit. An empty query yields an empty result, never "all
// users".
func (s *Social) Search(ctx context.Context, query string) ([]model.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Profile{}, nil
	}

	var profiles []model.Profile
	err := s.table.Select(ctx, "profiles", gateway.Query{
		Filters: []gateway.Filter{gateway.ILike("handle", query)},
		Order:   &gateway.Order{Column: "handle"},
		Limit:   model.SearchLimit,
	}, &profiles)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return profiles, nil
}

// Clear drops the followee set, e.g. on sign-out.
func (s *Social) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followees = make(map[string]struct{})
}

// Wait blocks until in-flight edge writes have settled.
func (s *Social) Wait() {
	s.pending.Wait()
}

func (s *Social) report(err error) {
	if s.errFn != nil {
		s.errFn(err)
		return
	}
	log.Printf("[Social] %v", err)
}
