// Package feed owns the denormalized feed view model: posts enriched with
// author profiles, aggregate counts and the viewer's liked flags, kept
// consistent with optimistic local mutations.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// Mode selects which posts a refresh fetches.
type Mode string

const (
	ModeAll       Mode = "all"
	ModeFollowing Mode = "following"
)

// FetchLimit caps how many posts one refresh pulls.
const FetchLimit = 100

// Viewers reports the current viewer. Satisfied by session.Store.
type Viewers interface {
	Viewer() (string, bool)
}

// Synchronizer is the single shared source of truth for the feed view model.
// The composer prepends to it and the comment thread adjusts its counters, so
// every surface renders from the same state.
type Synchronizer struct {
	table   gateway.TableStore
	viewers Viewers
	errFn   func(error)

	mu    sync.Mutex
	items []model.FeedItem
	// seq guards compensating rollbacks: a write failure only reverses its
	// own optimistic change if no later mutation touched the same post.
	seq map[string]uint64

	flight  singleflight.Group
	pending sync.WaitGroup
}

// New creates a Synchronizer. errFn receives failures of optimistic writes
// (the user-visible alert hook); nil falls back to logging.
func New(table gateway.TableStore, viewers Viewers, errFn func(error)) *Synchronizer {
	return &Synchronizer{
		table:   table,
		viewers: viewers,
		errFn:   errFn,
		seq:     make(map[string]uint64),
	}
}

// Refresh fetches posts for mode and swaps in the enriched view model.
// Idempotent; on error the previous view model is left untouched and the
// error is returned for non-fatal display. Overlapping refreshes for the same
// mode and viewer are coalesced into one fetch.
func (s *Synchronizer) Refresh(ctx context.Context, mode Mode) error {
	viewerID, _ := s.viewers.Viewer()

	v, err, _ := s.flight.Do(string(mode)+"\x00"+viewerID, func() (any, error) {
		return s.fetch(ctx, mode, viewerID)
	})
	if err != nil {
		return fmt.Errorf("refresh feed: %w", err)
	}

	s.mu.Lock()
	s.items = v.([]model.FeedItem)
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) fetch(ctx context.Context, mode Mode, viewerID string) ([]model.FeedItem, error) {
	filters := []gateway.Filter{}
	if mode == ModeFollowing {
		if viewerID == "" {
			return []model.FeedItem{}, nil
		}
		var edges []model.Follow
		err := s.table.Select(ctx, "follows", gateway.Query{
			Filters: []gateway.Filter{gateway.Eq("follower_id", viewerID)},
		}, &edges)
		if err != nil {
			return nil, fmt.Errorf("fetch followees: %w", err)
		}
		if len(edges) == 0 {
			return []model.FeedItem{}, nil
		}
		followees := make([]string, len(edges))
		for i, e := range edges {
			followees[i] = e.FolloweeID
		}
		filters = append(filters, gateway.In("owner_id", followees))
	}

	var posts []model.Post
	err := s.table.Select(ctx, "posts", gateway.Query{
		Filters: filters,
		Order:   &gateway.Order{Column: "created_at", Desc: true},
		Limit:   FetchLimit,
	}, &posts)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	if len(posts) == 0 {
		return []model.FeedItem{}, nil
	}

	return s.enrich(ctx, viewerID, posts)
}

// ToggleLike flips the viewer's liked flag and adjusts the count locally,
// then issues the like row create/delete. No-op when signed out. A failed
// write is compensated by reversing exactly the optimistic change, unless a
// later toggle already moved the post on.
func (s *Synchronizer) ToggleLike(ctx context.Context, postID string) {
	viewerID, ok := s.viewers.Viewer()
	if !ok {
		return
	}

	s.mu.Lock()
	idx := s.indexOf(postID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	item := &s.items[idx]
	liked := !item.Liked
	item.Liked = liked
	if liked {
		item.LikeCount++
	} else {
		item.LikeCount--
	}
	s.seq[postID]++
	seq := s.seq[postID]
	s.mu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		var err error
		if liked {
			row := model.Like{PostID: postID, UserID: viewerID, CreatedAt: time.Now().UTC()}
			err = s.table.Insert(ctx, "likes", row, nil)
			if errors.Is(err, gateway.ErrConflict) {
				// The row already exists; local state agrees with the backend.
				err = nil
			}
		} else {
			err = s.table.Delete(ctx, "likes", []gateway.Filter{
				gateway.Eq("post_id", postID),
				gateway.Eq("user_id", viewerID),
			})
		}
		if err == nil {
			return
		}

		s.mu.Lock()
		if s.seq[postID] == seq {
			if j := s.indexOf(postID); j >= 0 {
				it := &s.items[j]
				it.Liked = !liked
				if liked {
					it.LikeCount--
				} else {
					it.LikeCount++
				}
			}
		}
		s.mu.Unlock()
		s.report(fmt.Errorf("toggle like on %s: %w", postID, err))
	}()
}

// AddPost prepends a freshly composed post with zeroed aggregates, keeping
// the view model in sync without waiting for a full refresh.
func (s *Synchronizer) AddPost(post model.Post, author model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := model.FeedItem{Post: post, Author: author}
	s.items = append([]model.FeedItem{item}, s.items...)
}

// RemovePost deletes the viewer's own post: local removal first, then the
// backend delete. A non-owner gets ErrNotPostOwner with no local change and
// no call issued; the backend stays the final authority for the owner path.
func (s *Synchronizer) RemovePost(ctx context.Context, postID string) error {
	viewerID, ok := s.viewers.Viewer()
	if !ok {
		return model.ErrNotSignedIn
	}

	s.mu.Lock()
	idx := s.indexOf(postID)
	if idx < 0 {
		s.mu.Unlock()
		return model.ErrPostNotFound
	}
	if s.items[idx].Post.OwnerID != viewerID {
		s.mu.Unlock()
		return model.ErrNotPostOwner
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.seq[postID]++
	seq := s.seq[postID]
	s.mu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		err := s.table.Delete(ctx, "posts", []gateway.Filter{
			gateway.Eq("id", postID),
			gateway.Eq("owner_id", viewerID),
		})
		if err == nil {
			return
		}

		s.mu.Lock()
		if s.seq[postID] == seq {
			at := min(idx, len(s.items))
			s.items = append(s.items[:at], append([]model.FeedItem{removed}, s.items[at:]...)...)
		}
		s.mu.Unlock()
		s.report(fmt.Errorf("remove post %s: %w", postID, err))
	}()
	return nil
}

// AdjustCommentCount moves a post's comment counter by delta. The comment
// thread calls this so both surfaces render the same number. The counter is
// orthogonal to the like/remove mutations, so seq stays untouched: a comment
// landing mid-toggle must not suppress that toggle's rollback.
func (s *Synchronizer) AdjustCommentCount(postID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOf(postID); idx >= 0 {
		s.items[idx].CommentCount += delta
	}
}

// Snapshot returns a copy of the current view model.
func (s *Synchronizer) Snapshot() []model.FeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FeedItem, len(s.items))
	copy(out, s.items)
	return out
}

// Clear drops the view model, e.g. on sign-out.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.seq = make(map[string]uint64)
}

// Wait blocks until all in-flight optimistic writes have settled. Tests and
// shutdown paths use it; the UI never needs to.
func (s *Synchronizer) Wait() {
	s.pending.Wait()
}

// indexOf returns the position of postID in the view model, or -1.
// Callers hold s.mu.
func (s *Synchronizer) indexOf(postID string) int {
	for i := range s.items {
		if s.items[i].Post.ID == postID {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) report(err error) {
	if s.errFn != nil {
		s.errFn(err)
		return
	}
	log.Printf("[Feed] %v", err)
}
