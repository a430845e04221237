// Package thread loads and mutates the comments of a single post, keeping the
// parent post's comment counter in the feed view model in sync.
package thread

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lumigram/internal/feed"
	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// Thread is the comment list of one post. Counter changes flow through the
// feed synchronizer so the feed and the thread never disagree on the number.
type Thread struct {
	table   gateway.TableStore
	feed    *feed.Synchronizer
	viewers feed.Viewers
	errFn   func(error)

	mu       sync.Mutex
	postID   string
	comments []model.Comment

	pending sync.WaitGroup
}

func New(table gateway.TableStore, feedSync *feed.Synchronizer, viewers feed.Viewers, errFn func(error)) *Thread {
	return &Thread{table: table, feed: feedSync, viewers: viewers, errFn: errFn}
}

// Open loads all comments for postID ascending by creation time, with authors
// attached via one batched profile lookup.
func (t *Thread) Open(ctx context.Context, postID string) error {
	var comments []model.Comment
	err := t.table.Select(ctx, "comments", gateway.Query{
		Filters: []gateway.Filter{gateway.Eq("post_id", postID)},
		Order:   &gateway.Order{Column: "created_at"},
	}, &comments)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}

	if err := t.attachAuthors(ctx, comments); err != nil {
		return err
	}

	t.mu.Lock()
	t.postID = postID
	t.comments = comments
	t.mu.Unlock()
	return nil
}

// attachAuthors batch-resolves the distinct author ids to profiles.
func (t *Thread) attachAuthors(ctx context.Context, comments []model.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	authorSet := make(map[string]struct{})
	for _, c := range comments {
		authorSet[c.AuthorID] = struct{}{}
	}
	authorIDs := make([]string, 0, len(authorSet))
	for id := range authorSet {
		authorIDs = append(authorIDs, id)
	}

	var profiles []model.Profile
	err := t.table.Select(ctx, "profiles", gateway.Query{
		Filters: []gateway.Filter{gateway.In("id", authorIDs)},
	}, &profiles)
	if err != nil {
		return fmt.Errorf("fetch comment authors: %w", err)
	}

	byID := make(map[string]*model.Profile, len(profiles))
	for i := range profiles {
		byID[profiles[i].ID] = &profiles[i]
	}
	for i := range comments {
		comments[i].Author = byID[comments[i].AuthorID]
	}
	return nil
}

// Send creates a comment on the open post. Empty or whitespace-only input is
// rejected. On success the comment is appended locally and the parent post's
// counter moves by exactly one.
func (t *Thread) Send(ctx context.Context, text string) (*model.Comment, error) {
	viewerID, ok := t.viewers.Viewer()
	if !ok {
		return nil, model.ErrNotSignedIn
	}
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrCommentEmpty
	}
	if len(text) > model.MaxCommentLength {
		return nil, model.ErrCommentTooLong
	}

	t.mu.Lock()
	postID := t.postID
	t.mu.Unlock()
	if postID == "" {
		return nil, fmt.Errorf("no open thread")
	}

	row := model.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		AuthorID:  viewerID,
		Body:      text,
		CreatedAt: time.Now().UTC(),
	}
	var inserted model.Comment
	if err := t.table.Insert(ctx, "comments", row, &inserted); err != nil {
		return nil, fmt.Errorf("send comment: %w", err)
	}

	t.attachAuthorOf(ctx, &inserted)

	t.mu.Lock()
	if t.postID == postID {
		t.comments = append(t.comments, inserted)
	}
	t.mu.Unlock()
	t.feed.AdjustCommentCount(postID, 1)

	return &inserted, nil
}

func (t *Thread) attachAuthorOf(ctx context.Context, c *model.Comment) {
	one := []model.Comment{*c}
	if err := t.attachAuthors(ctx, one); err != nil {
		log.Printf("[Thread] Comment author lookup failed: %v", err)
		return
	}
	c.Author = one[0].Author
}

// Delete removes the viewer's own comment: local removal and counter
// decrement first, then the backend delete. A failure reinstates both.
func (t *Thread) Delete(ctx context.Context, commentID string) error {
	viewerID, ok := t.viewers.Viewer()
	if !ok {
		return model.ErrNotSignedIn
	}

	t.mu.Lock()
	idx := -1
	for i := range t.comments {
		if t.comments[i].ID == commentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return model.ErrCommentNotFound
	}
	if t.comments[idx].AuthorID != viewerID {
		t.mu.Unlock()
		return model.ErrNotCommentAuthor
	}
	removed := t.comments[idx]
	postID := t.postID
	t.comments = append(t.comments[:idx], t.comments[idx+1:]...)
	t.mu.Unlock()
	t.feed.AdjustCommentCount(postID, -1)

	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		err := t.table.Delete(ctx, "comments", []gateway.Filter{
			gateway.Eq("id", commentID),
			gateway.Eq("author_id", viewerID),
		})
		if err == nil {
			return
		}

		t.mu.Lock()
		if t.postID == postID {
			at := min(idx, len(t.comments))
			t.comments = append(t.comments[:at], append([]model.Comment{removed}, t.comments[at:]...)...)
		}
		t.mu.Unlock()
		t.feed.AdjustCommentCount(postID, 1)
		t.report(fmt.Errorf("delete comment %s: %w", commentID, err))
	}()
	return nil
}

// Comments returns a copy of the open thread's comments.
func (t *Thread) Comments() []model.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Comment, len(t.comments))
	copy(out, t.comments)
	return out
}

// Wait blocks until in-flight deletes have settled.
func (t *Thread) Wait() {
	t.pending.Wait()
}

func (t *Thread) report(err error) {
	if t.errFn != nil {
		t.errFn(err)
		return
	}
	log.Printf("[Thread] %v", err)
}
