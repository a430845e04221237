package feed

import (
	"context"
	"fmt"
	"sort"

	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// enrich attaches author profiles, aggregate counts and the viewer's liked
// flags to a page of posts. Foreign keys are batch-resolved: one profile
// select over the distinct owner ids and one select each over the page's
// like and comment rows, so a page costs three extra queries instead of 3N.
func (s *Synchronizer) enrich(ctx context.Context, viewerID string, posts []model.Post) ([]model.FeedItem, error) {
	postIDs := make([]string, len(posts))
	ownerSet := make(map[string]struct{})
	for i, p := range posts {
		postIDs[i] = p.ID
		ownerSet[p.OwnerID] = struct{}{}
	}
	ownerIDs := make([]string, 0, len(ownerSet))
	for id := range ownerSet {
		ownerIDs = append(ownerIDs, id)
	}

	authors, err := s.fetchProfiles(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}

	likeCounts, likedByViewer, err := s.fetchLikes(ctx, viewerID, postIDs)
	if err != nil {
		return nil, err
	}

	commentCounts, err := s.fetchCommentCounts(ctx, postIDs)
	if err != nil {
		return nil, err
	}

	items := make([]model.FeedItem, len(posts))
	for i, p := range posts {
		items[i] = model.FeedItem{
			Post:         p,
			Author:       authors[p.OwnerID],
			LikeCount:    likeCounts[p.ID],
			CommentCount: commentCounts[p.ID],
			Liked:        likedByViewer[p.ID],
		}
	}

	// Strictly descending by creation time; id breaks ties so two refreshes
	// of the same backend state produce identical ordered output.
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Post, items[j].Post
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	return items, nil
}

func (s *Synchronizer) fetchProfiles(ctx context.Context, ownerIDs []string) (map[string]model.Profile, error) {
	var profiles []model.Profile
	err := s.table.Select(ctx, "profiles", gateway.Query{
		Filters: []gateway.Filter{gateway.In("id", ownerIDs)},
	}, &profiles)
	if err != nil {
		return nil, fmt.Errorf("fetch authors: %w", err)
	}

	byID := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	return byID, nil
}

// fetchLikes reduces the page's like rows to per-post counts and the viewer's
// membership in a single pass.
func (s *Synchronizer) fetchLikes(ctx context.Context, viewerID string, postIDs []string) (map[string]int, map[string]bool, error) {
	var likes []model.Like
	err := s.table.Select(ctx, "likes", gateway.Query{
		Filters: []gateway.Filter{gateway.In("post_id", postIDs)},
	}, &likes)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch likes: %w", err)
	}

	counts := make(map[string]int)
	liked := make(map[string]bool)
	for _, l := range likes {
		counts[l.PostID]++
		if viewerID != "" && l.UserID == viewerID {
			liked[l.PostID] = true
		}
	}
	return counts, liked, nil
}

func (s *Synchronizer) fetchCommentCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	var comments []model.Comment
	err := s.table.Select(ctx, "comments", gateway.Query{
		Columns: []string{"id", "post_id"},
		Filters: []gateway.Filter{gateway.In("post_id", postIDs)},
	}, &comments)
	if err != nil {
		return nil, fmt.Errorf("fetch comments: %w", err)
	}

	counts := make(map[string]int)
	for _, c := range comments {
		counts[c.PostID]++
	}
	return counts, nil
}
