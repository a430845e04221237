// Package composer turns a locally selected file into an uploaded blob plus
// a new post row.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lumigram/internal/feed"
	"lumigram/internal/gateway"
	"lumigram/internal/model"
)

// ProfileSource is the slice of the session store the composer needs: who is
// publishing, and their profile for the feed prepend.
type ProfileSource interface {
	Viewer() (string, bool)
	Profile(ctx context.Context) (*model.Profile, error)
}

type Composer struct {
	table   gateway.TableStore
	blobs   gateway.BlobStore
	feed    *feed.Synchronizer
	session ProfileSource
	bucket  string
}

func New(table gateway.TableStore, blobs gateway.BlobStore, feedSync *feed.Synchronizer, session ProfileSource, bucket string) *Composer {
	return &Composer{table: table, blobs: blobs, feed: feedSync, session: session, bucket: bucket}
}

// Publish uploads the media blob and creates the post row referencing it.
// The storage write strictly precedes the metadata write: a failed upload
// short-circuits with no partial post. On success the new post is prepended
// to the feed with zeroed aggregates, without waiting for a refresh.
func (c *Composer) Publish(ctx context.Context, r io.Reader, filename, contentType string, caption *string) (*model.Post, error) {
	ownerID, ok := c.session.Viewer()
	if !ok {
		return nil, model.ErrNotSignedIn
	}
	if caption != nil && len(*caption) > model.MaxPostCaptionLength {
		return nil, model.ErrCaptionTooLong
	}

	data, err := io.ReadAll(io.LimitReader(r, model.MaxPostMediaSize+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if len(data) == 0 {
		return nil, model.ErrNoMedia
	}
	if int64(len(data)) > model.MaxPostMediaSize {
		return nil, model.ErrFileTooLarge
	}

	kind := DetectKind(contentType, filename)
	if contentType == "" {
		contentType = http.DetectContentType(data[:min(len(data), 512)])
	}

	// Path namespaced by owner with a collision-resistant suffix.
	path := fmt.Sprintf("%s/%d_%s%s", ownerID, time.Now().UnixMilli(), uuid.NewString(), strings.ToLower(filepath.Ext(filename)))
	if err := c.blobs.Upload(ctx, c.bucket, path, bytes.NewReader(data), contentType); err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	row := model.Post{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		MediaURL:  c.blobs.PublicURL(c.bucket, path),
		MediaKind: kind,
		Caption:   caption,
		CreatedAt: time.Now().UTC(),
	}
	var inserted model.Post
	if err := c.table.Insert(ctx, "posts", row, &inserted); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	author, err := c.session.Profile(ctx)
	if err != nil {
		// The post exists; the feed just cannot render its author yet. The
		// next refresh attaches it.
		return &inserted, nil
	}
	c.feed.AddPost(inserted, *author)

	return &inserted, nil
}
