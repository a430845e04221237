package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Upload writes a blob to the storage API at bucket/path.
func (c *Client) Upload(ctx context.Context, bucket, path string, r io.Reader, contentType string) error {
	u := c.baseURL + "/storage/v1/object/" + bucket + "/" + path
	req, err := c.newRequest(ctx, http.MethodPost, u, r)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// PublicURL returns the public URL the storage API serves the object from.
// The URL is derived from configuration alone; no network call is made.
func (c *Client) PublicURL(bucket, path string) string {
	return c.baseURL + "/storage/v1/object/public/" + bucket + "/" + path
}
