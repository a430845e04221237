// Package app wires the configured gateway to the session store and the feed
// components.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"lumigram/internal/composer"
	"lumigram/internal/config"
	"lumigram/internal/feed"
	"lumigram/internal/gateway"
	"lumigram/internal/gateway/direct"
	"lumigram/internal/gateway/rest"
	"lumigram/internal/session"
	"lumigram/internal/social"
	"lumigram/internal/thread"
)

// App is the assembled client engine.
type App struct {
	Config   *config.Config
	Auth     gateway.Authenticator
	Table    gateway.TableStore
	Blobs    gateway.BlobStore
	Session  *session.Store
	Feed     *feed.Synchronizer
	Social   *social.Social
	Composer *composer.Composer
}

// New builds the engine for the configured gateway mode and initializes the
// session.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	auth, table, blobs, err := buildGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sess := session.New(auth, table, blobs, cfg.MediaBucket)
	if err := sess.Init(ctx); err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	feedSync := feed.New(table, sess, nil)
	soc := social.New(table, sess, nil)
	comp := composer.New(table, blobs, feedSync, sess, cfg.MediaBucket)

	// Sign-out clears every per-viewer surface.
	sess.Subscribe(func(s *gateway.Session) {
		if s == nil {
			feedSync.Clear()
			soc.Clear()
		}
	})

	return &App{
		Config:   cfg,
		Auth:     auth,
		Table:    table,
		Blobs:    blobs,
		Session:  sess,
		Feed:     feedSync,
		Social:   soc,
		Composer: comp,
	}, nil
}

// OpenThread loads the comment thread of a post. Threads are per-post and
// short-lived, so they are built on demand rather than held on the App.
func (a *App) OpenThread(ctx context.Context, postID string) (*thread.Thread, error) {
	th := thread.New(a.Table, a.Feed, a.Session, nil)
	if err := th.Open(ctx, postID); err != nil {
		return nil, err
	}
	return th, nil
}

func buildGateway(ctx context.Context, cfg *config.Config) (gateway.Authenticator, gateway.TableStore, gateway.BlobStore, error) {
	switch cfg.GatewayMode {
	case config.ModeREST:
		client := rest.New(cfg.BackendURL, cfg.BackendAPIKey)
		if cfg.SessionToken != "" {
			if err := client.RestoreSession(cfg.SessionToken); err != nil {
				log.Printf("[App] Ignoring stored session: %v", err)
			}
		}
		return client, client, client, nil

	case config.ModeDirect:
		db, err := direct.Connect(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		auth := direct.NewAuth(db, cfg.JWTSecret, time.Duration(cfg.AccessTokenMaxAge)*time.Second)
		if cfg.SessionToken != "" {
			if err := auth.RestoreSession(cfg.SessionToken); err != nil {
				log.Printf("[App] Ignoring stored session: %v", err)
			}
		}
		storage, err := direct.NewStorage(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return auth, direct.NewTableStore(db), storage, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown gateway mode %q", cfg.GatewayMode)
}

// Run loads configuration, assembles the engine, refreshes the feed once and
// writes the view model as JSON to stdout. A smoke entry point; embedding
// applications drive the components directly.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	a, err := New(ctx, cfg)
	if err != nil {
		return err
	}

	mode := feed.ModeAll
	if _, signedIn := a.Session.Viewer(); signedIn {
		mode = feed.ModeFollowing
	}
	if err := a.Feed.Refresh(ctx, mode); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Feed.Snapshot())
}
