// Package widget manages the embeddable widget's settings and the origins
// allowed to host it.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
)

const (
	noticeFetchFailed   = "Error fetching embed code"
	noticeSaveFailed    = "Error saving settings"
	noticeSaveNoSession = "You must be logged in to save settings."
	noticeDomainSession = "Please log in to add a domain."
	noticeDomainAdded   = "Domain added successfully"
	noticeDomainFailed  = "Failed to add domain"
)

// Remote is the subset of the remote client used for widget settings.
type Remote interface {
	Widget(ctx context.Context, userID string) (domain.WidgetSnapshot, error)
	SaveWidget(ctx context.Context, token string, cfg domain.WidgetConfig) (string, error)
	AddDomain(ctx context.Context, token, origin string) (string, error)
}

var _ Remote = (*remote.Client)(nil)

// Sessions hands out the credential and is told when the server rejects it.
type Sessions interface {
	Credential() (string, error)
	Invalidate(ctx context.Context)
}

// Client reads and writes widget settings for one configured user id and
// caches the last snapshot fetched.
type Client struct {
	remote   Remote
	sessions Sessions
	userID   string
	logger   *slog.Logger

	mu     sync.RWMutex
	cached domain.WidgetSnapshot
	loaded bool
}

// New creates a client for userID.
func New(r Remote, sessions Sessions, userID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		remote:   r,
		sessions: sessions,
		userID:   userID,
		logger:   logger,
		cached:   domain.WidgetSnapshot{Config: domain.DefaultWidgetConfig(userID)},
	}
}

// UserID returns the widget owner the client was configured with.
func (c *Client) UserID() string {
	return c.userID
}

// Fetch loads the configured user's snapshot.
func (c *Client) Fetch(ctx context.Context) (domain.WidgetSnapshot, error) {
	return c.FetchConfig(ctx, c.userID)
}

// FetchConfig loads the settings and embed code for userID. A failure keeps
// the cached snapshot and returns a *domain.NoticeError wrapping a
// *domain.FetchError.
func (c *Client) FetchConfig(ctx context.Context, userID string) (domain.WidgetSnapshot, error) {
	snap, err := c.remote.Widget(ctx, userID)
	if err != nil {
		c.logger.Warn("Failed to fetch widget config", "user_id", userID, "error", err)
		return c.Cached(), &domain.NoticeError{
			Notice: noticeFetchFailed,
			Err:    &domain.FetchError{Op: "fetch widget config", Err: err},
		}
	}

	c.mu.Lock()
	c.cached = snap
	c.loaded = true
	c.mu.Unlock()
	return snap, nil
}

// SaveConfig validates and stores cfg, then refetches the snapshot once so the
// embed code reflects the new settings. It returns the server's message. A
// failed save leaves the cache untouched and performs no refetch.
func (c *Client) SaveConfig(ctx context.Context, cfg domain.WidgetConfig) (string, error) {
	token, err := c.sessions.Credential()
	if err != nil {
		return "", &domain.NoticeError{Notice: noticeSaveNoSession, Err: err}
	}
	if cfg.UserID == "" {
		cfg.UserID = c.userID
	}
	if err := cfg.Validate(); err != nil {
		return "", &domain.NoticeError{Notice: err.Error(), Err: err}
	}

	msg, err := c.remote.SaveWidget(ctx, token, cfg)
	if err != nil {
		c.logger.Warn("Failed to save widget config", "user_id", cfg.UserID, "error", err)
		if errors.Is(err, domain.ErrUnauthorized) {
			c.sessions.Invalidate(ctx)
		}
		return "", &domain.NoticeError{Notice: noticeSaveFailed, Err: err}
	}
	c.logger.Info("Widget config saved", "user_id", cfg.UserID)

	// The save already succeeded; a failed refetch only leaves the cache stale.
	if _, err := c.FetchConfig(ctx, cfg.UserID); err != nil {
		c.logger.Warn("Refetch after save failed", "error", err)
	}
	return msg, nil
}

// Cached returns the last fetched snapshot, or the defaults before the first
// successful fetch.
func (c *Client) Cached() domain.WidgetSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Loaded reports whether a fetch has succeeded.
func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// AddDomain allows the widget to be embedded on origin. The returned message
// is the server's, or a default when it sent none.
func (c *Client) AddDomain(ctx context.Context, origin string) (string, error) {
	token, err := c.sessions.Credential()
	if err != nil {
		return "", &domain.NoticeError{Notice: noticeDomainSession, Err: err}
	}
	normalized, err := domain.NormalizeDomain(origin)
	if err != nil {
		return "", &domain.NoticeError{Notice: err.Error(), Err: err}
	}

	msg, err := c.remote.AddDomain(ctx, token, normalized)
	if err != nil {
		c.logger.Warn("Failed to add domain", "domain", normalized, "error", err)
		if errors.Is(err, domain.ErrUnauthorized) {
			c.sessions.Invalidate(ctx)
		}
		notice := noticeDomainFailed
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) && statusErr.Message != "" {
			notice = statusErr.Message
		}
		return "", &domain.NoticeError{Notice: notice, Err: err}
	}
	if msg == "" {
		msg = noticeDomainAdded
	}
	c.logger.Info("Domain added", "domain", normalized)
	return msg, nil
}
