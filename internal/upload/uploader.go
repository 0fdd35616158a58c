// Package upload adds documents to the bot's knowledge base.
package upload

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
)

const (
	noticeNoSession = "You must be logged in to upload data."
	noticeUploaded  = "Data uploaded successfully!"
	noticeFailed    = "Upload failed."
)

// Remote is the subset of the remote client used for uploads.
type Remote interface {
	Upload(ctx context.Context, token string, u domain.Upload) error
}

var _ Remote = (*remote.Client)(nil)

// Sessions hands out the credential and is told when the server rejects it.
type Sessions interface {
	Credential() (string, error)
	Invalidate(ctx context.Context)
}

// Uploader sends knowledge documents on behalf of the signed-in user.
type Uploader struct {
	remote   Remote
	sessions Sessions
	logger   *slog.Logger
}

// New creates an uploader.
func New(r Remote, sessions Sessions, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{remote: r, sessions: sessions, logger: logger}
}

// Upload sends filename and data and returns the success notice. Failures are
// *domain.NoticeError carrying the server's error text when it sent one.
func (u *Uploader) Upload(ctx context.Context, filename, data string) (string, error) {
	token, err := u.sessions.Credential()
	if err != nil {
		return "", &domain.NoticeError{Notice: noticeNoSession, Err: err}
	}
	doc := domain.Upload{Filename: filename, Data: data}
	if err := doc.Validate(); err != nil {
		return "", &domain.NoticeError{Notice: err.Error(), Err: err}
	}

	if err := u.remote.Upload(ctx, token, doc); err != nil {
		u.logger.Warn("Upload failed", "filename", filename, "error", err)
		if errors.Is(err, domain.ErrUnauthorized) {
			u.sessions.Invalidate(ctx)
		}
		notice := noticeFailed
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) && statusErr.Message != "" {
			notice = statusErr.Message
		}
		return "", &domain.NoticeError{Notice: notice, Err: err}
	}

	u.logger.Info("Upload accepted", "filename", filename, "bytes", len(data))
	return noticeUploaded, nil
}
