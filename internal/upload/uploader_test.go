package upload

import (
	"context"
	"testing"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
	"github.com/ashureev/chatbot-console/internal/remote/remotetest"
	"github.com/ashureev/chatbot-console/internal/session"
	"github.com/ashureev/chatbot-console/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploader(t *testing.T) (*Uploader, *session.Manager, *remotetest.Server) {
	t.Helper()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")
	client := remote.New(srv.URL)
	mgr := session.NewManager(store.NewMemory(), client, nil)
	_, err := mgr.Authenticate(context.Background(), "alice", "pw", domain.AuthModeLogin)
	require.NoError(t, err)
	return New(client, mgr, nil), mgr, srv
}

func TestUploadSucceeds(t *testing.T) {
	u, _, srv := newUploader(t)

	msg, err := u.Upload(context.Background(), "faq.txt", "Q: hours? A: 9-5")
	require.NoError(t, err)
	assert.Equal(t, "Data uploaded successfully!", msg)
	require.Len(t, srv.Uploads("alice"), 1)
	assert.Equal(t, "faq.txt", srv.Uploads("alice")[0].Filename)
}

func TestUploadRequiresSession(t *testing.T) {
	u, mgr, srv := newUploader(t)
	mgr.Clear(context.Background())

	_, err := u.Upload(context.Background(), "faq.txt", "data")
	require.ErrorIs(t, err, domain.ErrNoSession)
	assert.Equal(t, "You must be logged in to upload data.", domain.Notice(err))
	assert.Zero(t, srv.Hits("POST /upload"))
}

func TestUploadRejectsBlankFields(t *testing.T) {
	u, _, srv := newUploader(t)

	_, err := u.Upload(context.Background(), "", "data")
	require.ErrorIs(t, err, domain.ErrInvalidUpload)
	_, err = u.Upload(context.Background(), "faq.txt", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidUpload)
	assert.Zero(t, srv.Hits("POST /upload"))
}

func TestUploadUnauthorizedClearsSession(t *testing.T) {
	u, mgr, srv := newUploader(t)
	srv.RevokeToken("token-alice")

	_, err := u.Upload(context.Background(), "faq.txt", "data")
	assert.Equal(t, "Invalid token", domain.Notice(err))
	assert.False(t, mgr.Current().Present())
}

func TestUploadTransportFailure(t *testing.T) {
	u, _, srv := newUploader(t)
	srv.FailNext("/upload", 1)

	_, err := u.Upload(context.Background(), "faq.txt", "data")
	assert.Equal(t, "Upload failed.", domain.Notice(err))
}
