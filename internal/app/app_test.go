package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/chatbot-console/internal/config"
	"github.com/ashureev/chatbot-console/internal/conversation"
	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote/remotetest"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, remoteURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "0",
		RemoteBaseURL:  remoteURL,
		DBPath:         filepath.Join(t.TempDir(), "console.db"),
		HTTPTimeout:    5 * time.Second,
		WidgetUserID:   "u1",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
	}
}

func openApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")
	cfg := testConfig(t, srv.URL)

	first, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewAuth, first.View())
	_, err = first.Sessions.Authenticate(ctx, "alice", "pw", domain.AuthModeLogin)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewChat, first.View())
	require.NoError(t, first.Close())

	second := openApp(t, cfg)
	assert.Equal(t, domain.ViewChat, second.View())
}

func TestSignOutResetsTranscript(t *testing.T) {
	ctx := context.Background()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")
	a := openApp(t, testConfig(t, srv.URL))

	_, err := a.Sessions.Authenticate(ctx, "alice", "pw", domain.AuthModeLogin)
	require.NoError(t, err)
	done, ok := a.Conversation.Send(ctx, "hi")
	require.True(t, ok)
	<-done
	require.Len(t, a.Conversation.Transcript(), 2)

	a.Sessions.Clear(ctx)
	assert.Empty(t, a.Conversation.Transcript())
	assert.Equal(t, conversation.StateEmpty, a.Conversation.State())
}

func TestRouterServesAPIAndStream(t *testing.T) {
	ctx := context.Background()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")
	a := openApp(t, testConfig(t, srv.URL))
	ts := httptest.NewServer(a.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/view")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/transcript"
	_, resp, err = websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	_, err = a.Sessions.Authenticate(ctx, "alice", "pw", domain.AuthModeLogin)
	require.NoError(t, err)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	_, data, err := conn.Read(dialCtx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"snapshot"`)

	_, ok := a.Conversation.Send(ctx, "hello")
	require.True(t, ok)
	for {
		_, data, err = conn.Read(dialCtx)
		require.NoError(t, err)
		if strings.Contains(string(data), "echo: hello") {
			break
		}
	}

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
