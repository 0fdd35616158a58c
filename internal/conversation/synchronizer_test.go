package conversation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
	"github.com/ashureev/chatbot-console/internal/remote/remotetest"
	"github.com/ashureev/chatbot-console/internal/session"
	"github.com/ashureev/chatbot-console/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Synchronizer, *session.Manager, *remotetest.Server) {
	t.Helper()
	srv := remotetest.New(t)
	srv.AddUser("alice", "pw")
	client := remote.New(srv.URL)
	mgr := session.NewManager(store.NewMemory(), client, nil)
	_, err := mgr.Authenticate(context.Background(), "alice", "pw", domain.AuthModeLogin)
	require.NoError(t, err)
	return New(client, mgr, nil), mgr, srv
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send did not complete")
	}
}

func texts(turns []domain.Turn) []string {
	out := make([]string, len(turns))
	for i, turn := range turns {
		out[i] = string(turn.Sender) + ":" + turn.Text
	}
	return out
}

func TestFlatten(t *testing.T) {
	turns := Flatten([]domain.Record{
		{Message: "hi"},
		{Message: "bye", Reply: "goodbye"},
	})

	assert.Equal(t, []string{"user:hi", "user:bye", "bot:goodbye"}, texts(turns))
	ids := make(map[string]bool)
	for _, turn := range turns {
		assert.Equal(t, domain.TurnConfirmed, turn.Status)
		ids[turn.ID] = true
	}
	assert.Len(t, ids, 3)
	assert.Empty(t, Flatten(nil))
}

func TestFlattenLengthAndOrder(t *testing.T) {
	gen := func(n int, hasReply func(i int) bool) []domain.Record {
		records := make([]domain.Record, n)
		for i := range records {
			records[i].Message = fmt.Sprintf("m%d", i)
			if hasReply(i) {
				records[i].Reply = fmt.Sprintf("r%d", i)
			}
		}
		return records
	}

	tests := []struct {
		name    string
		records []domain.Record
	}{
		{"empty", nil},
		{"no replies", gen(5, func(int) bool { return false })},
		{"all replies", gen(4, func(int) bool { return true })},
		{"every third reply", gen(10, func(i int) bool { return i%3 == 0 })},
		{"single reply", gen(1, func(int) bool { return true })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := Flatten(tt.records)

			want := 0
			for _, rec := range tt.records {
				want++
				if rec.HasReply() {
					want++
				}
			}
			require.Len(t, turns, want)

			i := 0
			for _, rec := range tt.records {
				assert.Equal(t, domain.SenderUser, turns[i].Sender)
				assert.Equal(t, rec.Message, turns[i].Text)
				i++
				if rec.HasReply() {
					assert.Equal(t, domain.SenderBot, turns[i].Sender)
					assert.Equal(t, rec.Reply, turns[i].Text)
					i++
				}
			}
		})
	}
}

func TestLoadHistory(t *testing.T) {
	s, _, srv := newFixture(t)
	srv.SetRecords("alice", []domain.Record{
		{Message: "a", Reply: "b"},
		{Message: "c"},
	})
	assert.Equal(t, StateEmpty, s.State())

	var states []State
	s.OnChange(func(snap Snapshot) { states = append(states, snap.State) })

	turns, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user:a", "bot:b", "user:c"}, texts(turns))
	assert.Equal(t, turns, s.Transcript())
	assert.Equal(t, []State{StateLoading, StateReady}, states)
}

func TestLoadHistoryFailureLeavesEmptyTranscript(t *testing.T) {
	s, mgr, srv := newFixture(t)
	srv.FailNext("/chats", 5)

	_, err := s.LoadHistory(context.Background())
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, StateReady, s.State())
	assert.Empty(t, s.Transcript())
	assert.True(t, mgr.Current().Present())
}

func TestLoadHistoryUnauthorizedInvalidatesSession(t *testing.T) {
	s, mgr, srv := newFixture(t)
	srv.RevokeToken("token-alice")

	_, err := s.LoadHistory(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, mgr.Current().Present())
}

func TestLoadHistoryWithoutSession(t *testing.T) {
	s, mgr, srv := newFixture(t)
	mgr.Clear(context.Background())

	_, err := s.LoadHistory(context.Background())
	require.ErrorIs(t, err, domain.ErrNoSession)
	assert.Zero(t, srv.Hits("GET /chats"))
}

func TestSendIsOptimisticAndExclusive(t *testing.T) {
	s, _, srv := newFixture(t)
	release := srv.HoldChat()
	s.SetDraft("  hello  ")

	done, ok := s.SendDraft(context.Background())
	require.True(t, ok)

	turns := s.Transcript()
	require.Len(t, turns, 1)
	assert.Equal(t, "hello", turns[0].Text)
	assert.Equal(t, domain.TurnPending, turns[0].Status)
	assert.True(t, s.Sending())
	assert.Empty(t, s.Draft())

	_, ok = s.Send(context.Background(), "second")
	assert.False(t, ok)
	assert.Len(t, s.Transcript(), 1)

	release()
	waitDone(t, done)

	turns = s.Transcript()
	assert.Equal(t, []string{"user:hello", "bot:echo: hello"}, texts(turns))
	assert.Equal(t, domain.TurnConfirmed, turns[0].Status)
	assert.False(t, s.Sending())
	assert.Equal(t, 1, srv.Hits("POST /chat"))
}

func TestSendRejectsBlankText(t *testing.T) {
	s, _, srv := newFixture(t)

	_, ok := s.Send(context.Background(), " \n\t")
	assert.False(t, ok)
	assert.Empty(t, s.Transcript())
	assert.Zero(t, srv.Hits("POST /chat"))
}

func TestSendWithoutSessionIsNoop(t *testing.T) {
	s, mgr, _ := newFixture(t)
	mgr.Clear(context.Background())

	_, ok := s.Send(context.Background(), "hi")
	assert.False(t, ok)
	assert.Empty(t, s.Transcript())
}

func TestSendApplicationErrorBecomesBotTurn(t *testing.T) {
	s, _, srv := newFixture(t)
	srv.OnChat(func(_, _ string) (int, any) {
		return http.StatusOK, map[string]string{"error": "quota exceeded"}
	})

	done, ok := s.Send(context.Background(), "hi")
	require.True(t, ok)
	waitDone(t, done)

	assert.Equal(t, []string{"user:hi", "bot:quota exceeded"}, texts(s.Transcript()))
}

func TestSendTransportFailureBecomesBotTurn(t *testing.T) {
	s, _, srv := newFixture(t)
	srv.FailNext("/chat", 1)

	done, ok := s.Send(context.Background(), "hi")
	require.True(t, ok)
	waitDone(t, done)

	turns := s.Transcript()
	assert.Equal(t, []string{"user:hi", "bot:" + ErrorContactingServer}, texts(turns))
	assert.Equal(t, domain.TurnConfirmed, turns[0].Status)
	assert.False(t, s.Sending())
}

func TestSendUnauthorizedInvalidatesSession(t *testing.T) {
	s, mgr, srv := newFixture(t)
	srv.RevokeToken("token-alice")

	done, ok := s.Send(context.Background(), "hi")
	require.True(t, ok)
	waitDone(t, done)

	assert.Equal(t, []string{"user:hi", "bot:Invalid token"}, texts(s.Transcript()))
	assert.False(t, mgr.Current().Present())
}

func TestSendOutlivesCallerContext(t *testing.T) {
	s, _, srv := newFixture(t)
	release := srv.HoldChat()
	ctx, cancel := context.WithCancel(context.Background())

	done, ok := s.Send(ctx, "hi")
	require.True(t, ok)
	cancel()
	release()
	waitDone(t, done)

	assert.Equal(t, []string{"user:hi", "bot:echo: hi"}, texts(s.Transcript()))
}

func TestHistoryThenSendKeepsOrder(t *testing.T) {
	s, _, srv := newFixture(t)
	srv.SetRecords("alice", []domain.Record{{Message: "old", Reply: "older"}})

	_, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	done, ok := s.Send(context.Background(), "new")
	require.True(t, ok)
	waitDone(t, done)

	assert.Equal(t, []string{"user:old", "bot:older", "user:new", "bot:echo: new"}, texts(s.Transcript()))

	_, err = s.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user:old", "bot:older", "user:new", "bot:echo: new"}, texts(s.Transcript()))
}

func TestResetClearsTranscript(t *testing.T) {
	s, _, _ := newFixture(t)
	done, ok := s.Send(context.Background(), "hi")
	require.True(t, ok)
	waitDone(t, done)
	s.SetDraft("draft")

	s.Reset()
	assert.Empty(t, s.Transcript())
	assert.Empty(t, s.Draft())
	assert.Equal(t, StateEmpty, s.State())
}

func TestOnChangeVersionsIncrease(t *testing.T) {
	s, _, _ := newFixture(t)
	var (
		mu       sync.Mutex
		versions []uint64
	)
	s.OnChange(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	s.SetDraft("x")
	done, ok := s.Send(context.Background(), "hi")
	require.True(t, ok)
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, versions, 3)
	assert.Less(t, versions[0], versions[1])
	assert.Less(t, versions[1], versions[2])
	assert.Equal(t, versions[2], s.Snapshot().Version)
}

func TestTrySendReportsReason(t *testing.T) {
	s, mgr, srv := newFixture(t)
	release := srv.HoldChat()

	_, err := s.TrySend(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)

	done, err := s.TrySend(context.Background(), "one")
	require.NoError(t, err)
	_, err = s.TrySend(context.Background(), "two")
	assert.ErrorIs(t, err, domain.ErrSendInFlight)

	release()
	waitDone(t, done)

	mgr.Clear(context.Background())
	_, err = s.TrySend(context.Background(), "three")
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

// gatedRemote blocks Chats until releaseChats is closed and, when chatGate is
// set, Chat until chatGate is closed.
type gatedRemote struct {
	records      []domain.Record
	chatsErr     error
	chatErr      error
	chatGate     chan struct{}
	chatsStarted chan struct{}
	releaseChats chan struct{}
	once         sync.Once
}

func newGatedRemote(records ...domain.Record) *gatedRemote {
	return &gatedRemote{
		records:      records,
		chatsStarted: make(chan struct{}),
		releaseChats: make(chan struct{}),
	}
}

func (r *gatedRemote) Chat(_ context.Context, _, message string) (string, error) {
	if r.chatGate != nil {
		<-r.chatGate
	}
	if r.chatErr != nil {
		return "", r.chatErr
	}
	return "r:" + message, nil
}

func (r *gatedRemote) Chats(context.Context, string) ([]domain.Record, error) {
	r.once.Do(func() { close(r.chatsStarted) })
	<-r.releaseChats
	return r.records, r.chatsErr
}

type fakeSessions struct {
	mu          sync.Mutex
	invalidated int
}

func (f *fakeSessions) Credential() (string, error) { return "token", nil }

func (f *fakeSessions) Invalidate(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeSessions) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

type loadResult struct {
	turns []domain.Turn
	err   error
}

func startLoad(t *testing.T, s *Synchronizer, r *gatedRemote) <-chan loadResult {
	t.Helper()
	results := make(chan loadResult, 1)
	go func() {
		turns, err := s.LoadHistory(context.Background())
		results <- loadResult{turns, err}
	}()
	select {
	case <-r.chatsStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("load did not start")
	}
	return results
}

func sendAndWait(t *testing.T, s *Synchronizer, text string) {
	t.Helper()
	done, err := s.TrySend(context.Background(), text)
	require.NoError(t, err)
	waitDone(t, done)
}

func TestSendDuringLoadKeptAfterHistory(t *testing.T) {
	r := newGatedRemote(domain.Record{Message: "h", Reply: "hr"})
	s := New(r, &fakeSessions{}, nil)

	results := startLoad(t, s, r)
	sendAndWait(t, s, "mid")
	close(r.releaseChats)

	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, []string{"user:h", "bot:hr", "user:mid", "bot:r:mid"}, texts(s.Transcript()))
}

func TestLoadOvertakenByResetIsDiscarded(t *testing.T) {
	r := newGatedRemote(domain.Record{Message: "previous user", Reply: "previous reply"})
	s := New(r, &fakeSessions{}, nil)
	sendAndWait(t, s, "a")
	sendAndWait(t, s, "b")

	results := startLoad(t, s, r)
	s.Reset()
	sendAndWait(t, s, "new")
	close(r.releaseChats)

	res := <-results
	require.ErrorIs(t, res.err, ErrTranscriptReset)
	assert.Equal(t, []string{"user:new", "bot:r:new"}, texts(s.Transcript()))
	assert.Equal(t, StateEmpty, s.State())
}

func TestLoadOvertakenByResetKeepsLaterTurns(t *testing.T) {
	r := newGatedRemote(domain.Record{Message: "h", Reply: "hr"})
	s := New(r, &fakeSessions{}, nil)
	sendAndWait(t, s, "x")

	results := startLoad(t, s, r)
	s.Reset()
	sendAndWait(t, s, "y")
	sendAndWait(t, s, "z")
	close(r.releaseChats)

	res := <-results
	require.ErrorIs(t, res.err, ErrTranscriptReset)
	assert.Equal(t, []string{"user:y", "bot:r:y", "user:z", "bot:r:z"}, texts(s.Transcript()))

	// A fresh load after the reset applies normally.
	turns, err := s.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user:h", "bot:hr", "user:y", "bot:r:y", "user:z", "bot:r:z"}, texts(turns))
}

func TestFailedLoadAfterResetLeavesSessionAlone(t *testing.T) {
	r := newGatedRemote()
	r.chatsErr = &domain.ApplicationError{Status: http.StatusUnauthorized, Message: "Invalid token"}
	sessions := &fakeSessions{}
	s := New(r, sessions, nil)

	results := startLoad(t, s, r)
	s.Reset()
	close(r.releaseChats)

	res := <-results
	require.ErrorIs(t, res.err, domain.ErrUnauthorized)
	assert.Zero(t, sessions.invalidations())
	assert.Equal(t, StateEmpty, s.State())
}

func TestReplyAfterResetIsDropped(t *testing.T) {
	r := newGatedRemote()
	r.chatGate = make(chan struct{})
	r.chatErr = &domain.ApplicationError{Status: http.StatusUnauthorized, Message: "Invalid token"}
	sessions := &fakeSessions{}
	s := New(r, sessions, nil)

	done, err := s.TrySend(context.Background(), "old")
	require.NoError(t, err)
	s.Reset()
	assert.True(t, s.Sending())

	close(r.chatGate)
	waitDone(t, done)

	assert.Empty(t, s.Transcript())
	assert.False(t, s.Sending())
	assert.Zero(t, sessions.invalidations())
}
