// Package conversation keeps the ordered transcript in step with the remote
// history and drives the optimistic send cycle.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
	"github.com/google/uuid"
)

// ErrorContactingServer is the bot text shown when a send never got a usable
// response.
const ErrorContactingServer = "Error contacting server."

var (
	// ErrHistoryLoading is returned when a history load is already running.
	ErrHistoryLoading = errors.New("history is already loading")
	// ErrTranscriptReset is returned by a history load overtaken by Reset.
	ErrTranscriptReset = errors.New("transcript was reset while loading")
)

// State is the lifecycle of the transcript.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Remote is the subset of the remote client used for conversations.
type Remote interface {
	Chat(ctx context.Context, token, message string) (string, error)
	Chats(ctx context.Context, token string) ([]domain.Record, error)
}

var _ Remote = (*remote.Client)(nil)

// Sessions hands out the credential and is told when the server rejects it.
type Sessions interface {
	Credential() (string, error)
	Invalidate(ctx context.Context)
}

// Snapshot is a point-in-time copy of the transcript. Version increases with
// every mutation so observers can drop stale snapshots.
type Snapshot struct {
	Version uint64        `json:"version"`
	State   State         `json:"state"`
	Sending bool          `json:"sending"`
	Draft   string        `json:"draft"`
	Turns   []domain.Turn `json:"turns"`
}

// Synchronizer owns one transcript.
type Synchronizer struct {
	remote   Remote
	sessions Sessions
	logger   *slog.Logger

	mu        sync.Mutex
	version   uint64
	epoch     uint64
	state     State
	turns     []domain.Turn
	sending   bool
	draft     string
	listeners []func(Snapshot)
}

// New creates a synchronizer with an empty transcript.
func New(r Remote, sessions Sessions, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		remote:   r,
		sessions: sessions,
		logger:   logger,
		state:    StateEmpty,
	}
}

// Flatten maps records, in order, to turns: a user turn for every record,
// followed by a bot turn when the record has a reply.
func Flatten(records []domain.Record) []domain.Turn {
	turns := make([]domain.Turn, 0, len(records)*2)
	for _, rec := range records {
		turns = append(turns, domain.Turn{
			ID:     uuid.NewString(),
			Sender: domain.SenderUser,
			Text:   rec.Message,
			Status: domain.TurnConfirmed,
		})
		if rec.HasReply() {
			turns = append(turns, domain.Turn{
				ID:     uuid.NewString(),
				Sender: domain.SenderBot,
				Text:   rec.Reply,
				Status: domain.TurnConfirmed,
			})
		}
	}
	return turns
}

// LoadHistory replaces the transcript with the remote history. Turns sent
// while the load was running are kept after the history. On failure the
// transcript is left as it was and a *domain.FetchError is returned. A load
// overtaken by Reset changes nothing and fails with ErrTranscriptReset.
func (s *Synchronizer) LoadHistory(ctx context.Context) ([]domain.Turn, error) {
	token, err := s.sessions.Credential()
	if err != nil {
		return nil, &domain.FetchError{Op: "load history", Err: err}
	}

	s.mu.Lock()
	if s.state == StateLoading {
		s.mu.Unlock()
		return nil, ErrHistoryLoading
	}
	s.state = StateLoading
	epoch := s.epoch
	localFrom := len(s.turns)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	records, err := s.remote.Chats(ctx, token)
	if err != nil {
		s.mu.Lock()
		current := s.epoch == epoch
		if current {
			s.state = StateReady
			snap = s.snapshotLocked()
		}
		s.mu.Unlock()
		if current {
			s.notify(snap)
		}

		s.logger.Warn("History unavailable", "error", err)
		// A rejected credential from before a reset may belong to a
		// session that is already gone.
		if current && errors.Is(err, domain.ErrUnauthorized) {
			s.sessions.Invalidate(ctx)
		}
		return nil, &domain.FetchError{Op: "load history", Err: err}
	}

	history := Flatten(records)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Info("Discarding history loaded before reset", "records", len(records))
		return nil, &domain.FetchError{Op: "load history", Err: ErrTranscriptReset}
	}
	// Turns only grow within an epoch, so localFrom still marks the first
	// turn appended during the load.
	s.turns = append(history, s.turns[localFrom:]...)
	s.state = StateReady
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	s.logger.Info("History loaded", "records", len(records), "turns", len(history))
	return cloneTurns(snap.Turns), nil
}

// Send appends a pending user turn for text and dispatches it. It returns
// false without side effects when text is blank, no session is held, or a
// send is already in flight. The returned channel is closed once the outcome
// has been applied to the transcript, or dropped after a Reset. The request is not tied to ctx's
// cancellation.
func (s *Synchronizer) Send(ctx context.Context, text string) (<-chan struct{}, bool) {
	done, err := s.TrySend(ctx, text)
	return done, err == nil
}

// TrySend is Send reporting why a message was not sent: domain.ErrEmptyMessage,
// domain.ErrNoSession or domain.ErrSendInFlight.
func (s *Synchronizer) TrySend(ctx context.Context, text string) (<-chan struct{}, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	token, err := s.sessions.Credential()
	if err != nil {
		s.logger.Debug("Send ignored without session")
		return nil, err
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return nil, domain.ErrSendInFlight
	}
	s.sending = true
	turn := domain.Turn{
		ID:     uuid.NewString(),
		Sender: domain.SenderUser,
		Text:   text,
		Status: domain.TurnPending,
	}
	s.turns = append(s.turns, turn)
	s.draft = ""
	epoch := s.epoch
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	done := make(chan struct{})
	go s.dispatch(context.WithoutCancel(ctx), epoch, token, turn.ID, text, done)
	return done, nil
}

// SendDraft sends the current draft.
func (s *Synchronizer) SendDraft(ctx context.Context) (<-chan struct{}, bool) {
	return s.Send(ctx, s.Draft())
}

func (s *Synchronizer) dispatch(ctx context.Context, epoch uint64, token, turnID, text string, done chan<- struct{}) {
	defer close(done)

	reply, err := s.remote.Chat(ctx, token, text)
	botText := reply
	var appErr *domain.ApplicationError
	switch {
	case err == nil:
	case errors.As(err, &appErr):
		s.logger.Info("Chat returned application error", "status", appErr.Status, "error", appErr.Message)
		botText = appErr.Message
	default:
		s.logger.Warn("Chat request failed", "error", err)
		botText = ErrorContactingServer
	}

	s.mu.Lock()
	current := s.epoch == epoch
	if current {
		for i := range s.turns {
			if s.turns[i].ID == turnID {
				s.turns[i].Status = domain.TurnConfirmed
				break
			}
		}
		s.turns = append(s.turns, domain.Turn{
			ID:     uuid.NewString(),
			Sender: domain.SenderBot,
			Text:   botText,
			Status: domain.TurnConfirmed,
		})
	} else {
		s.logger.Debug("Dropping reply for reset transcript")
	}
	s.sending = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)

	if current && errors.Is(err, domain.ErrUnauthorized) {
		s.sessions.Invalidate(ctx)
	}
}

// SetDraft replaces the input buffer.
func (s *Synchronizer) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Draft returns the input buffer.
func (s *Synchronizer) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Reset drops the transcript, e.g. on logout. Loads and sends already in
// flight still finish but leave the new transcript untouched; an outstanding
// send keeps new sends blocked until it returns.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.epoch++
	s.turns = nil
	s.draft = ""
	s.state = StateEmpty
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// Transcript returns a copy of the turns.
func (s *Synchronizer) Transcript() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTurns(s.turns)
}

// Snapshot returns the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// State returns the transcript lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Sending reports whether a send is in flight.
func (s *Synchronizer) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// OnChange registers fn to receive a snapshot after every mutation. fn runs
// on the mutating goroutine and must not block.
func (s *Synchronizer) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// snapshotLocked records a mutation and copies state. Callers hold s.mu.
func (s *Synchronizer) snapshotLocked() Snapshot {
	s.version++
	return s.copyLocked()
}

func (s *Synchronizer) copyLocked() Snapshot {
	return Snapshot{
		Version: s.version,
		State:   s.state,
		Sending: s.sending,
		Draft:   s.draft,
		Turns:   cloneTurns(s.turns),
	}
}

func (s *Synchronizer) notify(snap Snapshot) {
	s.mu.Lock()
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func cloneTurns(turns []domain.Turn) []domain.Turn {
	if turns == nil {
		return []domain.Turn{}
	}
	return append([]domain.Turn(nil), turns...)
}
