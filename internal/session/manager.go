// Package session owns the client's authenticated state and is the only
// reader and writer of the persisted credential.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/ashureev/chatbot-console/internal/remote"
	"github.com/ashureev/chatbot-console/internal/store"
)

const (
	genericAuthFailure = "Something went wrong"
	signupNotice       = "Signup successful! Please log in."
	missingCredentials = "Username and password are required"
)

// Authenticator is the subset of the remote client used for auth.
type Authenticator interface {
	Signup(ctx context.Context, creds domain.Credentials) error
	Login(ctx context.Context, creds domain.Credentials) (string, error)
}

var _ Authenticator = (*remote.Client)(nil)

// Manager owns the authenticated/unauthenticated state.
type Manager struct {
	store  store.SessionStore
	auth   Authenticator
	logger *slog.Logger

	mu        sync.RWMutex
	current   domain.Session
	listeners []func(domain.Session)
}

// NewManager creates a manager. Call Restore before reading the session.
func NewManager(st store.SessionStore, auth Authenticator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, auth: auth, logger: logger}
}

// Restore loads the persisted credential. An absent or unreadable credential
// yields the absent session.
func (m *Manager) Restore(ctx context.Context) domain.Session {
	token, err := m.store.Get(ctx, store.CredentialKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Failed to read stored credential, starting signed out", "error", err)
	}
	m.set(domain.Session{Credential: token})
	return m.Current()
}

// Authenticate submits credentials in the given mode. A login stores the
// returned credential before returning; a signup establishes no session.
// Failures are *domain.AuthError.
func (m *Manager) Authenticate(ctx context.Context, username, password string, mode domain.AuthMode) (domain.AuthResult, error) {
	creds := domain.Credentials{Username: strings.TrimSpace(username), Password: password}
	if !creds.Complete() {
		return domain.AuthResult{}, &domain.AuthError{Message: missingCredentials}
	}

	switch mode {
	case domain.AuthModeSignup:
		if err := m.auth.Signup(ctx, creds); err != nil {
			m.logger.Info("Signup rejected", "username", creds.Username, "error", err)
			return domain.AuthResult{}, authError(err)
		}
		m.logger.Info("Signup accepted", "username", creds.Username)
		return domain.AuthResult{Outcome: domain.SignupAccepted, Notice: signupNotice}, nil

	case domain.AuthModeLogin:
		token, err := m.auth.Login(ctx, creds)
		if err != nil {
			m.logger.Info("Login rejected", "username", creds.Username, "error", err)
			return domain.AuthResult{}, authError(err)
		}
		if err := m.store.Set(ctx, store.CredentialKey, token); err != nil {
			m.logger.Error("Failed to persist credential", "error", err)
			return domain.AuthResult{}, &domain.AuthError{Message: genericAuthFailure, Err: err}
		}
		sess := domain.Session{Credential: token}
		m.set(sess)
		m.logger.Info("Session established", "username", creds.Username)
		return domain.AuthResult{Outcome: domain.SessionEstablished, Session: sess}, nil
	}

	return domain.AuthResult{}, &domain.AuthError{Message: "unknown auth mode " + string(mode)}
}

// Clear removes the credential and signs out. It is idempotent.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.store.Delete(ctx, store.CredentialKey); err != nil {
		m.logger.Warn("Failed to delete stored credential", "error", err)
	}
	if m.Current().Present() {
		m.logger.Info("Session cleared")
	}
	m.set(domain.Session{})
}

// Invalidate clears the session after the server rejected its credential.
func (m *Manager) Invalidate(ctx context.Context) {
	m.logger.Warn("Server rejected credential, signing out")
	m.Clear(ctx)
}

// Current returns the in-memory session.
func (m *Manager) Current() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Credential returns the bearer credential, or domain.ErrNoSession.
func (m *Manager) Credential() (string, error) {
	sess := m.Current()
	if !sess.Present() {
		return "", domain.ErrNoSession
	}
	return sess.Credential, nil
}

// OnChange registers fn to be called after every session transition.
func (m *Manager) OnChange(fn func(domain.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) set(sess domain.Session) {
	m.mu.Lock()
	changed := m.current != sess
	m.current = sess
	listeners := append([]func(domain.Session){}, m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		fn(sess)
	}
}

func authError(err error) *domain.AuthError {
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message != "" {
			return &domain.AuthError{Message: statusErr.Message, Err: err}
		}
		return &domain.AuthError{Message: genericAuthFailure, Err: err}
	}
	if errors.Is(err, remote.ErrMalformedResponse) {
		return &domain.AuthError{Message: genericAuthFailure, Err: err}
	}
	return &domain.AuthError{Message: err.Error(), Err: err}
}
