// Package remotetest provides an in-process fake of the chatbot service for
// tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ashureev/chatbot-console/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ctxKey int

const usernameKey ctxKey = iota

// ChatFunc overrides the /chat reply. It returns the status and JSON body.
type ChatFunc func(username, message string) (int, any)

// Server is a fake chatbot service backed by in-memory maps.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[string]string
	tokens   map[string]string
	records  map[string][]domain.Record
	widgets  map[string]domain.WidgetConfig
	domains  map[string][]string
	uploads  map[string][]domain.Upload
	hits     map[string]int
	chatFunc ChatFunc
	chatGate chan struct{}
	releases []func()
	failNext map[string]int
}

// New starts a fake service. It is closed when the test ends.
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		users:    make(map[string]string),
		tokens:   make(map[string]string),
		records:  make(map[string][]domain.Record),
		widgets:  make(map[string]domain.WidgetConfig),
		domains:  make(map[string][]string),
		uploads:  make(map[string][]domain.Upload),
		hits:     make(map[string]int),
		failNext: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(func() {
		s.mu.Lock()
		releases := s.releases
		s.mu.Unlock()
		for _, release := range releases {
			release()
		}
		s.Close()
	})
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)
	r.Use(s.injectFailures)

	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	r.Get("/widget/{userID}", s.handleGetWidget)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/chat", s.handleChat)
		r.Get("/chats", s.handleChats)
		r.Post("/upload", s.handleUpload)
		r.Post("/add-domain", s.handleAddDomain)
		r.Post("/widget/settings", s.handleSaveWidget)
	})
	return r
}

// AddUser registers an account and returns a valid token for it.
func (s *Server) AddUser(username, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = password
	token := "token-" + username
	s.tokens[token] = username
	return token
}

// RevokeToken makes token invalid so authenticated calls answer 401.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// SetRecords replaces the stored history for username.
func (s *Server) SetRecords(username string, records []domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[username] = append([]domain.Record(nil), records...)
}

// SetWidget replaces the stored widget settings for cfg.UserID.
func (s *Server) SetWidget(cfg domain.WidgetConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.widgets[cfg.UserID] = cfg
}

// Widget returns the stored widget settings for userID.
func (s *Server) Widget(userID string) (domain.WidgetConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.widgets[userID]
	return cfg, ok
}

// Domains returns the origins registered by username.
func (s *Server) Domains(username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.domains[username]...)
}

// Uploads returns the documents uploaded by username.
func (s *Server) Uploads(username string) []domain.Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Upload(nil), s.uploads[username]...)
}

// OnChat overrides the /chat behavior.
func (s *Server) OnChat(fn ChatFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatFunc = fn
}

// HoldChat makes /chat block until the returned release func is called.
func (s *Server) HoldChat() (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	s.mu.Lock()
	s.chatGate = gate
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return release
}

// FailNext makes the next n requests to path answer with a dropped connection.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[path] = n
}

// Hits returns how many requests reached method and path, e.g. "GET /chats".
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.failNext[r.URL.Path] > 0
		if fail {
			s.failNext[r.URL.Path]--
		}
		s.mu.Unlock()
		if fail {
			hj, ok := w.(http.Hijacker)
			if !ok {
				http.Error(w, "hijack unsupported", http.StatusInternalServerError)
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		username, ok := s.tokens[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUsername(r, username)))
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || !creds.Complete() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[creds.Username]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "User already exists"})
		return
	}
	s.users[creds.Username] = creds.Password
	writeJSON(w, http.StatusCreated, map[string]string{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pw, ok := s.users[creds.Username]; !ok || pw != creds.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	token := "token-" + creds.Username
	s.tokens[token] = creds.Username
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}

	s.mu.Lock()
	gate := s.chatGate
	fn := s.chatFunc
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if fn != nil {
		status, body := fn(username, req.Message)
		writeJSON(w, status, body)
		return
	}

	reply := "echo: " + req.Message
	s.mu.Lock()
	s.records[username] = append(s.records[username], domain.Record{Message: req.Message, Reply: reply})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)
	s.mu.Lock()
	records := append([]domain.Record{}, s.records[username]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var u domain.Upload
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.Filename == "" || u.Data == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Filename and data are required"})
		return
	}
	username := usernameFrom(r)
	s.mu.Lock()
	s.uploads[username] = append(s.uploads[username], u)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{})
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Domain is required"})
		return
	}
	username := usernameFrom(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.domains[username] {
		if d == req.Domain {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Domain already added"})
			return
		}
	}
	s.domains[username] = append(s.domains[username], req.Domain)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Domain added"})
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	s.mu.Lock()
	cfg, ok := s.widgets[userID]
	s.mu.Unlock()
	if !ok {
		cfg = domain.DefaultWidgetConfig(userID)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"embedCode": s.embedCode(cfg),
		"theme":     cfg.Theme,
		"position":  string(cfg.Position),
		"avatar":    cfg.AvatarURL,
	})
}

func (s *Server) handleSaveWidget(w http.ResponseWriter, r *http.Request) {
	var cfg domain.WidgetConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil || cfg.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid settings"})
		return
	}
	s.SetWidget(cfg)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Settings saved"})
}

func (s *Server) embedCode(cfg domain.WidgetConfig) string {
	return fmt.Sprintf(`<script src="%s/widget.js" data-user-id="%s" data-theme="%s" data-position="%s"></script>`,
		s.URL, cfg.UserID, cfg.Theme, cfg.Position)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withUsername(r *http.Request, username string) context.Context {
	return context.WithValue(r.Context(), usernameKey, username)
}

func usernameFrom(r *http.Request) string {
	v, _ := r.Context().Value(usernameKey).(string)
	return v
}
