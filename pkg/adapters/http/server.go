package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the sessions of a session.Manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithGatherer serves the metrics of g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger for request failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// EntityRequest creates an entity.
type EntityRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// EntityView is the state of one entity.
type EntityView struct {
	Ref        string         `json:"ref"`
	Attributes map[string]any `json:"attributes"`
}

// SetRequest assigns a property. A null value deletes it.
type SetRequest struct {
	Value any `json:"value"`
}

// LinkRequest relates or unrelates two entities.
type LinkRequest struct {
	Ref  string `json:"ref"`
	Key  string `json:"key"`
	Peer string `json:"peer"`
}

// LimitRequest changes the history limit.
type LimitRequest struct {
	Limit int `json:"limit"`
}

// NewHandler creates a new HTTP handler for the sessions.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	s := &Server{
		Sessions: sessions,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/sessions", s.ListSessions)
	r.Route("/sessions/{session}", func(r chi.Router) {
		r.Post("/", s.OpenSession)
		r.Delete("/", s.CloseSession)
		r.Get("/history", s.GetHistory)
		r.Post("/undo", s.Undo)
		r.Post("/redo", s.Redo)
		r.Post("/clear", s.Clear)
		r.Put("/limit", s.SetLimit)
		r.Get("/journal", s.GetJournal)
		r.Get("/entities", s.ListEntities)
		r.Post("/entities", s.CreateEntity)
		r.Put("/entities/{ref}/{key}", s.SetProperty)
		r.Post("/relate", s.Relate)
		r.Post("/unrelate", s.Unrelate)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "rewind-http",
		"version": strings.TrimSpace(rewind.Version),
	})
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, "ListSessions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// OpenSession handles the POST /sessions/{session} request.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	if err := s.Sessions.Open(r.Context(), id); err != nil {
		s.writeError(w, "OpenSession", err)
		return
	}
	s.respondHistory(w, r, id, http.StatusCreated)
}

// CloseSession handles the DELETE /sessions/{session} request.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	if err := s.Sessions.Close(r.Context(), id); err != nil {
		s.writeError(w, "CloseSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles the GET /sessions/{session}/history request.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	s.respondHistory(w, r, chi.URLParam(r, "session"), http.StatusOK)
}

// Undo handles the POST /sessions/{session}/undo request.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "Undo", func(ws *rewind.Workspace) error {
		return ws.Undo()
	})
}

// Redo handles the POST /sessions/{session}/redo request.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "Redo", func(ws *rewind.Workspace) error {
		return ws.Redo()
	})
}

// Clear handles the POST /sessions/{session}/clear request.
func (s *Server) Clear(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, "Clear", func(ws *rewind.Workspace) error {
		return ws.History().Clear()
	})
}

// SetLimit handles the PUT /sessions/{session}/limit request.
func (s *Server) SetLimit(w http.ResponseWriter, r *http.Request) {
	var body LimitRequest
	if !s.decode(w, r, "SetLimit", &body) {
		return
	}
	s.mutate(w, r, "SetLimit", func(ws *rewind.Workspace) error {
		return ws.History().SetLimit(body.Limit)
	})
}

// GetJournal handles the GET /sessions/{session}/journal request.
func (s *Server) GetJournal(w http.ResponseWriter, r *http.Request) {
	records, err := s.Sessions.Journal(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		s.writeError(w, "GetJournal", err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// ListEntities handles the GET /sessions/{session}/entities request.
func (s *Server) ListEntities(w http.ResponseWriter, r *http.Request) {
	var views []EntityView
	err := s.Sessions.View(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, ws *rewind.Workspace) error {
		for _, e := range ws.Store().All() {
			views = append(views, EntityView{Ref: e.Ref(), Attributes: e.Attributes()})
		}
		return nil
	})
	if err != nil {
		s.writeError(w, "ListEntities", err)
		return
	}
	if views == nil {
		views = []EntityView{}
	}
	s.writeJSON(w, http.StatusOK, views)
}

// CreateEntity handles the POST /sessions/{session}/entities request.
func (s *Server) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var body EntityRequest
	if !s.decode(w, r, "CreateEntity", &body) {
		return
	}
	var view EntityView
	err := s.Sessions.Do(r.Context(), chi.URLParam(r, "session"), func(ctx context.Context, ws *rewind.Workspace) error {
		e, err := ws.Create(body.Type, body.ID)
		if err != nil {
			return err
		}
		view = EntityView{Ref: e.Ref(), Attributes: e.Attributes()}
		return nil
	})
	if err != nil {
		s.writeError(w, "CreateEntity", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

// SetProperty handles the PUT /sessions/{session}/entities/{ref}/{key} request.
func (s *Server) SetProperty(w http.ResponseWriter, r *http.Request) {
	var body SetRequest
	if !s.decode(w, r, "SetProperty", &body) {
		return
	}
	ref, key := chi.URLParam(r, "ref"), chi.URLParam(r, "key")
	s.mutate(w, r, "SetProperty", func(ws *rewind.Workspace) error {
		return ws.Set(ref, key, body.Value)
	})
}

// Relate handles the POST /sessions/{session}/relate request.
func (s *Server) Relate(w http.ResponseWriter, r *http.Request) {
	var body LinkRequest
	if !s.decode(w, r, "Relate", &body) {
		return
	}
	s.mutate(w, r, "Relate", func(ws *rewind.Workspace) error {
		return ws.Relate(body.Ref, body.Key, body.Peer)
	})
}

// Unrelate handles the POST /sessions/{session}/unrelate request.
func (s *Server) Unrelate(w http.ResponseWriter, r *http.Request) {
	var body LinkRequest
	if !s.decode(w, r, "Unrelate", &body) {
		return
	}
	s.mutate(w, r, "Unrelate", func(ws *rewind.Workspace) error {
		return ws.Unrelate(body.Ref, body.Key, body.Peer)
	})
}

// mutate runs fn on an open session, broadcasts what changed in its history and responds with the new history.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(*rewind.Workspace) error) {
	id := chi.URLParam(r, "session")
	var resp domain.HistoryView
	err := s.Sessions.View(r.Context(), id, func(ctx context.Context, ws *rewind.Workspace) error {
		before := history(id, ws)
		if err := fn(ws); err != nil {
			return err
		}
		resp = history(id, ws)
		// Broadcast while the session is held so subscribers see diffs in commit order.
		if diff := domain.Diff(&before, &resp); diff != nil {
			if bytes, err := json.Marshal(diff); err == nil {
				s.Streams.Broadcast(id, string(bytes))
			}
		}
		return nil
	})
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) respondHistory(w http.ResponseWriter, r *http.Request, id string, status int) {
	var resp domain.HistoryView
	err := s.Sessions.View(r.Context(), id, func(ctx context.Context, ws *rewind.Workspace) error {
		resp = history(id, ws)
		return nil
	})
	if err != nil {
		s.writeError(w, "GetHistory", err)
		return
	}
	s.writeJSON(w, status, resp)
}

func history(id string, ws *rewind.Workspace) domain.HistoryView {
	view := ws.View()
	view.Session = id
	return view
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn(op+": Invalid request body", "err", err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	} else {
		s.logger.Debug(op+" rejected", "err", err, "status", status)
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

// Subscribe registers a buffered channel for the session's history updates.
func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Subscribers returns the number of listeners of a session.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
		}
	}
}

// SubscribeEvents handles the GET /events?session_id= request (SSE).
// Every mutation of the session pushes its history as a data event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()
	s.logger.Info("SSE: Subscribing to history updates", "session_id", sessionID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
