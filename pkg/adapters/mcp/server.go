package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HistoryURI is the resource listing the history of every open session.
const HistoryURI = "rewind://history"

// SessionArgs selects a session.
type SessionArgs struct {
	Session string `json:"session" jsonschema_description:"Session ID"`
}

// SetPropertyArgs assigns a property of an entity.
type SetPropertyArgs struct {
	Session string `json:"session" jsonschema_description:"Session ID"`
	Ref     string `json:"ref" jsonschema_description:"Entity reference, type:id"`
	Key     string `json:"key" jsonschema_description:"Property name"`
	Value   any    `json:"value" jsonschema_description:"New value, null deletes the property"`
}

// EntityArgs creates an entity.
type EntityArgs struct {
	Session string `json:"session" jsonschema_description:"Session ID"`
	Type    string `json:"type" jsonschema_description:"Entity type"`
	ID      string `json:"id" jsonschema_description:"Entity ID"`
}

// LinkArgs relates or unrelates two entities.
type LinkArgs struct {
	Session string `json:"session" jsonschema_description:"Session ID"`
	Ref     string `json:"ref" jsonschema_description:"Entity reference, type:id"`
	Key     string `json:"key" jsonschema_description:"Relationship key"`
	Peer    string `json:"peer" jsonschema_description:"Peer reference, type:id"`
}

// Server exposes the sessions of a session.Manager as an MCP Server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger of the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("rewind-mcp", strings.TrimSpace(rewind.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionArg := mcp.WithString("session", mcp.Required(), mcp.Description("Session ID"))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the newest group of changes of a session."),
		sessionArg,
		mcp.WithOutputSchema[domain.HistoryView](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the next undone group of changes of a session."),
		sessionArg,
		mcp.WithOutputSchema[domain.HistoryView](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("history",
		mcp.WithDescription("Describe the undo history of a session."),
		sessionArg,
		mcp.WithOutputSchema[domain.HistoryView](),
	), mcp.NewStructuredToolHandler(s.handleHistory))

	s.mcpServer.AddTool(mcp.NewTool("create_entity",
		mcp.WithDescription("Create an entity, opening the session if needed. Creation is not recorded."),
		sessionArg,
		mcp.WithString("type", mcp.Required(), mcp.Description("Entity type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
		mcp.WithOutputSchema[domain.HistoryView](),
	), mcp.NewStructuredToolHandler(s.handleCreateEntity))

	s.mcpServer.AddTool(mcp.NewTool("set_property",
		mcp.WithDescription("Assign a property of an entity. The change becomes undoable."),
		sessionArg,
		mcp.WithString("ref", mcp.Required(), mcp.Description("Entity reference, type:id")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Property name")),
		mcp.WithAny("value", mcp.Description("New value, null deletes the property")),
		mcp.WithOutputSchema[domain.HistoryView](),
	), mcp.NewStructuredToolHandler(s.handleSetProperty))

	linkOpts := func(name, description string) mcp.Tool {
		return mcp.NewTool(name,
			mcp.WithDescription(description),
			sessionArg,
			mcp.WithString("ref", mcp.Required(), mcp.Description("Entity reference, type:id")),
			mcp.WithString("key", mcp.Required(), mcp.Description("Relationship key")),
			mcp.WithString("peer", mcp.Required(), mcp.Description("Peer reference, type:id")),
			mcp.WithOutputSchema[domain.HistoryView](),
		)
	}
	s.mcpServer.AddTool(linkOpts("relate", "Link two entities through a relationship key."),
		mcp.NewStructuredToolHandler(s.handleRelate))
	s.mcpServer.AddTool(linkOpts("unrelate", "Remove the link between two entities."),
		mcp.NewStructuredToolHandler(s.handleUnrelate))
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "undo", func(ws *rewind.Workspace) error {
		return ws.Undo()
	})
}

func (s *Server) handleRedo(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "redo", func(ws *rewind.Workspace) error {
		return ws.Redo()
	})
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "history", func(ws *rewind.Workspace) error {
		return nil
	})
}

func (s *Server) handleCreateEntity(ctx context.Context, request mcp.CallToolRequest, args EntityArgs) (domain.HistoryView, error) {
	var view domain.HistoryView
	err := s.sessions.Do(ctx, args.Session, func(ctx context.Context, ws *rewind.Workspace) error {
		if _, err := ws.Create(args.Type, args.ID); err != nil {
			return err
		}
		view = ws.View()
		view.Session = args.Session
		return nil
	})
	if err != nil {
		return domain.HistoryView{}, fmt.Errorf("create_entity failed: %w", err)
	}
	return view, nil
}

func (s *Server) handleSetProperty(ctx context.Context, request mcp.CallToolRequest, args SetPropertyArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "set_property", func(ws *rewind.Workspace) error {
		return ws.Set(args.Ref, args.Key, args.Value)
	})
}

func (s *Server) handleRelate(ctx context.Context, request mcp.CallToolRequest, args LinkArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "relate", func(ws *rewind.Workspace) error {
		return ws.Relate(args.Ref, args.Key, args.Peer)
	})
}

func (s *Server) handleUnrelate(ctx context.Context, request mcp.CallToolRequest, args LinkArgs) (domain.HistoryView, error) {
	return s.mutate(ctx, args.Session, "unrelate", func(ws *rewind.Workspace) error {
		return ws.Unrelate(args.Ref, args.Key, args.Peer)
	})
}

// mutate runs fn on an open session and describes the resulting history.
func (s *Server) mutate(ctx context.Context, id, tool string, fn func(*rewind.Workspace) error) (domain.HistoryView, error) {
	var view domain.HistoryView
	err := s.sessions.View(ctx, id, func(ctx context.Context, ws *rewind.Workspace) error {
		if err := fn(ws); err != nil {
			return err
		}
		view = ws.View()
		view.Session = id
		return nil
	})
	if err != nil {
		s.logger.Debug("MCP tool failed", "tool", tool, "session_id", id, "err", err)
		return domain.HistoryView{}, fmt.Errorf("%s failed: %w", tool, err)
	}
	return view, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(HistoryURI, "Session Histories",
		mcp.WithResourceDescription("Undo history of every open session"),
		mcp.WithMIMEType("application/json"),
	), s.readHistory)
}

func (s *Server) readHistory(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	ids, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	views := make([]domain.HistoryView, 0, len(ids))
	for _, id := range ids {
		err := s.sessions.View(ctx, id, func(ctx context.Context, ws *rewind.Workspace) error {
			view := ws.View()
			view.Session = id
			views = append(views, view)
			return nil
		})
		if err != nil {
			// Closed between List and View.
			continue
		}
	}
	jsonBytes, err := json.Marshal(views)
	if err != nil {
		return nil, fmt.Errorf("failed to encode histories: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      HistoryURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
