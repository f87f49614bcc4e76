package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/convograph/internal/logging"
	mermaid "github.com/aretw0/convograph/internal/presentation/graph"
	"github.com/aretw0/convograph/pkg/domain"
	"github.com/aretw0/convograph/pkg/runner"
	"github.com/aretw0/convograph/pkg/session"
)

// GraphURI is the resource exposing the loaded graph.
const GraphURI = "convograph://graph"

// SessionResponse is the structured result of the session tools.
type SessionResponse struct {
	State       *domain.State       `json:"state,omitempty" jsonschema_description:"The session state after the call"`
	Projections []domain.Projection `json:"projections,omitempty" jsonschema_description:"Per-node visited/available/highlighted view"`
	Progress    *domain.Progress    `json:"progress,omitempty" jsonschema_description:"Visited count, score and completion"`
	Outcome     *domain.Outcome     `json:"outcome,omitempty" jsonschema_description:"Result of the submitted utterance"`
	Status      string              `json:"status,omitempty" jsonschema_description:"busy, loading or failed when the utterance was not processed"`
}

// Server exposes a session.Manager as an MCP Server.
type Server struct {
	manager   *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
	sanitizer runner.Sanitizer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxInputSize caps submitted utterances in bytes.
func WithMaxInputSize(n int) Option {
	return func(s *Server) { s.sanitizer.MaxBytes = n }
}

// NewServer creates a new MCP Server instance.
func NewServer(manager *session.Manager, version string, opts ...Option) *Server {
	s := &Server{
		manager:   manager,
		mcpServer: server.NewMCPServer("convograph-mcp", strings.TrimSpace(version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	withCORS := cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
	})
	mux := http.NewServeMux()
	mux.Handle("/sse", withCORS(sseServer.SSEHandler()))
	mux.Handle("/message", withCORS(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
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

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a traversal session. Returns the existing session if the id is already in use."),
		mcp.WithString("session_id", mcp.Description("Session id (optional, generated when omitted)")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartSession))

	s.mcpServer.AddTool(mcp.NewTool("submit_utterance",
		mcp.WithDescription("Match an utterance against the available nodes and visit the best confident match."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the speaker said")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubmitUtterance))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the state, node projections and progress of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetSession))

	s.mcpServer.AddTool(mcp.NewTool("reset_session",
		mcp.WithDescription("Clear visited nodes and score, returning the session to its initial state."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleResetSession))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the graph definition as JSON, or as a Mermaid chart overlaid with a session."),
		mcp.WithString("format", mcp.Description("json (default) or mermaid"), mcp.Enum("json", "mermaid")),
		mcp.WithString("session_id", mcp.Description("Session to overlay on the Mermaid chart (optional)")),
	), s.handleGetGraph)
}

func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	state, err := s.manager.Create(ctx, strings.TrimSpace(id))
	if err != nil {
		return SessionResponse{}, fmt.Errorf("start session failed: %w", err)
	}
	return s.response(state), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	state, err := s.manager.Get(ctx, id)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("get session failed: %w", err)
	}
	return s.response(state), nil
}

func (s *Server) handleResetSession(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	state, err := s.manager.Reset(ctx, id)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("reset session failed: %w", err)
	}
	return s.response(state), nil
}

func (s *Server) handleSubmitUtterance(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _ := args["session_id"].(string)
	text, _ := args["text"].(string)

	clean, err := s.sanitizer.Clean(text)
	if err != nil {
		s.logger.Warn("MCP Submit: Input rejected", "err", err, "size", len(text))
		return SessionResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	out, state, err := s.manager.Submit(ctx, id, clean)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBusy):
		case errors.Is(err, domain.ErrOracleUnavailable):
		case errors.Is(err, domain.ErrOracleFailure):
			s.logger.Warn("MCP Submit: oracle failure", "session_id", id, "err", err)
		default:
			return SessionResponse{}, fmt.Errorf("submit failed: %w", err)
		}
	}

	resp := SessionResponse{}
	if state != nil {
		resp = s.response(state)
	}
	resp.Outcome = &out
	switch out.Kind {
	case domain.OutcomeBusy, domain.OutcomeLoading, domain.OutcomeFailed:
		resp.Status = string(out.Kind)
	}
	return resp, nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")
	engine := s.manager.Engine()

	if format == "mermaid" {
		var overlay *mermaid.GraphOverlay
		if id := request.GetString("session_id", ""); id != "" {
			state, err := s.manager.Get(ctx, id)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("get session failed: %v", err)), nil
			}
			overlay = mermaid.OverlayFromProjections(engine.Project(state))
		}
		return mcp.NewToolResultText(mermaid.GenerateMermaid(engine.Graph(), overlay)), nil
	}

	jsonBytes, err := s.graphJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode graph failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Current Graph Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := s.graphJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) graphJSON() ([]byte, error) {
	engine := s.manager.Engine()
	g := engine.Graph()
	terminal, _ := g.Terminal()
	return json.Marshal(map[string]any{
		"stages":    g.Stages(),
		"nodes":     g.Nodes(),
		"edges":     g.Edges(),
		"terminal":  terminal,
		"max_score": engine.MaxScore(),
	})
}

func (s *Server) response(state *domain.State) SessionResponse {
	engine := s.manager.Engine()
	progress := engine.Progress(state)
	return SessionResponse{
		State:       state,
		Projections: engine.Project(state),
		Progress:    &progress,
	}
}
