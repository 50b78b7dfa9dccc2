// ABOUTME: MCP server setup for the gym training store.
// ABOUTME: Wraps the MCP server with storage access, the acting user and instrumentation.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/franorzabal-hub/gym-tracker-sub001/internal/logging"
	"github.com/franorzabal-hub/gym-tracker-sub001/internal/storage"
)

const instructions = `Gym training tracker. Call get_context first: it returns the profile, the active
program, today's planned day and any open session. Log sets with log_exercise (one exercise or
several at once) or log_routine (today's planned day, with overrides). Every error is a JSON object
with "error" and "code" (not_found, validation, conflict, timeout or storage).`

// ToolRecorder receives one observation per finished tool call.
type ToolRecorder interface {
	ToolCall(tool, outcome string, elapsed time.Duration)
}

type nopToolRecorder struct{}

func (nopToolRecorder) ToolCall(string, string, time.Duration) {}

// Options configures NewServer.
type Options struct {
	// UserID is the acting user for every tool call.
	UserID int64
	// Timezone is used when neither the call nor the profile names one.
	Timezone string
	Locale   string
	Version  string
	Logger   *slog.Logger
	Recorder ToolRecorder
}

// Server wraps the MCP server with storage access.
type Server struct {
	mcpServer *mcp.Server
	repo      storage.Repository
	userID    int64
	timezone  string
	locale    string
	logger    *slog.Logger
	recorder  ToolRecorder
}

// NewServer creates a new MCP server with the given storage.
func NewServer(repo storage.Repository, opts Options) (*Server, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.UserID <= 0 {
		return nil, fmt.Errorf("user id must be positive, got %d", opts.UserID)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopToolRecorder{}
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "gym",
			Version: opts.Version,
		},
		&mcp.ServerOptions{Instructions: instructions},
	)

	s := &Server{
		mcpServer: mcpServer,
		repo:      repo,
		userID:    opts.UserID,
		timezone:  opts.Timezone,
		locale:    opts.Locale,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "user_id", s.userID)
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
