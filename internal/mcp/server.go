package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/ratelimit"
	"github.com/intentsim/bloomcascade/internal/simulation"
	"github.com/intentsim/bloomcascade/internal/store"
)

// Server wraps the MCP SDK server around one simulation engine. Tool calls
// are serialized; every handler works on the engine under mu.
type Server struct {
	server *sdk.Server

	mu     sync.Mutex
	engine *simulation.Engine
	runs   *store.Store
	runID  string

	logger       *slog.Logger
	events       *logging.EventLogger
	auditLogger  *AuditLogger
	toolLimiters *ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "bloomcascade")
	Version string // Server version

	// Engine is the simulation the tools drive. Required.
	Engine *simulation.Engine

	// Store enables bloom_save, bloom_load and bloom_runs. The server does
	// not close it.
	Store *store.Store

	// RunID names the stored run Engine was loaded from, if any.
	RunID string

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// Budgets overrides the rate limit pools. Nil uses
	// ratelimit.DefaultBudgets.
	Budgets map[string]ratelimit.Budget

	Logger *slog.Logger
	Events *logging.EventLogger
}

// NewServer creates a new MCP server with the simulation tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Engine == nil {
		return nil, errors.New("mcp server requires an engine")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		engine:       cfg.Engine,
		runs:         cfg.Store,
		runID:        cfg.RunID,
		logger:       logger,
		events:       cfg.Events,
		auditLogger:  NewAuditLogger(cfg.AuditDir),
		toolLimiters: ratelimit.NewToolLimiters(cfg.Budgets),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer stopSignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			s.logger.Info("shutting down on signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, s.Close())
}

// Connect serves a single session over t until the client disconnects.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// Engine returns the engine currently driven by the tools.
func (s *Server) Engine() *simulation.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

func (s *Server) currentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.CurrentStep()
}
