package config

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Embedding and distance backends.
const (
	BackendGRPC   = "grpc"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// Config is the resolved application configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	Workspace Workspace
	Scoring   Scoring
	Server    Server
	History   History
}

// Workspace names the working directory and its artifacts.
type Workspace struct {
	Root    string
	Results string
	Config  string
	Readme  string
	Grids   string
	Output  string
}

// Scoring selects and tunes the model backends.
type Scoring struct {
	Enabled  bool
	Embedder string
	Distance string
	Timeout  time.Duration
	GRPC     GRPC
	Gemini   Gemini
}

// GRPC addresses the inference sidecar.
type GRPC struct {
	Address string
}

// Gemini configures the genai embedder.
type Gemini struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// Server configures the HTTP server.
type Server struct {
	Listen      string
	CORSOrigins []string
}

// History configures the report ledger. A relative Path is resolved against
// the workspace root.
type History struct {
	Enabled bool
	Path    string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Workspace: Workspace{
			Root:    ".",
			Results: "results.csv",
			Config:  "config.json",
			Readme:  "README.txt",
			Grids:   "grids",
			Output:  "report.zip",
		},
		Scoring: Scoring{
			Enabled:  true,
			Embedder: BackendGRPC,
			Distance: BackendGRPC,
			Timeout:  30 * time.Second,
			GRPC:     GRPC{Address: "localhost:50051"},
		},
		Server: Server{
			Listen:      ":8000",
			CORSOrigins: []string{"*"},
		},
		History: History{
			Enabled: true,
			Path:    "report_history.db",
		},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// New validates cfg and returns it.
func New(cfg Config) (*Config, error) {
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return nil, fmt.Errorf("invalid log level %q: must be one of %v", cfg.LogLevel, logLevels)
	}
	if !slices.Contains(logFormats, cfg.LogFormat) {
		return nil, fmt.Errorf("invalid log format %q: must be one of %v", cfg.LogFormat, logFormats)
	}
	if cfg.Workspace.Root == "" {
		return nil, errors.New("workspace root cannot be empty")
	}

	if cfg.Scoring.Enabled {
		switch cfg.Scoring.Embedder {
		case BackendGRPC, BackendGemini:
		default:
			return nil, fmt.Errorf("invalid embedder backend %q: must be %q or %q", cfg.Scoring.Embedder, BackendGRPC, BackendGemini)
		}
		switch cfg.Scoring.Distance {
		case BackendGRPC, BackendNone:
		default:
			return nil, fmt.Errorf("invalid distance backend %q: must be %q or %q", cfg.Scoring.Distance, BackendGRPC, BackendNone)
		}
		if cfg.Scoring.Timeout < 0 {
			return nil, errors.New("scoring timeout cannot be negative")
		}
		if cfg.UsesGRPC() && cfg.Scoring.GRPC.Address == "" {
			return nil, errors.New("scoring grpc address is required for the grpc backend")
		}
		if cfg.Scoring.Embedder == BackendGemini && cfg.Scoring.Gemini.APIKey == "" && cfg.Scoring.Gemini.Project == "" {
			return nil, errors.New("gemini backend needs an api_key or a project")
		}
	}

	if cfg.History.Enabled && cfg.History.Path == "" {
		return nil, errors.New("history path cannot be empty when history is enabled")
	}
	return &cfg, nil
}

// UsesGRPC reports whether any enabled scoring backend is the sidecar.
func (c *Config) UsesGRPC() bool {
	return c.Scoring.Enabled && (c.Scoring.Embedder == BackendGRPC || c.Scoring.Distance == BackendGRPC)
}
