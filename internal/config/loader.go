package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/fsutil"
)

// fileRoot mirrors the HCL file. Every field is optional; nil means unset.
type fileRoot struct {
	LogLevel  *string        `hcl:"log_level,optional"`
	LogFormat *string        `hcl:"log_format,optional"`
	Workspace *workspaceBlock `hcl:"workspace,block"`
	Scoring   *scoringBlock   `hcl:"scoring,block"`
	Server    *serverBlock    `hcl:"server,block"`
	History   *historyBlock   `hcl:"history,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type workspaceBlock struct {
	Root    *string `hcl:"root,optional"`
	Results *string `hcl:"results,optional"`
	Config  *string `hcl:"config,optional"`
	Readme  *string `hcl:"readme,optional"`
	Grids   *string `hcl:"grids,optional"`
	Output  *string `hcl:"output,optional"`
}

type scoringBlock struct {
	Enabled  *bool        `hcl:"enabled,optional"`
	Embedder *string      `hcl:"embedder,optional"`
	Distance *string      `hcl:"distance,optional"`
	Timeout  *string      `hcl:"timeout,optional"`
	GRPC     *grpcBlock   `hcl:"grpc,block"`
	Gemini   *geminiBlock `hcl:"gemini,block"`
}

type grpcBlock struct {
	Address *string `hcl:"address,optional"`
}

type geminiBlock struct {
	APIKey   *string `hcl:"api_key,optional"`
	Project  *string `hcl:"project,optional"`
	Location *string `hcl:"location,optional"`
	Model    *string `hcl:"model,optional"`
}

type serverBlock struct {
	Listen      *string  `hcl:"listen,optional"`
	CORSOrigins []string `hcl:"cors_origins,optional"`
}

type historyBlock struct {
	Enabled *bool   `hcl:"enabled,optional"`
	Path    *string `hcl:"path,optional"`
}

// Loader reads HCL configuration files.
type Loader struct {
	environ func() []string
}

// NewLoader creates a Loader that exposes the process environment.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

// Load returns the defaults overlaid with the configuration at path. A
// directory is searched recursively for .hcl files, which are applied in
// lexical order. A missing path is not an error when optional is true. The
// result is not validated; callers apply flag overrides and then call New.
func (l *Loader) Load(ctx context.Context, path string, optional bool) (Config, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := Default()

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && optional {
			logger.Debug("No config file, using defaults.", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("error accessing config %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return cfg, fmt.Errorf("search config directory %s: %w", path, err)
		}
		logger.Debug("Discovered HCL files.", "count", len(files))
	}

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return cfg, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return cfg, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if err := root.apply(&cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", file, err)
		}
		logger.Debug("Config file loaded.", "path", file)
	}
	return cfg, nil
}

// evalContext exposes environment variables as env.<NAME>.
func (l *Loader) evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

func (r *fileRoot) apply(cfg *Config) error {
	set(&cfg.LogLevel, r.LogLevel)
	set(&cfg.LogFormat, r.LogFormat)

	if w := r.Workspace; w != nil {
		set(&cfg.Workspace.Root, w.Root)
		set(&cfg.Workspace.Results, w.Results)
		set(&cfg.Workspace.Config, w.Config)
		set(&cfg.Workspace.Readme, w.Readme)
		set(&cfg.Workspace.Grids, w.Grids)
		set(&cfg.Workspace.Output, w.Output)
	}

	if s := r.Scoring; s != nil {
		set(&cfg.Scoring.Enabled, s.Enabled)
		set(&cfg.Scoring.Embedder, s.Embedder)
		set(&cfg.Scoring.Distance, s.Distance)
		if s.Timeout != nil {
			d, err := time.ParseDuration(*s.Timeout)
			if err != nil {
				return fmt.Errorf("scoring timeout: %w", err)
			}
			cfg.Scoring.Timeout = d
		}
		if g := s.GRPC; g != nil {
			set(&cfg.Scoring.GRPC.Address, g.Address)
		}
		if g := s.Gemini; g != nil {
			set(&cfg.Scoring.Gemini.APIKey, g.APIKey)
			set(&cfg.Scoring.Gemini.Project, g.Project)
			set(&cfg.Scoring.Gemini.Location, g.Location)
			set(&cfg.Scoring.Gemini.Model, g.Model)
		}
	}

	if s := r.Server; s != nil {
		set(&cfg.Server.Listen, s.Listen)
		if s.CORSOrigins != nil {
			cfg.Server.CORSOrigins = s.CORSOrigins
		}
	}

	if h := r.History; h != nil {
		set(&cfg.History.Enabled, h.Enabled)
		set(&cfg.History.Path, h.Path)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
