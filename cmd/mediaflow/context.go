package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mediaflow/internal/config"
	"mediaflow/internal/content"
	"mediaflow/internal/ingest"
	"mediaflow/internal/jobs"
	"mediaflow/internal/logging"
	"mediaflow/internal/media"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/store"
	"mediaflow/internal/workflow"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// app is the set of services a command works against. CLI commands share the
// daemon's database; jobs they submit are picked up by the daemon's pollers.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	catalog   *content.Catalog
	jobs      *jobs.Manager
	workflows *workflow.Service
	ingest    *ingest.Orchestrator
	registry  *prometheus.Registry
}

func (c *commandContext) openApp(logger *slog.Logger) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logger == nil {
		logger, err = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      "json",
			OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "mediaflow-cli.log")},
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	provider, err := speech.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	registry := prometheus.NewRegistry()
	engine := media.NewEngine(cfg, st, media.ExecRunner{}, provider, logger)
	manager, err := jobs.NewManager(cfg, st, engine, logger, jobs.WithRegisterer(registry))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	catalog := content.NewCatalog(st)
	workflows := workflow.NewService(st, catalog, logger)
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		catalog:   catalog,
		jobs:      manager,
		workflows: workflows,
		ingest:    ingest.NewOrchestrator(cfg, st, catalog, manager, workflows, logger),
		registry:  registry,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (c *commandContext) withApp(fn func(*app) error) error {
	a, err := c.openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
