package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tonearm/internal/apply"
	"tonearm/internal/catalog"
	"tonearm/internal/config"
	"tonearm/internal/identify"
	"tonearm/internal/logging"
	"tonearm/internal/providercache"
	"tonearm/internal/state"
)

type commandContext struct {
	configFlag  *string
	catalogFlag *[]string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, catalogFlag *[]string) *commandContext {
	return &commandContext{configFlag: configFlag, catalogFlag: catalogFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		allowMissing := path == ""
		if allowMissing {
			path = config.DefaultConfigPath()
		}
		cfg, err := config.Load(path, allowMissing)
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

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	})
	return c.logger, c.loggerErr
}

// pipeline bundles the opened stores and engines for one command invocation.
type pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *state.Store
	cache   *providercache.Cache
	engine  *identify.Engine
	applier *apply.Applier
}

// withPipeline opens every pipeline component, runs fn, and closes the stores
// again. Commands that only need the state store still go through here; the
// extra opens are cheap and keep the call sites uniform.
func (c *commandContext) withPipeline(fn func(p *pipeline) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}

	store, err := state.Open(cfg.StateDBPath(), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := providercache.Open(cfg.CacheDBPath(), cfg.Cache.MaxEntriesPerNamespace, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	providers, err := c.loadProviders(cfg)
	if err != nil {
		return err
	}

	engine := identify.New(cache, providers, cfg.Identify, logger)
	applier := apply.New(cfg, store, apply.SidecarTagWriter{}, logger)

	return fn(&pipeline{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		cache:   cache,
		engine:  engine,
		applier: applier,
	})
}

// loadProviders loads every catalog named by --catalog plus the catalogs
// directory under the state dir, in path order.
func (c *commandContext) loadProviders(cfg *config.Config) ([]identify.Provider, error) {
	paths := make([]string, 0, 4)
	if c.catalogFlag != nil {
		paths = append(paths, *c.catalogFlag...)
	}
	found, err := filepath.Glob(filepath.Join(cfg.Paths.StateDir, "catalogs", "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan catalogs: %w", err)
	}
	paths = append(paths, found...)
	sort.Strings(paths)

	providers := make([]identify.Provider, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		provider, err := catalog.Load(path)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}
