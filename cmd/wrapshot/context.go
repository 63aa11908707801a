package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/jobs"
)

type commandContext struct {
	configFlag string
	dbFlag     string
	verbose    bool

	// newCompleter builds the model client for the run command.
	newCompleter func(cfg config.Config) (extract.Completer, error)

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{
		newCompleter: func(cfg config.Config) (extract.Completer, error) {
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return extract.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
		},
	}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		if path := strings.TrimSpace(c.configFlag); path != "" {
			os.Setenv("WRAPSHOT_CONFIG", path)
		}
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if db := strings.TrimSpace(c.dbFlag); db != "" {
			cfg.DBPath = db
		}
		if err := cfg.ValidateLimits(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(fn func(cfg config.Config, store *jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
