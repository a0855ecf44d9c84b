package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"dentarch/internal/config"
	"dentarch/internal/logging"
	"dentarch/internal/project"
)

// commandContext carries lazily-initialized state shared across commands.
// Config and logger are built at most once per process.
type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	logClose   func()
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configPath, _, c.configErr = config.Load(*c.configFlag)
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// ensureLogger builds the process logger. Log records go to the configured
// log directory; stderr stays reserved for command results and errors.
func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		opts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
		if cfg.Paths.LogDir != "" {
			file, err := logging.OpenLogFile(filepath.Join(cfg.Paths.LogDir, "dentarch.log"))
			if err == nil {
				opts.Output = file
				opts.Format = "json"
				c.logClose = func() { file.Close() }
			}
		}
		logger, err := logging.New(opts)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// withService runs fn with a ready pipeline service and a signal-aware
// context. The service and any log file are released afterwards.
func (c *commandContext) withService(fn func(ctx context.Context, svc *project.Service) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.ensureLogger()

	svc, err := project.NewService(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()
	if c.logClose != nil {
		defer c.logClose()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, svc)
}
