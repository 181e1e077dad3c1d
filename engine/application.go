package engine

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-framegraph/engine/config"
	"github.com/spaghettifunk/anima-framegraph/engine/core"
)

// RunApplication loads the configuration at configPath, if any, and runs g until
// it quits or the process receives an interrupt.
func RunApplication(ctx context.Context, g *Game, configPath string, opts ...Option) error {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		g.Config = cfg
		opts = append(opts, WithConfigPath(configPath))
	}

	e, err := New(g, opts...)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		core.LogError("engine initialization failed: %s", err)
		return errors.Join(err, e.Shutdown())
	}

	// capture sigterm and other system calls
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	runErr := e.Run(ctx)
	return errors.Join(runErr, e.Shutdown())
}
