// File: cmd/factory.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/gatecrash/internal/browser"
	"github.com/xkilldash9x/gatecrash/internal/browser/humanoid"
	"github.com/xkilldash9x/gatecrash/internal/config"
	"github.com/xkilldash9x/gatecrash/internal/detect"
	"github.com/xkilldash9x/gatecrash/internal/observability"
	"github.com/xkilldash9x/gatecrash/internal/recognition"
	"github.com/xkilldash9x/gatecrash/internal/solver"
)

// Components holds the initialized services one resolution run needs. It
// centralizes lifecycle so the solve command stays a thin shell.
type Components struct {
	BrowserManager *browser.Manager
	Detector       *detect.Detector
	Dispatcher     *solver.Dispatcher
	logger         *zap.Logger
	cfg            *config.Config
}

// NewComponents initializes everything except the page itself.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger()

	manager, err := browser.NewManager(ctx, logger, cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser manager: %w", err)
	}

	detector := detect.New(logger)
	return &Components{
		BrowserManager: manager,
		Detector:       detector,
		Dispatcher:     solver.NewDispatcher(logger, detector),
		logger:         logger,
		cfg:            cfg,
	}, nil
}

// NewEnv opens a tab on url and assembles the solver environment around it.
// The gateway is built per call so its availability cache matches the
// resolution's lifetime.
func (c *Components) NewEnv(ctx context.Context, url string, preferLocal bool) (*solver.Env, error) {
	page, err := c.BrowserManager.NewPage(ctx, url)
	if err != nil {
		return nil, err
	}

	human := humanoid.New(humanoid.DefaultConfig(), c.logger, page)
	gateway := recognition.NewGateway(c.cfg.Recognition, preferLocal, c.logger)

	scratch, err := solver.NewScratch(c.cfg.Solver.ScratchDir, c.logger)
	if err != nil {
		return nil, err
	}

	return &solver.Env{
		Page:    page,
		Human:   human,
		Gateway: gateway,
		Scratch: scratch,
		Logger:  c.logger,
	}, nil
}

// Shutdown tears the browser down. Safe on a partially built struct.
func (c *Components) Shutdown() {
	if c.BrowserManager != nil {
		c.BrowserManager.Shutdown()
		c.logger.Debug("Browser manager shut down.")
	}
}
