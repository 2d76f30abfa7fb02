package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xrce "github.com/samsamfire/goxrce"
	"github.com/samsamfire/goxrce/internal/metrics"
	"github.com/samsamfire/goxrce/pkg/config"
	"github.com/samsamfire/goxrce/pkg/middleware"
	"github.com/samsamfire/goxrce/pkg/profile"
	"github.com/samsamfire/goxrce/pkg/transport"
)

// Agent owns the runtime of one XRCE agent process : the transport, the
// root registry, the processor and the periodic timers
type Agent struct {
	logger    *slog.Logger
	cfg       *config.Config
	root      *Root
	processor *Processor
	transport xrce.Transport
	profiles  *profile.Store
	metrics   *metrics.Collectors
	cancel    context.CancelFunc
	wg        *sync.WaitGroup
}

// New assembles an agent from its configuration. The transport and
// middleware kinds are resolved through their registries, implementations
// register themselves on import.
func New(logger *slog.Logger, cfg *config.Config) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	profiles := profile.Default(logger)
	if cfg.Profiles != "" {
		if err := profiles.Load(cfg.Profiles); err != nil {
			return nil, fmt.Errorf("loading profiles: %w", err)
		}
	}

	args := map[string]string{}
	for k, v := range cfg.MiddlewareArgs {
		args[k] = v
	}
	if cfg.Profiles != "" && args["profiles"] == "" {
		args["profiles"] = cfg.Profiles
	}
	mw, err := middleware.New(cfg.Middleware, args)
	if err != nil {
		return nil, fmt.Errorf("creating middleware %q: %w", cfg.Middleware, err)
	}

	newTransport, ok := transport.AvailableTransports[cfg.Transport]
	if !ok {
		return nil, fmt.Errorf("transport %q is not registered", cfg.Transport)
	}
	trans, err := newTransport(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("creating transport %q: %w", cfg.Transport, err)
	}

	m := metrics.New(cfg.MetricsNamespace)
	root := NewRoot(logger, mw, m, cfg.MaxClients, cfg.OutputMTU, cfg.RetentionWindow)
	processor := NewProcessor(logger, cfg, root, trans, m)
	trans.Subscribe(processor)

	return &Agent{
		logger:    logger.With("service", "[AGNT]"),
		cfg:       cfg,
		root:      root,
		processor: processor,
		transport: trans,
		profiles:  profiles,
		metrics:   m,
		wg:        &sync.WaitGroup{},
	}, nil
}

// NewWithTransport assembles an agent around an existing transport and
// middleware, used by tests and embedders
func NewWithTransport(logger *slog.Logger, cfg *config.Config, trans xrce.Transport, mw middleware.Middleware) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New(cfg.MetricsNamespace)
	root := NewRoot(logger, mw, m, cfg.MaxClients, cfg.OutputMTU, cfg.RetentionWindow)
	processor := NewProcessor(logger, cfg, root, trans, m)
	trans.Subscribe(processor)
	return &Agent{
		logger:    logger.With("service", "[AGNT]"),
		cfg:       cfg,
		root:      root,
		processor: processor,
		transport: trans,
		profiles:  profile.Default(logger),
		metrics:   m,
		wg:        &sync.WaitGroup{},
	}
}

// Root exposes the session registry
func (a *Agent) Root() *Root {
	return a.root
}

// Processor exposes the packet processor, embedders feed it directly
func (a *Agent) Processor() *Processor {
	return a.processor
}

// Start launches the transport reception, the heartbeat timer and the
// liveliness scan. Call Stop then Wait to shut down.
func (a *Agent) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.transport.Run(ctx); err != nil {
			a.logger.Error("transport stopped", "err", err)
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop(ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.livelinessLoop(ctx)
	}()

	if a.cfg.WatchProfiles && a.cfg.Profiles != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.profiles.Watch(ctx); err != nil {
				a.logger.Error("profile watcher stopped", "err", err)
			}
		}()
	}

	a.logger.Info("agent started",
		"transport", a.cfg.Transport,
		"listen", a.transport.LocalAddr(),
		"middleware", a.cfg.Middleware)
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.processor.HeartbeatTick()
		}
	}
}

func (a *Agent) livelinessLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.LivelinessProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.processor.LivelinessTick()
		}
	}
}

// Stop requests shutdown, Wait blocks until every goroutine exited
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.root.Shutdown()
	a.transport.Close()
}

// Wait blocks until the agent fully stopped
func (a *Agent) Wait() {
	a.wg.Wait()
}
