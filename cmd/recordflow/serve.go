package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/health"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/server"
	"github.com/vyrodovalexey/recordflow/internal/transform"
)

type serveOptions struct {
	address string
	watch   bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record transformer over HTTP",
		Long: `Starts the HTTP API. Business rules are reloaded when the
configuration file changes; an invalid revision is rejected and the
previous rules stay in effect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(root, opts)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", app.config.Spec.Server.Address)
			if err != nil {
				app.close(context.Background())
				return fmt.Errorf("failed to listen on %s: %w", app.config.Spec.Server.Address, err)
			}
			return app.run(ctx, ln)
		},
	}

	cmd.Flags().StringVar(&opts.address, "address", getEnvOrDefault(envAddress, ""),
		"Listen address (env "+envAddress+"; default from config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "Reload rules when the configuration file changes")

	return cmd
}

// application holds all components of a running server.
type application struct {
	config        *config.RecordflowConfig
	configPath    string
	logger        observability.Logger
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	sinks         *errorSinks
	transformer   *transform.RecordTransformer
	healthChecker *health.Checker
	server        *server.Server
	watcher       *config.Watcher
}

// newApplication wires every component from configuration.
func newApplication(root *rootOptions, opts *serveOptions) (*application, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.address != "" {
		cfg.Spec.Server.Address = opts.address
	}

	logger, err := root.newLogger(cfg, "")
	if err != nil {
		return nil, err
	}

	logger.Info("starting recordflow",
		observability.String("version", version),
		observability.String("config", root.configPath),
		observability.Int("rules", len(cfg.Spec.Transformer.BusinessRules)),
	)

	obs := cfg.Spec.Observability
	namespace := obs.Metrics.Namespace
	metrics := observability.NewMetrics(namespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	metrics.InitVecMetrics()
	registry := metrics.Registry()

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  obs.Tracing.ServiceName,
		OTLPEndpoint: obs.Tracing.OTLPEndpoint,
		SamplingRate: obs.Tracing.SamplingRate,
		Enabled:      obs.Tracing.Enabled,
		Insecure:     obs.Tracing.Insecure,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	app := &application{
		config:     cfg,
		configPath: root.configPath,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
	}

	app.sinks, err = buildSinks(cfg.Spec.Sinks, logger, namespace, registry)
	if err != nil {
		app.close(context.Background())
		return nil, err
	}

	app.transformer, err = transform.New(&cfg.Spec.Transformer,
		transform.WithLogger(logger),
		transform.WithTransformMetrics(transform.NewTransformMetrics(namespace, registry)),
		transform.WithNotifier(app.sinks.notifier),
		transform.WithErrorLog(app.sinks.errorLog),
	)
	if err != nil {
		app.close(context.Background())
		return nil, err
	}

	app.healthChecker = health.NewChecker(version,
		health.WithMetrics(health.NewMetrics(namespace, registry)),
	)
	app.sinks.registerChecks(app.healthChecker)

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithHealthChecker(app.healthChecker),
		server.WithMetrics(server.NewMetrics(namespace, registry)),
	}
	if obs.Metrics.Enabled {
		serverOpts = append(serverOpts, server.WithPrometheusHandler(obs.Metrics.Path, metrics.Handler()))
	}
	app.server = server.New(cfg.Spec.Server, app.transformer, serverOpts...)

	if opts.watch && root.configPath != "" {
		app.watcher, err = config.NewWatcher(root.configPath, app.reloadRules,
			config.WithLogger(logger),
			config.WithErrorCallback(func(error) {
				metrics.RecordConfigReload(false)
			}),
		)
		if err != nil {
			app.close(context.Background())
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
	}

	return app, nil
}

// reloadRules applies a new configuration revision. Only the transformer
// section is hot-reloadable; other changes need a restart.
func (a *application) reloadRules(cfg *config.RecordflowConfig) {
	if err := a.transformer.UpdateRules(&cfg.Spec.Transformer); err != nil {
		a.metrics.RecordConfigReload(false)
		a.logger.Error("rejected business rules from reloaded configuration", observability.Error(err))
		return
	}
	a.metrics.RecordConfigReload(true)
}

// run serves on ln until ctx is done, then shuts down gracefully.
func (a *application) run(ctx context.Context, ln net.Listener) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			_ = ln.Close()
			a.close(context.Background())
			return fmt.Errorf("failed to start config watcher: %w", err)
		}
	}

	if err := a.sinks.ping(ctx); err != nil {
		a.logger.Warn("redis error log unreachable at startup", observability.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Serve(ln)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		a.healthChecker.SetDraining(true)

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			a.config.Spec.Server.ShutdownTimeout.Duration())
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.config.Spec.Server.ShutdownTimeout.Duration())
	defer cancel()
	a.close(closeCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("recordflow stopped")
	return nil
}

// close releases everything newApplication acquired.
func (a *application) close(ctx context.Context) {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Error("failed to stop config watcher", observability.Error(err))
		}
	}
	if a.sinks != nil {
		if err := a.sinks.Close(ctx); err != nil {
			a.logger.Error("failed to close error sinks", observability.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
	_ = a.logger.Sync()
}
