package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/me/autograde/internal/cache"
	"github.com/me/autograde/internal/config"
	"github.com/me/autograde/internal/grader"
	"github.com/me/autograde/internal/grading"
	"github.com/me/autograde/internal/logging"
	"github.com/me/autograde/internal/notify"
	"github.com/me/autograde/internal/observer"
	"github.com/me/autograde/internal/scheduler"
	"github.com/me/autograde/internal/server"
	"github.com/me/autograde/internal/store"
	"github.com/me/autograde/pkg/model"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath, err := resolveDBPath(cfg.DBPath)
	if err != nil {
		return err
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready", "path", dbPath)

	// Executors from the config file join those already stored.
	registry := grader.NewRegistry(grader.HTTPBackendFactory(logger), logger)
	if err := seedExecutors(ctx, st, cfg.Executors, logger); err != nil {
		return err
	}
	execs, err := st.ListExecutors(ctx)
	if err != nil {
		return fmt.Errorf("list executors: %w", err)
	}
	registry.Sync(execs)
	logger.Info("executors registered", "count", len(execs))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	loop := scheduler.NewLoop(
		grader.NewDispatcher(st, registry, logger),
		scheduler.Config{
			MaxConcurrent:  cfg.MaxConcurrent,
			BackendTimeout: cfg.BackendTimeout,
			MaxQueueWait:   cfg.MaxQueueWait,
		},
		scheduler.NewMetrics(reg),
		logger,
	)
	obs := observer.New(logger)

	svcOpts := []grading.Option{
		grading.WithConfig(gradingConfig(cfg)),
		grading.WithLogger(logger),
		grading.WithNotifier(notify.NewDispatcher(cfg.NotifyTimeout, logger)),
	}
	if cfg.SendGridKey != "" && cfg.OperatorEmail != "" {
		svcOpts = append(svcOpts, grading.WithOperator(
			notify.NewSendGridOperator(cfg.SendGridKey, "", cfg.MailFrom, cfg.OperatorEmail, logger)))
		logger.Info("operator notifications by mail", "to", cfg.OperatorEmail)
	}
	if cfg.GradeSyncURL != "" {
		svcOpts = append(svcOpts, grading.WithGradeSync(notify.NewWebhookGradeSync(cfg.GradeSyncURL, logger)))
		logger.Info("grade sync enabled", "url", cfg.GradeSyncURL)
	}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()
		svcOpts = append(svcOpts, grading.WithCache(rc))
		logger.Info("read cache on redis", "addr", cfg.RedisAddr)
	}
	svc := grading.NewService(st, loop, obs, svcOpts...)

	// Nothing is in flight yet, so every IN_PROGRESS row was left by a
	// previous process.
	if n, err := svc.RecoverStale(ctx, 0); err != nil {
		return fmt.Errorf("recover stale submissions: %w", err)
	} else if n > 0 {
		logger.Warn("failed submissions left in progress", "count", n)
	}

	srv := server.New(cfg, st, svc, logger,
		server.WithScheduler(loop),
		server.WithObserver(obs),
		server.WithExecutorRegistry(registry),
		server.WithMetrics(reg),
	)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := loop.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)

		// Stop the scheduler after the HTTP server so in-flight grading
		// reconciles before the store closes.
		if serr := loop.Stop(); serr != nil {
			logger.Error("scheduler stop error", "error", serr)
		}
		return err
	})

	err = g.Wait()
	svc.Notifier().Wait()
	logger.Info("server stopped")
	return err
}

func resolveDBPath(p string) (string, error) {
	if p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".autograde")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "autograde.db"), nil
}

// seedExecutors stores configured executors whose name is not yet known.
func seedExecutors(ctx context.Context, st store.Store, configured []config.ExecutorConfig, logger *slog.Logger) error {
	if len(configured) == 0 {
		return nil
	}
	existing, err := st.ListExecutors(ctx)
	if err != nil {
		return fmt.Errorf("list executors: %w", err)
	}
	known := lo.SliceToMap(existing, func(ex *model.Executor) (string, bool) { return ex.Name, true })

	for _, ec := range configured {
		name := lo.Ternary(ec.Name != "", ec.Name, ec.BaseURL)
		if known[name] {
			continue
		}
		ex := &model.Executor{
			ID:        "exe_" + uuid.New().String(),
			Name:      name,
			BaseURL:   ec.BaseURL,
			MaxLoad:   lo.Ternary(ec.MaxLoad > 0, ec.MaxLoad, 1),
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateExecutor(ctx, ex); err != nil {
			return fmt.Errorf("register executor %s: %w", name, err)
		}
		known[name] = true
		logger.Info("executor registered from config", "id", ex.ID, "name", name, "base_url", ec.BaseURL)
	}
	return nil
}

func gradingConfig(cfg config.ServerConfig) grading.Config {
	return grading.Config{
		MergeWindow:       cfg.MergeWindow,
		AnonymousKeep:     cfg.AnonymousKeep,
		PollStart:         cfg.PollStart,
		PollStep:          cfg.PollStep,
		PollSteps:         cfg.PollSteps,
		RecoveryAge:       cfg.RecoveryAge,
		ObserverRetention: cfg.ObserverRetention,
		ReconcileBudget:   cfg.ReconcileBudget,
		CacheTTL:          cfg.CacheTTL,
	}
}
