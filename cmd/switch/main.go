package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suuupra/upi-switch/internal/api"
	"github.com/suuupra/upi-switch/internal/bank"
	"github.com/suuupra/upi-switch/internal/cache"
	"github.com/suuupra/upi-switch/internal/config"
	"github.com/suuupra/upi-switch/internal/db"
	"github.com/suuupra/upi-switch/internal/events"
	"github.com/suuupra/upi-switch/internal/logger"
	"github.com/suuupra/upi-switch/internal/metrics"
	"github.com/suuupra/upi-switch/internal/repository/postgres"
	"github.com/suuupra/upi-switch/internal/services"
	"github.com/suuupra/upi-switch/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	// The VPA cache is advisory; a dead Redis costs latency, not startup.
	var vpaCache cache.VPACache
	if rc, err := cache.NewRedis(cfg); err != nil {
		log.Warn("redis unavailable, running without vpa cache", "err", err)
	} else {
		vpaCache = rc
		defer rc.Close()
	}

	publisher := events.NewKafkaPublisher(cfg)
	defer publisher.Close()

	wp := worker.NewPool(4)
	defer wp.Stop()
	emitter := events.NewEmitter(publisher, wp, log)

	repos := postgres.NewRepositories(pool)

	// Bank clients come from the registered endpoints. The startup pass is a
	// warm-up; a bank activated later gets its client on first use via the
	// factory handed to the orchestrator.
	newClient := func(endpointURL string) bank.Client {
		return bank.NewHTTPClient(endpointURL, cfg.BankCallTimeout)
	}
	registry := bank.NewRegistry(nil)
	if banks, err := repos.Banks.ListActive(ctx); err != nil {
		log.Error("load banks", "err", err)
		os.Exit(1)
	} else {
		for _, b := range banks {
			registry.Register(b.BankCode, newClient(b.EndpointURL))
		}
	}

	vpaSvc := services.NewVPAService(repos.VPAs, vpaCache, cfg.VPACacheTTL, log)
	bankSvc := services.NewBankService(repos.Banks)
	switchSvc := services.NewSwitchService(
		repos.Store, repos.Transactions, repos.Idempotency,
		vpaSvc, bankSvc, registry, newClient, emitter, log,
		services.SwitchConfig{
			BankCallTimeout: cfg.BankCallTimeout,
			TransactionTTL:  cfg.TransactionTTL,
			IdempotencyTTL:  cfg.IdempotencyTTL,
		},
	)

	sweeper := services.NewSweeper(repos.Locks, repos.Transactions, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	metrics.Init()
	r := api.NewRouter(cfg, switchSvc, vpaSvc, bankSvc)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
