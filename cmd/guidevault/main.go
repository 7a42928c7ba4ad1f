package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/config"
	"github.com/voyagen/guidevault/internal/fetcher"
	"github.com/voyagen/guidevault/internal/jobs"
	"github.com/voyagen/guidevault/internal/logging"
	"github.com/voyagen/guidevault/internal/scheduler"
	"github.com/voyagen/guidevault/internal/server"
	"github.com/voyagen/guidevault/internal/service"
	"github.com/voyagen/guidevault/internal/store"
	"github.com/voyagen/guidevault/internal/xtream"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use environment variables")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("guidevault", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var appStore store.Store
	if cfg.DatabaseURL != "" {
		if err := store.EnsureTrigram(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("pg_trgm")
		}
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("migrate")
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("db")
		}
		defer pg.Close()
		appStore = pg
	} else {
		log.Warn("DATABASE_URL not set, using the in-memory store")
		appStore = store.NewMemory()
	}

	engineOpts := service.Options{
		RefreshTimeout:     cfg.RefreshTimeout,
		RefreshConcurrency: cfg.RefreshConcurrency,
		Log:                log,
	}
	jobOpts := jobs.Options{Workers: cfg.JobWorkers, Log: log}
	checks := map[string]server.HealthCheck{}

	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis")
		}
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			log.WithError(err).Fatal("redis ping")
		}
		appStore = store.NewCachedStore(appStore, rds, log)
		engineOpts.Locker = rds
		jobOpts.Queue = cache.NewQueue(rds, cache.DefaultQueue)
		jobOpts.Status = jobs.NewRedisStatus(rds)
		checks["redis"] = rds.Ping
		log.Info("redis connected (caching, locks and job queue enabled)")
	} else {
		log.Info("redis disabled (REDIS_URL not set)")
	}

	f := fetcher.New(fetcher.Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.Timeout,
		MaxBytes:     cfg.MaxBodyBytes,
		AllowPrivate: cfg.AllowPrivateNetworks,
	})
	if cfg.AllowPrivateNetworks {
		log.Warn("private network addresses are reachable by the fetcher")
	}

	engineOpts.Store = appStore
	engineOpts.Fetcher = f
	engineOpts.Catalogs = service.NewProviderCatalog(cfg.Accounts, f, xtream.Options{
		UserAgent: cfg.UserAgent,
		RateLimit: cfg.XtreamRateLimit,
	})
	engine := service.New(engineOpts)

	sched := scheduler.New(scheduler.Options{
		Refresher:    engine,
		Settings:     appStore,
		Location:     cfg.SchedulerLocation,
		StartupDelay: cfg.SchedulerStartupDelay,
		Log:          log,
	})
	if err := sched.Start(ctx); err != nil {
		log.WithError(err).Fatal("scheduler")
	}

	jobOpts.Executor = engine
	runner := jobs.New(jobOpts)
	runner.Start(ctx)

	srv := server.New(server.Options{
		Engine:    engine,
		Scheduler: sched,
		Jobs:      runner,
		Log:       log,
		Port:      cfg.ServerPort,
		Checks:    checks,
	})
	serveErr := srv.ListenAndServe(ctx)

	stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(stopCtx)
	runner.Wait()
	if serveErr != nil {
		log.WithError(serveErr).Error("server")
		os.Exit(1)
	}
	log.Info("shut down")
}
