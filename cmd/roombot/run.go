package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"roombot/internal/core/domain"
	"roombot/internal/core/ports"
	"roombot/internal/core/services"
	httphandlers "roombot/internal/handlers/http"
	"roombot/internal/infrastructure/monitoring"
	"roombot/internal/infrastructure/repositories"
	"roombot/internal/infrastructure/scheduler"
	"roombot/internal/infrastructure/transport"
	"roombot/internal/plugins"
	"roombot/pkg/backup"
	"roombot/pkg/config"
	apperrors "roombot/pkg/errors"
	"roombot/pkg/logger"
	"roombot/pkg/tracing"
)

func run(parent context.Context, cfg *config.Config) error {
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "roombot",
		Version:     version,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, "init tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Warnw("Failed to flush traces", "error", err)
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, stop := context.WithCancelCause(sigCtx)
	defer stop(nil)

	store, err := repositories.NewStore(ctx, cfg, log)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, "open store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorw("Error closing store", "error", err)
		}
	}()

	lease, releaseLease, err := acquireLease(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer releaseLease()
	if lease != nil {
		go func() {
			select {
			case <-lease.Lost():
				log.Errorw("Channel lease lost, leaving the room")
				stop(errLeaseLost)
			case <-ctx.Done():
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewPrometheusCollector(reg)

	room := services.NewRoomState(cfg.Room.Username, log)
	client := transport.NewClient(transport.Config{
		URL:              cfg.Room.URL,
		Channel:          cfg.Room.Channel,
		Username:         cfg.Room.Username,
		Password:         cfg.Room.Password,
		HandshakeTimeout: cfg.Room.HandshakeTimeout,
		PingInterval:     cfg.Room.PingInterval,
		PongTimeout:      cfg.Room.PongTimeout,
		WriteTimeout:     cfg.Room.WriteTimeout,
	}, log)
	defer client.Close()

	env := &services.Env{
		Room:             room,
		Client:           client,
		Permissions:      services.NewPermissionService(room, cfg.Permissions.Hybrid, log),
		Cooldowns:        services.NewCooldownEngine(log, services.WithCooldownObserver(metrics)),
		Registry:         services.NewCommandRegistry(log),
		Store:            store,
		Logger:           log,
		MaxMessageLength: cfg.Room.MaxMessageLength,
		ModBypassRank:    domain.Rank(cfg.Commands.ModBypassRank),
	}

	for _, p := range plugins.Builtin(plugins.Options{
		QueueRetryAttempts: cfg.Queue.RetryAttempts,
		QueueRetryDelay:    cfg.Queue.RetryDelay,
	}) {
		if err := env.Registry.LoadPlugin(ctx, env, p); err != nil {
			return err
		}
	}

	dispatcher, err := services.NewDispatcher(services.DispatcherConfig{
		Trigger:   cfg.Commands.Trigger,
		Blacklist: cfg.Commands.Blacklist,
	}, env.Registry, env, log, services.WithDispatchObserver(metrics))
	if err != nil {
		return err
	}
	router := transport.NewRouter(room, dispatcher, store, log, transport.WithEventObserver(metrics))

	sched, err := newScheduler(cfg, env, store, metrics, log)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfig, "configure scheduler")
	}

	if err := client.Connect(ctx); err != nil {
		return err
	}

	sched.Start(ctx)
	var srv *http.Server
	if cfg.Dashboard.Enabled {
		srv = startDashboard(cfg, env, client, reg, log)
	}
	go func() {
		select {
		case <-client.LoggedIn():
			metrics.SetConnected(true)
		case <-ctx.Done():
		}
	}()

	runErr := client.Run(ctx, router)
	metrics.SetConnected(false)
	if cause := context.Cause(ctx); errors.Is(cause, errLeaseLost) {
		runErr = apperrors.Wrap(cause, apperrors.ErrCodeTransport, "room session ended")
	} else if ctx.Err() != nil {
		log.Infow("Shutting down", "reason", cause)
		runErr = nil
	} else {
		metrics.RecordDisconnect()
		log.Errorw("Room session ended", "error", runErr)
	}

	stop(nil)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dashboard.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error during dashboard shutdown", "error", err)
			_ = srv.Close()
		}
		cancel()
	}
	sched.Wait()
	dispatcher.Wait()
	router.Wait()

	log.Info("roombot stopped")
	return runErr
}

func newScheduler(cfg *config.Config, env *services.Env, store ports.Store, metrics *monitoring.PrometheusCollector, log *zap.SugaredLogger) (*scheduler.Scheduler, error) {
	s := scheduler.New(log, scheduler.WithRunObserver(metrics))
	if !cfg.Scheduler.Enabled {
		return s, nil
	}

	jobs := []scheduler.Job{scheduler.RoomStats(env.Room, metrics)}
	if cron := cfg.Scheduler.PruneCron; cron != "" {
		jobs = append(jobs, scheduler.CooldownPrune(cron, env.Cooldowns, metrics))
		if cached, ok := store.(*repositories.CachedStore); ok {
			jobs = append(jobs, scheduler.CachePurge(cron, cached))
		}
	}
	if b := cfg.Scheduler.Backup; b.Cron != "" {
		storage, err := backup.NewFileStorage(b.Dir)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, scheduler.Backup(b.Cron, backup.NewService(storage, version), b.Keep, env))
	}
	for _, j := range cfg.Scheduler.Jobs {
		jobs = append(jobs, scheduler.Announcement(j, env))
	}

	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func startDashboard(cfg *config.Config, env *services.Env, client *transport.Client, reg *prometheus.Registry, log *zap.SugaredLogger) *http.Server {
	health := monitoring.NewHealthChecker()
	health.AddStoreCheck(env.Store, 2*time.Second)
	health.AddRoomCheck(func() bool {
		select {
		case <-client.LoggedIn():
			return true
		default:
			return false
		}
	})

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = reg
	}

	var auth services.AuthService
	if cfg.Dashboard.JWTSecret != "" {
		auth = services.NewAuthService(cfg.Dashboard.JWTSecret, cfg.Dashboard.TokenTTL)
	}

	handler := httphandlers.NewDashboardHandler(env, health, gatherer)
	srv := httphandlers.NewServer(cfg, httphandlers.NewRouter(cfg, handler, auth, log))

	go func() {
		log.Infow("Starting dashboard", "address", cfg.Dashboard.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Dashboard server failed", "error", err)
		}
	}()
	return srv
}
