// Command notification-service runs the multi-channel notification
// dispatcher: the HTTP API, the event bridge and the scheduled-delivery
// sweeper in one process.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getailigned/notification-service/internal/bridge"
	"github.com/getailigned/notification-service/internal/common/config"
	"github.com/getailigned/notification-service/internal/common/database"
	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/messaging"
	"github.com/getailigned/notification-service/internal/directory"
	"github.com/getailigned/notification-service/internal/dispatch"
	"github.com/getailigned/notification-service/internal/notification"
	"github.com/getailigned/notification-service/internal/preferences"
	"github.com/getailigned/notification-service/internal/server"
	"github.com/getailigned/notification-service/internal/store"
	"github.com/getailigned/notification-service/internal/sweeper"
	"github.com/getailigned/notification-service/internal/template"
	"github.com/getailigned/notification-service/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting notification service", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		log.WithError(err).Error("postgres connection failed", nil)
		os.Exit(1)
	}
	defer pg.Close()

	rdb := database.NewRedis(cfg.Database.Redis)
	defer rdb.Close()

	bus := messaging.NewClient(cfg.RabbitMQ, log)
	if err := bus.Connect(); err != nil {
		log.WithError(err).Error("message bus connection failed", nil)
		os.Exit(1)
	}
	defer bus.Close()

	notifications := store.New(pg.DB)
	prefs := preferences.NewStore(pg.DB, rdb.Client, log)
	renderer := template.NewRenderer()
	users := directory.NewPostgresDirectory(pg.DB)
	signer := transport.NewUnsubscribeSigner(cfg.Server.UnsubscribeKey)

	email := transport.NewEmailTransport(cfg.Email, users, signer, cfg.App.BaseURL, log)
	defer email.Close()

	transports := transport.NewRegistry()
	transports.Register(notification.ChannelEmail, email)
	for _, ch := range notification.KnownChannels {
		if ch == notification.ChannelEmail {
			continue
		}
		transports.Register(ch, transport.NewStubTransport(ch))
	}

	publisher := messaging.NewPublisher(bus, log)
	engine := dispatch.NewEngine(notifications, prefs, renderer, transports, publisher, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBridge := bridge.New(bus, publisher, engine, log)
	if err := eventBridge.Start(ctx); err != nil {
		log.WithError(err).Error("event bridge startup failed", nil)
		os.Exit(1)
	}

	sweep := sweeper.New(
		notifications,
		engine,
		time.Duration(cfg.Sweeper.Interval)*time.Second,
		cfg.Sweeper.PageSize,
		cfg.Dispatch.SweepConcurrency,
		log,
	)
	sweep.Start(ctx)

	checks := map[string]server.HealthCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
		"rabbitmq": func(context.Context) error {
			if !bus.IsConnected() {
				return errors.New("message bus disconnected")
			}
			return nil
		},
		"email": func(context.Context) error {
			if !cfg.Email.Configured() {
				return errors.New("email channel not configured")
			}
			return nil
		},
	}

	httpServer := server.New(cfg, engine, notifications, prefs, signer, checks, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("http server stopped", nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed", nil)
	}
	sweep.Stop()

	log.Info("notification service stopped", nil)
}
