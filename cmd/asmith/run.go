package main

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/asmith/internal/bot"
	"github.com/kazz187/asmith/internal/command"
	"github.com/kazz187/asmith/internal/config"
	"github.com/kazz187/asmith/internal/eventbus"
	"github.com/kazz187/asmith/internal/failure"
	"github.com/kazz187/asmith/internal/matrix"
	"github.com/kazz187/asmith/internal/metrics"
	"github.com/kazz187/asmith/internal/relay"
	sessionrepo "github.com/kazz187/asmith/internal/session/repositoryimpl"
	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/internal/statusserver"
)

const relayBuffer = 256

func runBot(ctx context.Context, env *config.Env) error {
	if err := env.ValidateMatrix(); err != nil {
		return err
	}

	st, closeStorage, err := openStorage(ctx, env)
	if err != nil {
		return err
	}
	defer closeStorage()

	monitor := failure.NewMonitor(env.MaxRetries)
	store := snapshot.NewStore(st)
	bus := eventbus.New()

	m := metrics.New()
	if err := m.Register(metrics.NewStateCollector(store, monitor)); err != nil {
		return err
	}

	router := command.NewRouter(store, command.WithEventBus(bus), command.WithMetrics(m))
	client, err := matrix.NewClient(matrix.Config{
		Homeserver:  env.Homeserver,
		UserID:      env.UserID,
		Password:    env.Credentials.Password,
		AccessToken: env.Credentials.AccessToken,
		DeviceName:  env.DeviceName,
		SyncTimeout: env.SyncTimeout,
	}, sessionrepo.NewYAMLRepository(st))
	if err != nil {
		return err
	}

	slog.Info("starting asmith",
		"version", version,
		"homeserver", env.Homeserver,
		"storage", env.StorageEnv.Type,
		"session_id", store.SessionID(),
		"max_retries", env.MaxRetries,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg := conc.NewWaitGroup()

	if env.AMQPURL != "" {
		r, err := relay.Dial(relay.Config{URL: env.AMQPURL, Exchange: env.Exchange})
		if err != nil {
			slog.Warn("event relay disabled", "error", err)
		} else {
			id, events := bus.Subscribe(relayBuffer)
			wg.Go(func() {
				defer r.Close()
				if err := r.Run(ctx, events); err != nil {
					slog.Warn("event relay stopped", "error", err)
				}
			})
			defer bus.Unsubscribe(id)
		}
	}

	if env.StatusAddr != "" {
		srv := statusserver.NewServer(env.StatusAddr, env.AllowedOrigins, store, monitor, m)
		wg.Go(func() {
			if err := srv.Run(ctx); err != nil {
				slog.Error("status server error", "error", err)
			}
		})
	}

	b := bot.New(client, router, store, monitor,
		bot.WithEventBus(bus),
		bot.WithMetrics(m),
		bot.WithRetryDelay(env.RetryDelay),
	)
	err = b.Run(ctx)
	cancel()
	wg.Wait()
	slog.Info("asmith stopped")
	return err
}
