// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command webapp is a confidential client web app which signs users in with
// the Microsoft identity platform.  Configuration is read from the
// environment; see config.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/oidc/flow"
	"github.com/hashicorp/cap-webflow/session"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := envConfig(os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "webapp",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
	})

	a, cleanup, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "authority", cfg.Authority)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

// newApp wires the provider, session store and flow.  The returned func
// releases the provider and the redis client.
func newApp(cfg *config, logger hclog.Logger, opt ...oidc.Option) (*app, func(), error) {
	const op = "newApp"
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store session.Store
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: invalid redis url: %w", op, err)
		}
		client := redis.NewClient(redisOpts)
		cleanups = append(cleanups, func() { _ = client.Close() })
		rs, err := session.NewRedisStore(client, session.WithLogger(logger.Named("session")))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
		store = rs
	} else {
		logger.Warn("REDIS_URL is not set, sessions are kept in memory")
		store = session.NewMemoryStore()
	}

	sessionOpts := []session.Option{session.WithTTL(cfg.SessionTTL), session.WithLogger(logger.Named("session"))}
	if cfg.Dev {
		sessionOpts = append(sessionOpts, session.WithInsecureCookies())
	}
	sessions, err := session.NewManager(store, sessionOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	configOpts := append([]oidc.Option{oidc.WithPostLogoutRedirectURL(cfg.PostLogoutRedirectURI)}, opt...)
	pc, err := oidc.NewConfig(cfg.Authority, cfg.ClientID, oidc.ClientSecret(cfg.ClientSecret), cfg.RedirectURI, configOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	provider, err := oidc.NewProvider(pc, oidc.WithLogger(logger.Named("oidc")))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	cleanups = append(cleanups, provider.Done)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f, err := flow.New(provider, sessions,
		flow.WithLogger(logger.Named("flow")),
		flow.WithMetrics(flow.NewMetrics(registry)),
		flow.WithRedirectURI(cfg.RedirectURI),
	)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		sessions: sessions,
		flow:     f,
		registry: registry,
	}, cleanup, nil
}
