// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command wagate exposes a single WhatsApp session over an HTTP API. It
// pairs via QR or phone code, persists the session credentials to a remote
// store so the login survives redeploys, and forwards inbound messages to a
// configured webhook.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aiku/wagate/pkg/gateway"
	"github.com/aiku/wagate/pkg/gateway/wameow"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := gateway.LoadConfig(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger().Level(level)
	log.Info().Str("tag", Tag).Str("commit", Commit).Str("built", BuildTime).Msg("Starting wagate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authStore, err := gateway.OpenAuthStore(cfg.StoreURI, filepath.Join(cfg.SessionDir, "wameow.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session store")
	}
	defer authStore.Close()
	authStore.Load(ctx)

	engine, err := wameow.New(authStore.LocalPath(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize protocol engine")
	}

	tracker := gateway.NewTracker()
	relay := gateway.NewRelay(cfg.WebhookURL, log)
	session := gateway.NewSession(engine, authStore, tracker, relay, log)

	// The initial connection bootstrap is the one failure that cannot be
	// recovered without operator intervention.
	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}
	defer session.Stop()

	api := gateway.NewAPI(session, tracker, log)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
}
