// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Ammar777782439/chat-api-Rell/backend/config"
	"github.com/Ammar777782439/chat-api-Rell/backend/integration"
	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage/memory"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage/postgres"
	"github.com/Ammar777782439/chat-api-Rell/backend/stream"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	shutdownTimeout = 15 * time.Second
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			// plain host:port, as the old deployment used
			opts = &redis.Options{Addr: cfg.RedisURL}
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return exitRuntime, fmt.Errorf("redis unavailable: %w", err)
		}
	}

	streamCfg := stream.DefaultConfig(cfg.Brokers())
	streamCfg.Retries = cfg.KafkaRetries
	streamCfg.RequestTimeout = cfg.KafkaRequestTimeout
	streamCfg.MaxBlock = cfg.KafkaMaxBlock
	publisher := stream.NewKafkaPublisher(logger, streamCfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close stream producer", "error", err)
		}
	}()

	chat, err := integration.NewChatIntegration(&integration.Config{
		Store:            store,
		Redis:            rdb,
		Publisher:        publisher,
		Topic:            cfg.KafkaTopic,
		JWTSecret:        cfg.JWTSecret,
		JWTIssuer:        cfg.JWTIssuer,
		WorkerPoolSize:   cfg.WorkerPoolSize,
		StreamPoolSize:   cfg.StreamPoolSize,
		OutboundBuffer:   cfg.OutboundBuffer,
		MaxMessageLength: cfg.MaxMessageLength,
		AllowedOrigins:   cfg.Origins(),
		Log:              logger,
	})
	if err != nil {
		return exitConfig, err
	}

	router := mux.NewRouter()
	router.Use(middleware.NewCORS(cfg.Origins()))
	chat.RegisterRoutes(router, nil)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chat.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Chat server starting",
			"addr", server.Addr,
			"store", cfg.StoreDriver,
			"relay", rdb != nil,
			"stream_degraded", publisher.Degraded())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	chat.Drain()
	if err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using in-memory message store, messages will not survive a restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, func() { _ = db.Close() }, nil
}
