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

package integration

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Ammar777782439/chat-api-Rell/backend/handlers"
	"github.com/Ammar777782439/chat-api-Rell/backend/middleware"
	"github.com/Ammar777782439/chat-api-Rell/backend/realtime"
	"github.com/Ammar777782439/chat-api-Rell/backend/storage"
	redisstore "github.com/Ammar777782439/chat-api-Rell/backend/storage/redis"
	"github.com/Ammar777782439/chat-api-Rell/backend/stream"
)

// ChatIntegration wires the chat socket and the message history endpoint
// so they can be mounted on an existing router.
type ChatIntegration struct {
	store          storage.Store
	registry       *realtime.Registry
	relay          *redisstore.Relay
	pool           *realtime.Pool
	streamPool     *realtime.Pool
	chatHandler    *handlers.ChatHandler
	messageHandler *handlers.MessageHandler
	ready          chan struct{}
	jwtSecret      string
	jwtIssuer      string
	log            *slog.Logger
}

// Config holds configuration for the chat integration
type Config struct {
	Store            storage.Store
	Redis            *redis.Client
	Publisher        stream.Publisher
	Topic            string
	JWTSecret        string
	JWTIssuer        string
	WorkerPoolSize   int
	StreamPoolSize   int
	OutboundBuffer   int
	MaxMessageLength int
	AllowedOrigins   []string
	Log              *slog.Logger
}

// NewChatIntegration builds the realtime layer. With a Redis client the
// broadcasts also cross process boundaries.
func NewChatIntegration(config *Config) (*ChatIntegration, error) {
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if config.Publisher == nil {
		config.Publisher = stream.NewKafkaPublisher(config.Log, stream.DefaultConfig(nil))
	}
	c := &ChatIntegration{
		store:      config.Store,
		registry:   realtime.NewRegistry(config.Log),
		pool:       realtime.NewPool(config.WorkerPoolSize),
		streamPool: realtime.NewPool(config.StreamPoolSize),
		ready:      make(chan struct{}),
		jwtSecret:  config.JWTSecret,
		jwtIssuer:  config.JWTIssuer,
		log:        config.Log,
	}
	if err := c.ValidateSetup(); err != nil {
		return nil, err
	}

	var router realtime.Router = c.registry
	if config.Redis != nil {
		c.relay = redisstore.NewRelay(config.Redis, c.registry, config.Log)
		router = c.relay
	}

	deps := realtime.Deps{
		Store:            config.Store,
		Identities:       config.Store,
		Router:           router,
		Publisher:        config.Publisher,
		Pool:             c.pool,
		StreamPool:       c.streamPool,
		Topic:            config.Topic,
		MaxContentLength: config.MaxMessageLength,
		Log:              config.Log,
	}
	c.chatHandler = handlers.NewChatHandler(deps, config.OutboundBuffer, config.AllowedOrigins)
	c.messageHandler = handlers.NewMessageHandler(config.Store, config.Log)
	return c, nil
}

// RegisterRoutes adds chat routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (c *ChatIntegration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	if authMiddleware == nil {
		authMiddleware = middleware.NewAuthMiddleware(c.jwtSecret, c.jwtIssuer)
	}

	ws := router.PathPrefix("/ws/chat").Subrouter()
	ws.Use(authMiddleware, c.registerParticipant)
	ws.HandleFunc("/{room_name}/", c.chatHandler.ServeWS).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)
	api.HandleFunc("/messages", c.messageHandler.ListMessages).Methods("GET", "OPTIONS")

	// Health check (no auth required)
	router.HandleFunc("/health", c.Health).Methods("GET")
}

// registerParticipant records the authenticated user so peers opening a
// conversation with them resolve a real receiver.
func (c *ChatIntegration) registerParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := middleware.GetUserID(r); ok {
			if err := c.store.EnsureUser(r.Context(), userID); err != nil {
				c.log.Warn("Failed to register participant", "participant", userID, "error", err)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Run keeps the cross-instance relay subscribed until ctx is done. Without
// a relay it just waits. It must be called once.
func (c *ChatIntegration) Run(ctx context.Context) error {
	if c.relay == nil {
		close(c.ready)
		<-ctx.Done()
		return nil
	}
	return c.relay.Run(ctx, c.ready)
}

// Ready is closed once Run is receiving frames from other processes.
func (c *ChatIntegration) Ready() <-chan struct{} {
	return c.ready
}

// Health reports whether the message store answers.
func (c *ChatIntegration) Health(w http.ResponseWriter, r *http.Request) {
	if err := c.store.Ping(r.Context()); err != nil {
		c.log.Warn("Health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Drain waits for store and stream calls still running on the worker pools.
func (c *ChatIntegration) Drain() {
	c.pool.Wait()
	c.streamPool.Wait()
}

// Registry exposes the local membership table.
func (c *ChatIntegration) Registry() *realtime.Registry {
	return c.registry
}

// ValidateSetup checks if the chat module is properly configured
func (c *ChatIntegration) ValidateSetup() error {
	if c.store == nil {
		return &ValidationError{Message: "message store is not configured"}
	}
	if c.jwtSecret == "" {
		return &ValidationError{Message: "JWT secret is not configured"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
