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

// Package config reads the server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        int    `env:"PORT,default=8081" validate:"min=1,max=65535"`
	DatabaseURL string `env:"DATABASE_URL,default=postgres://localhost/chat?sslmode=disable"`
	StoreDriver string `env:"STORE_DRIVER,default=postgres" validate:"oneof=postgres memory"`
	RedisURL    string `env:"REDIS_URL"`

	KafkaBrokers        string        `env:"KAFKA_BROKERS"`
	KafkaTopic          string        `env:"KAFKA_TOPIC,default=chat_messages" validate:"required"`
	KafkaRetries        int           `env:"KAFKA_RETRIES,default=5" validate:"min=0"`
	KafkaRequestTimeout time.Duration `env:"KAFKA_REQUEST_TIMEOUT,default=30s" validate:"gt=0"`
	KafkaMaxBlock       time.Duration `env:"KAFKA_MAX_BLOCK,default=60s" validate:"gt=0"`

	JWTSecret string `env:"JWT_SECRET" validate:"required"`
	JWTIssuer string `env:"JWT_ISSUER"`

	LogLevel         string `env:"LOG_LEVEL,default=INFO"`
	WorkerPoolSize   int    `env:"WORKER_POOL_SIZE,default=16" validate:"min=1"`
	StreamPoolSize   int    `env:"STREAM_POOL_SIZE,default=8" validate:"min=1"`
	OutboundBuffer   int    `env:"OUTBOUND_BUFFER,default=64" validate:"min=1"`
	MaxMessageLength int    `env:"MAX_MESSAGE_LENGTH,default=4096" validate:"min=1"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return Parse(es)
}

// Parse builds a validated Config from es.
func Parse(es env.EnvSet) (Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Brokers is KAFKA_BROKERS split on commas. Empty means no stream.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	parts := lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Compact(parts)
}
