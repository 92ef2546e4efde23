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

package config

import (
	"testing"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Parse(env.EnvSet{"JWT_SECRET": "s3cret"})

	req.NoError(err)
	req.Equal(8081, cfg.Port)
	req.Equal(":8081", cfg.Addr())
	req.Equal(StoreDriverPostgres, cfg.StoreDriver)
	req.Equal("chat_messages", cfg.KafkaTopic)
	req.Equal(5, cfg.KafkaRetries)
	req.Equal(30*time.Second, cfg.KafkaRequestTimeout)
	req.Equal(60*time.Second, cfg.KafkaMaxBlock)
	req.Equal(16, cfg.WorkerPoolSize)
	req.Equal(8, cfg.StreamPoolSize)
	req.Empty(cfg.JWTIssuer)
	req.Empty(cfg.Brokers())
	req.Equal([]string{"http://localhost:3000"}, cfg.Origins())
}

func TestParse_Overrides(t *testing.T) {
	req := require.New(t)

	cfg, err := Parse(env.EnvSet{
		"JWT_SECRET":      "s3cret",
		"STORE_DRIVER":    "memory",
		"KAFKA_BROKERS":   "kafka-1:9092, kafka-2:9092,,",
		"KAFKA_MAX_BLOCK": "5s",
		"PORT":            "9000",
	})

	req.NoError(err)
	req.Equal(StoreDriverMemory, cfg.StoreDriver)
	req.Equal([]string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers())
	req.Equal(5*time.Second, cfg.KafkaMaxBlock)
	req.Equal(9000, cfg.Port)
}

func TestParse_Rejects_Invalid(t *testing.T) {
	req := require.New(t)

	_, err := Parse(env.EnvSet{})
	req.Error(err)

	_, err = Parse(env.EnvSet{"JWT_SECRET": "s3cret", "STORE_DRIVER": "mysql"})
	req.Error(err)

	_, err = Parse(env.EnvSet{"JWT_SECRET": "s3cret", "WORKER_POOL_SIZE": "0"})
	req.Error(err)

	_, err = Parse(env.EnvSet{"JWT_SECRET": "s3cret", "STREAM_POOL_SIZE": "0"})
	req.Error(err)
}
