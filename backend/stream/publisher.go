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

//go:generate go run go.uber.org/mock/mockgen -source=publisher.go -destination=../mocks/mock_publisher.go -package=mocks

// Package stream mirrors accepted message mutations onto a Kafka topic for
// downstream consumers (analytics, audit, search indexing).
//
// The publisher is built once per process. If the producer cannot be set up
// it stays in degraded mode for the life of the process: every Publish is a
// logged no-op that reports ErrDegraded, and chat delivery carries on.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/Ammar777782439/chat-api-Rell/backend/models"
)

// DefaultTopic receives every message mutation.
const DefaultTopic = "chat_messages"

var (
	ErrDegraded = errors.New("stream producer not initialized")
	ErrTimeout  = errors.New("stream publish exceeded max block time")
)

type Publisher interface {
	Publish(ctx context.Context, topic string, evt models.StreamEvent) error
}

type Config struct {
	Brokers        []string
	ClientID       string
	Retries        int
	RequestTimeout time.Duration
	MaxBlock       time.Duration
}

func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:        brokers,
		ClientID:       "chat-api",
		Retries:        5,
		RequestTimeout: 30 * time.Second,
		MaxBlock:       60 * time.Second,
	}
}

// SaramaConfig maps Config onto a producer that waits for the full in-sync
// replica set and retries transient send failures.
func SaramaConfig(cfg Config) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = cfg.ClientID
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = cfg.Retries
	c.Producer.Timeout = cfg.RequestTimeout
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	// Records are keyed by channel key: one conversation, one partition.
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Net.DialTimeout = cfg.RequestTimeout
	c.Net.ReadTimeout = cfg.RequestTimeout
	c.Net.WriteTimeout = cfg.RequestTimeout
	return c
}

// ProducerFactory opens the underlying producer. sarama.NewSyncProducer in production.
type ProducerFactory func(addrs []string, config *sarama.Config) (sarama.SyncProducer, error)

var _ Publisher = (*KafkaPublisher)(nil)

type KafkaPublisher struct {
	producer sarama.SyncProducer
	maxBlock time.Duration
	log      *slog.Logger
}

func NewKafkaPublisher(log *slog.Logger, cfg Config) *KafkaPublisher {
	return NewKafkaPublisherWithFactory(log, cfg, sarama.NewSyncProducer)
}

// NewKafkaPublisherWithFactory tries to open the producer exactly once.
// It never fails: on error the returned publisher is degraded.
func NewKafkaPublisherWithFactory(log *slog.Logger, cfg Config, factory ProducerFactory) *KafkaPublisher {
	p := &KafkaPublisher{maxBlock: cfg.MaxBlock, log: log}
	if p.maxBlock <= 0 {
		p.maxBlock = DefaultConfig(nil).MaxBlock
	}

	if len(cfg.Brokers) == 0 {
		log.Error("Failed to initialize stream producer: no brokers configured")
		return p
	}

	producer, err := factory(cfg.Brokers, SaramaConfig(cfg))
	if err != nil {
		log.Error("Failed to initialize stream producer", "brokers", cfg.Brokers, "error", err)
		return p
	}

	log.Info("Stream producer initialized", "brokers", cfg.Brokers)
	p.producer = producer
	return p
}

// Degraded reports whether every Publish is a no-op.
func (p *KafkaPublisher) Degraded() bool {
	return p.producer == nil
}

// Publish sends evt and waits for the broker acknowledgement, so a nil
// return means the record was written, not merely buffered. The wait is
// bounded by the configured max block time.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, evt models.StreamEvent) error {
	if p.producer == nil {
		p.log.Error("Cannot publish: stream producer not initialized",
			"topic", topic,
			"action", evt.Action,
			"sender", evt.Sender)
		return ErrDegraded
	}

	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if evt.ChannelKey != "" {
		msg.Key = sarama.StringEncoder(evt.ChannelKey)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(msg)
		done <- err
	}()

	timer := time.NewTimer(p.maxBlock)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.log.Error("Failed to publish stream event",
				"topic", topic,
				"action", evt.Action,
				"sender", evt.Sender,
				"message_id", messageID(evt),
				"error", err)
			return fmt.Errorf("failed to publish to %q: %w", topic, err)
		}
		p.log.Info("Stream event published",
			"topic", topic,
			"action", evt.Action,
			"sender", evt.Sender,
			"message_id", messageID(evt))
		return nil
	case <-timer.C:
		p.log.Error("Stream publish timed out",
			"topic", topic,
			"action", evt.Action,
			"max_block", p.maxBlock)
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func messageID(evt models.StreamEvent) any {
	if evt.MessageID == nil {
		return nil
	}
	return *evt.MessageID
}
