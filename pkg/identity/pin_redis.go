package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPinKeyPrefix = "b4ae:pin:"

// RedisPinStore is a Redis-backed pin directory for deployments where many
// nodes share one view of peer identities. Lookup misses and transport
// errors both resolve to "not pinned" so the handshake path never blocks on
// the directory.
type RedisPinStore struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// RedisPinConfig holds Redis connection settings.
type RedisPinConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// TTL expires pins; zero keeps them until overwritten
	TTL time.Duration
}

// NewRedisPinStore connects and verifies the connection.
func NewRedisPinStore(config RedisPinConfig) (*RedisPinStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("identity: failed to connect to Redis: %w", err)
	}

	return &RedisPinStore{
		client: client,
		ctx:    ctx,
		ttl:    config.TTL,
	}, nil
}

// Pin stores a peer's signature key.
func (s *RedisPinStore) Pin(peerID string, sigPublicKey []byte) error {
	value := base64.StdEncoding.EncodeToString(sigPublicKey)

	if err := s.client.Set(s.ctx, redisPinKeyPrefix+peerID, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("identity: failed to pin %q: %w", peerID, err)
	}
	return nil
}

// Lookup returns the pinned key, or nil on miss or error.
func (s *RedisPinStore) Lookup(peerID string) []byte {
	value, err := s.client.Get(s.ctx, redisPinKeyPrefix+peerID).Result()
	if err != nil {
		return nil
	}

	key, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	return key
}

// Close releases the Redis connection.
func (s *RedisPinStore) Close() error {
	return s.client.Close()
}
