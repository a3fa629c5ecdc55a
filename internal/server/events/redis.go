package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// RedisBus publishes events through Redis pub/sub so that every server
// process sees them.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to the Redis instance at addr and verifies the
// connection with a ping.
func NewRedisBus(ctx context.Context, addr, password string, db int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{client: client}, nil
}

// Close releases the underlying client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Publish sends one JSON-encoded payload to a channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// PublishFileCreated announces the new file on both of the owner's streams.
// The main stream carries the namespaced driveFileCreated type; the drive
// stream uses the bare fileCreated, matching what each stream's consumers
// switch on.
func (b *RedisBus) PublishFileCreated(ctx context.Context, ownerID string, file models.PackedFile) error {
	if err := b.Publish(ctx, MainStreamPrefix+":"+ownerID, message{Type: "driveFileCreated", Body: file}); err != nil {
		return err
	}
	return b.Publish(ctx, DriveStreamPrefix+":"+ownerID, message{Type: "fileCreated", Body: file})
}
