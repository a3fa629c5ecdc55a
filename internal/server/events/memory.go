package events

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// MemoryBus collects published events in memory. It backs tests and
// single-process runs without Redis.
type MemoryBus struct {
	mu     sync.Mutex
	events []CreatedEvent
}

// CreatedEvent is one recorded fileCreated publication.
type CreatedEvent struct {
	OwnerID string
	File    models.PackedFile
}

// NewMemoryBus constructs an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish is a no-op beyond interface conformance; the in-memory bus keeps
// only the typed events tests care about.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload any) error {
	return nil
}

// PublishFileCreated records the event.
func (b *MemoryBus) PublishFileCreated(ctx context.Context, ownerID string, file models.PackedFile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, CreatedEvent{OwnerID: ownerID, File: file})
	return nil
}

// Created returns a copy of the recorded events.
func (b *MemoryBus) Created() []CreatedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]CreatedEvent, len(b.events))
	copy(out, b.events)
	return out
}
