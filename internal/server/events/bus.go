// Package events fans drive notifications out to stream consumers.
package events

import (
	"context"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// Channel name prefixes. Each owner has a personal main stream and a drive
// stream; consumers subscribe to "{prefix}:{ownerID}".
const (
	MainStreamPrefix  = "mainstream"
	DriveStreamPrefix = "drivestream"
)

// Bus publishes drive events. Implementations must be safe for concurrent
// use.
type Bus interface {
	// Publish sends an arbitrary typed event to one channel.
	Publish(ctx context.Context, channel string, payload any) error

	// PublishFileCreated announces a newly ingested file on the owner's
	// main and drive streams.
	PublishFileCreated(ctx context.Context, ownerID string, file models.PackedFile) error
}

// message is the wire shape of one stream event.
type message struct {
	Type string `json:"type"`
	Body any    `json:"body"`
}
