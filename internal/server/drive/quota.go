package drive

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/drivestore/internal/server/models"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/files"
)

// Admission is the quota decision for an incoming object.
type Admission int

const (
	// Admit lets the ingestion proceed.
	Admit Admission = iota
	// RejectHard fails the ingestion with a capacity error. Applied to
	// local owners only.
	RejectHard
	// AdmitWithEviction lets the ingestion proceed but asks for one
	// eviction of the owner's oldest non-essential file. Applied to
	// remote owners, whose storage is a cache rather than primary data.
	AdmitWithEviction
)

// QuotaLedger computes per-owner storage usage and admission decisions.
// Usage is always recomputed from the metadata store, never cached, so a
// concurrent deletion is picked up on the next check.
type QuotaLedger struct {
	files          files.Repository
	localCapacity  int64
	remoteCapacity int64
}

// NewQuotaLedger builds a ledger with capacities given in megabytes.
func NewQuotaLedger(repo files.Repository, localMB, remoteMB int64) *QuotaLedger {
	return &QuotaLedger{
		files:          repo,
		localCapacity:  localMB * 1024 * 1024,
		remoteCapacity: remoteMB * 1024 * 1024,
	}
}

// Usage returns the summed size of the owner's live materialized records.
func (q *QuotaLedger) Usage(ctx context.Context, ownerID string) (int64, error) {
	usage, err := q.files.AggregateUsage(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("aggregating usage: %w", err)
	}
	return usage, nil
}

// Admit decides whether the owner may store incoming additional bytes.
func (q *QuotaLedger) Admit(ctx context.Context, owner models.Owner, incoming int64) (Admission, error) {
	usage, err := q.Usage(ctx, owner.ID)
	if err != nil {
		return RejectHard, err
	}

	capacity := q.remoteCapacity
	if owner.IsLocal() {
		capacity = q.localCapacity
	}

	if usage+incoming <= capacity {
		return Admit, nil
	}
	if owner.IsLocal() {
		return RejectHard, nil
	}
	return AdmitWithEviction, nil
}
