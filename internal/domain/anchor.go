package domain

import (
	"context"
	"time"
)

type AnchorStatus string

const (
	AnchorStatusPending  AnchorStatus = "pending"
	AnchorStatusStored   AnchorStatus = "stored"
	AnchorStatusAnchored AnchorStatus = "anchored"
	AnchorStatusFailed   AnchorStatus = "failed"
)

const (
	AnchorErrorTimeout       = "timeout"
	AnchorErrorUnavailable   = "unavailable"
	AnchorErrorIntegrity     = "integrity_mismatch"
	AnchorErrorProviderError = "provider_error"
	AnchorErrorPersistence   = "persistence_error"
)

// AnchorRecord maps a passport content hash to its storage address and
// ledger transaction. Transitions are monotonic: pending -> stored ->
// anchored, with failed reachable after retry exhaustion and re-driven back
// to pending by the sweep.
type AnchorRecord struct {
	ContentHash    string
	UnitInternalID string
	StorageCID     string
	LedgerTxHash   string
	Status         AnchorStatus
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AnchorAttempt is the append-only log of individual publication tries, kept
// for operator attention and postmortems.
type AnchorAttempt struct {
	ContentHash string
	Provider    string
	Status      AnchorStatus
	ErrorCode   string
	CreatedAt   time.Time
}

type AnchorRepository interface {
	GetByContentHash(ctx context.Context, contentHash string) (*AnchorRecord, error)
	Create(ctx context.Context, rec AnchorRecord) error
	Update(ctx context.Context, rec AnchorRecord) error
	ListRetryable(ctx context.Context, pendingOlderThan time.Time, limit int) ([]AnchorRecord, error)
}

type AnchorAttemptRepository interface {
	Append(ctx context.Context, attempt AnchorAttempt) error
	ListByContentHash(ctx context.Context, contentHash string) ([]AnchorAttempt, error)
}
