// Package anchor drives publication of assembled passports to
// content-addressed storage and an external ledger, with retry-safe,
// idempotent, order-preserving semantics per passport.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/usecase"
)

// Storage is the content-addressed storage collaborator. Identical content
// must map to the same address.
type Storage interface {
	Put(ctx context.Context, content []byte) (PutResult, error)
}

type PutResult struct {
	CID       string
	SHA256Hex string
	URL       string
}

// Ledger records a storage address on an external ledger and returns the
// transaction reference.
type Ledger interface {
	Submit(ctx context.Context, address string, meta map[string]string) (string, error)
}

const (
	providerStorage = "ipfs_gateway"
	providerLedger  = "datalog"
)

type Config struct {
	StorageEnabled bool
	LedgerEnabled  bool
	MaxAttempts    int
	RetryBase      time.Duration
	SweepInterval  time.Duration
	QueueSize      int
	PrintQR        bool
}

type Pipeline struct {
	Units    usecase.UnitRepository
	Anchors  domain.AnchorRepository
	Attempts domain.AnchorAttemptRepository
	Storage  Storage
	Ledger   Ledger
	Printer  usecase.LabelPrinter
	Audit    *usecase.AuditEmitter
	Metrics  usecase.Metrics
	Clock    usecase.Clock

	cfg   Config
	queue chan string

	mu       sync.Mutex
	inflight map[string]*sync.Mutex // content hash -> publish lock
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Pipeline{
		cfg:   cfg,
		queue: make(chan string, cfg.QueueSize),
	}
}

func (p *Pipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// Enqueue hands a completed unit to the background worker. Never blocks the
// stage-session caller: a full queue is recovered by the sweep.
func (p *Pipeline) Enqueue(unitInternalID string) {
	select {
	case p.queue <- unitInternalID:
	default:
		log.Printf("anchor queue full, unit %s deferred to sweep", unitInternalID)
	}
}

// Run consumes completed-unit events and periodically re-drives failed and
// stalled records until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case unitID := <-p.queue:
			if err := p.PublishUnit(ctx, unitID); err != nil {
				log.Printf("publish passport for unit %s: %v", unitID, err)
			}
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// PublishUnit re-assembles the passport (deterministic, so a crash between
// assembly and anchoring cannot fork the artifact) and drives publication.
func (p *Pipeline) PublishUnit(ctx context.Context, unitInternalID string) error {
	unit, err := p.Units.GetByInternalID(ctx, unitInternalID)
	if err != nil {
		return err
	}
	passport, err := usecase.AssemblePassport(unit)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, passport)
	return err
}

// Publish is idempotent on content hash: a passport already anchored is
// returned unchanged, concurrent calls for the same content cannot
// double-post to storage or ledger.
func (p *Pipeline) Publish(ctx context.Context, passport domain.Passport) (domain.AnchorRecord, error) {
	// Racing callers (worker, sweep, manual retry) serialize per content
	// hash; the loser wakes up to the winner's final status.
	lock := p.publishLock(passport.ContentHash)
	lock.Lock()
	defer lock.Unlock()

	rec, err := p.Anchors.GetByContentHash(ctx, passport.ContentHash)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.AnchorRecord{}, fmt.Errorf("load anchor record: %w", err)
	}
	if rec == nil {
		fresh := domain.AnchorRecord{
			ContentHash:    passport.ContentHash,
			UnitInternalID: passport.UnitInternalID,
			Status:         domain.AnchorStatusPending,
			CreatedAt:      p.now().UTC(),
			UpdatedAt:      p.now().UTC(),
		}
		if err := p.Anchors.Create(ctx, fresh); err != nil {
			return domain.AnchorRecord{}, fmt.Errorf("create anchor record: %w", err)
		}
		rec = &fresh
	}
	if rec.Status == domain.AnchorStatusAnchored {
		p.forgetPublishLock(passport.ContentHash)
		return *rec, nil
	}
	if rec.Status == domain.AnchorStatusFailed {
		rec.Status = domain.AnchorStatusPending
	}
	out, err := p.drive(ctx, *rec, passport)
	if err == nil && out.Status == domain.AnchorStatusAnchored {
		p.forgetPublishLock(passport.ContentHash)
	}
	return out, err
}

func (p *Pipeline) publishLock(contentHash string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight == nil {
		p.inflight = make(map[string]*sync.Mutex)
	}
	lock, ok := p.inflight[contentHash]
	if !ok {
		lock = &sync.Mutex{}
		p.inflight[contentHash] = lock
	}
	return lock
}

func (p *Pipeline) forgetPublishLock(contentHash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, contentHash)
}

func (p *Pipeline) drive(ctx context.Context, rec domain.AnchorRecord, passport domain.Passport) (domain.AnchorRecord, error) {
	if rec.Status == domain.AnchorStatusPending {
		next, err := p.store(ctx, rec, passport)
		if err != nil {
			return next, err
		}
		rec = next
	}
	if rec.Status == domain.AnchorStatusStored {
		next, err := p.anchor(ctx, rec, passport)
		if err != nil {
			return next, err
		}
		rec = next
	}
	return rec, nil
}

func (p *Pipeline) store(ctx context.Context, rec domain.AnchorRecord, passport domain.Passport) (domain.AnchorRecord, error) {
	if !p.cfg.StorageEnabled {
		p.appendAttempt(ctx, rec.ContentHash, providerStorage, domain.AnchorStatusStored, "disabled")
		rec.Status = domain.AnchorStatusStored
		return rec, p.update(ctx, &rec)
	}

	var result PutResult
	err := p.withRetry(ctx, func(attempt int) error {
		res, putErr := p.Storage.Put(ctx, passport.Document)
		if putErr != nil {
			rec.Attempts++
			rec.LastError = putErr.Error()
			p.appendAttempt(ctx, rec.ContentHash, providerStorage, domain.AnchorStatusPending, domain.AnchorErrorUnavailable)
			return putErr
		}
		result = res
		return nil
	})
	if err != nil {
		rec.Status = domain.AnchorStatusFailed
		if updErr := p.update(ctx, &rec); updErr != nil {
			log.Printf("mark anchor %s failed: %v", rec.ContentHash, updErr)
		}
		p.observeError("storage_unavailable")
		return rec, fmt.Errorf("store passport %s: %w", rec.ContentHash, err)
	}
	if result.SHA256Hex != "" && result.SHA256Hex != passport.ContentHash {
		// The gateway acknowledged different bytes than we sent. Loud,
		// fatal for this attempt; the record stays pending for the sweep.
		rec.Attempts++
		rec.LastError = domain.AnchorErrorIntegrity
		p.appendAttempt(ctx, rec.ContentHash, providerStorage, domain.AnchorStatusPending, domain.AnchorErrorIntegrity)
		if updErr := p.update(ctx, &rec); updErr != nil {
			log.Printf("persist anchor %s integrity failure: %v", rec.ContentHash, updErr)
		}
		p.observeError("storage_integrity")
		return rec, fmt.Errorf("%w: passport %s, gateway reported %s",
			domain.ErrStorageIntegrity, passport.ContentHash, result.SHA256Hex)
	}

	rec.StorageCID = result.CID
	rec.Status = domain.AnchorStatusStored
	rec.LastError = ""
	p.appendAttempt(ctx, rec.ContentHash, providerStorage, domain.AnchorStatusStored, "")
	if err := p.update(ctx, &rec); err != nil {
		return rec, err
	}
	if err := p.Units.SetPassportCID(ctx, rec.UnitInternalID, result.CID); err != nil {
		log.Printf("record passport cid on unit %s: %v", rec.UnitInternalID, err)
	}
	if p.cfg.PrintQR && p.Printer != nil && result.URL != "" {
		if err := p.Printer.PrintQR(ctx, result.URL, rec.UnitInternalID); err != nil {
			log.Printf("passport QR print for unit %s failed: %v", rec.UnitInternalID, err)
		}
	}
	return rec, nil
}

func (p *Pipeline) anchor(ctx context.Context, rec domain.AnchorRecord, passport domain.Passport) (domain.AnchorRecord, error) {
	if !p.cfg.LedgerEnabled {
		p.appendAttempt(ctx, rec.ContentHash, providerLedger, domain.AnchorStatusAnchored, "disabled")
		rec.Status = domain.AnchorStatusAnchored
		if err := p.update(ctx, &rec); err != nil {
			return rec, err
		}
		p.finish(ctx, rec)
		return rec, nil
	}

	address := rec.StorageCID
	if address == "" {
		address = rec.ContentHash
	}
	var txHash string
	err := p.withRetry(ctx, func(attempt int) error {
		tx, subErr := p.Ledger.Submit(ctx, address, map[string]string{
			"unit_internal_id": rec.UnitInternalID,
			"content_hash":     rec.ContentHash,
		})
		if subErr != nil {
			rec.Attempts++
			rec.LastError = subErr.Error()
			p.appendAttempt(ctx, rec.ContentHash, providerLedger, domain.AnchorStatusStored, domain.AnchorErrorUnavailable)
			return subErr
		}
		txHash = tx
		return nil
	})
	if err != nil {
		rec.Status = domain.AnchorStatusFailed
		if updErr := p.update(ctx, &rec); updErr != nil {
			log.Printf("mark anchor %s failed: %v", rec.ContentHash, updErr)
		}
		p.observeError("ledger_unavailable")
		p.Audit.PassportAnchored(ctx, rec.UnitInternalID, rec.ContentHash, "", domain.AuditResultFailure, domain.AnchorErrorUnavailable)
		return rec, fmt.Errorf("anchor passport %s: %w", rec.ContentHash, err)
	}

	rec.LedgerTxHash = txHash
	rec.Status = domain.AnchorStatusAnchored
	rec.LastError = ""
	p.appendAttempt(ctx, rec.ContentHash, providerLedger, domain.AnchorStatusAnchored, "")
	if err := p.update(ctx, &rec); err != nil {
		return rec, err
	}
	if err := p.Units.SetLedgerTxHash(ctx, rec.UnitInternalID, txHash); err != nil {
		log.Printf("record ledger tx on unit %s: %v", rec.UnitInternalID, err)
	}
	p.finish(ctx, rec)
	return rec, nil
}

func (p *Pipeline) finish(ctx context.Context, rec domain.AnchorRecord) {
	if p.Metrics != nil {
		p.Metrics.PassportAnchored()
	}
	p.Audit.PassportAnchored(ctx, rec.UnitInternalID, rec.ContentHash, rec.LedgerTxHash, domain.AuditResultSuccess, "")
}

// Sweep re-drives failed records and pending records that stalled longer
// than one sweep interval, so no completed unit is ever silently dropped.
func (p *Pipeline) Sweep(ctx context.Context) {
	records, err := p.Anchors.ListRetryable(ctx, p.now().Add(-p.cfg.SweepInterval), 32)
	if err != nil {
		log.Printf("anchor sweep: %v", err)
		return
	}
	for _, rec := range records {
		if err := p.PublishUnit(ctx, rec.UnitInternalID); err != nil {
			log.Printf("anchor sweep: re-drive unit %s: %v", rec.UnitInternalID, err)
		}
	}
}

// withRetry runs fn up to the configured attempt budget with exponential
// backoff, honoring ctx between attempts.
func (p *Pipeline) withRetry(ctx context.Context, fn func(attempt int) error) error {
	var err error
	delay := p.cfg.RetryBase
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (p *Pipeline) appendAttempt(ctx context.Context, contentHash, provider string, status domain.AnchorStatus, errorCode string) {
	if p.Attempts == nil {
		return
	}
	attempt := domain.AnchorAttempt{
		ContentHash: contentHash,
		Provider:    provider,
		Status:      status,
		ErrorCode:   errorCode,
		CreatedAt:   p.now().UTC(),
	}
	if err := p.Attempts.Append(ctx, attempt); err != nil {
		log.Printf("append anchor attempt for %s: %v", contentHash, err)
	}
}

func (p *Pipeline) update(ctx context.Context, rec *domain.AnchorRecord) error {
	rec.UpdatedAt = p.now().UTC()
	if err := p.Anchors.Update(ctx, *rec); err != nil {
		return fmt.Errorf("update anchor record %s: %w", rec.ContentHash, err)
	}
	return nil
}

func (p *Pipeline) observeError(kind string) {
	if p.Metrics != nil {
		p.Metrics.ErrorObserved(kind)
	}
}
