package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"gorm.io/gorm"
)

type AnchorRepository struct {
	db *gorm.DB
}

func NewAnchorRepository(db *gorm.DB) *AnchorRepository {
	return &AnchorRepository{db: db}
}

func (r *AnchorRepository) GetByContentHash(ctx context.Context, contentHash string) (*domain.AnchorRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AnchorRecordModel
	if err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: anchor record %s", domain.ErrNotFound, contentHash)
		}
		return nil, err
	}
	rec := anchorRecordFromModel(model)
	return &rec, nil
}

// Create inserts a pending record, tolerating a concurrent insert of the
// same content hash: publication is idempotent, first writer wins.
func (r *AnchorRepository) Create(ctx context.Context, rec domain.AnchorRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO anchor_records
		   (content_hash, unit_internal_id, storage_cid, ledger_tx_hash,
		    status, attempts, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (content_hash) DO NOTHING`,
		rec.ContentHash, rec.UnitInternalID, rec.StorageCID, rec.LedgerTxHash,
		string(rec.Status), rec.Attempts, rec.LastError,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	).Error
}

func (r *AnchorRepository) Update(ctx context.Context, rec domain.AnchorRecord) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).Exec(
		`UPDATE anchor_records
		 SET unit_internal_id = ?, storage_cid = ?, ledger_tx_hash = ?,
		     status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE content_hash = ?`,
		rec.UnitInternalID, rec.StorageCID, rec.LedgerTxHash,
		string(rec.Status), rec.Attempts, rec.LastError, rec.UpdatedAt.UTC(),
		rec.ContentHash,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: anchor record %s", domain.ErrNotFound, rec.ContentHash)
	}
	return nil
}

func (r *AnchorRepository) ListRetryable(ctx context.Context, pendingOlderThan time.Time, limit int) ([]domain.AnchorRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 32
	}
	var models []AnchorRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ? OR (status IN (?, ?) AND updated_at < ?)",
			string(domain.AnchorStatusFailed),
			string(domain.AnchorStatusPending), string(domain.AnchorStatusStored),
			pendingOlderThan.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorRecord, 0, len(models))
	for _, model := range models {
		out = append(out, anchorRecordFromModel(model))
	}
	return out, nil
}

type AnchorAttemptRepository struct {
	db *gorm.DB
}

func NewAnchorAttemptRepository(db *gorm.DB) *AnchorAttemptRepository {
	return &AnchorAttemptRepository{db: db}
}

func (r *AnchorAttemptRepository) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := AnchorAttemptModel{
		ContentHash: attempt.ContentHash,
		Provider:    attempt.Provider,
		Status:      string(attempt.Status),
		ErrorCode:   attempt.ErrorCode,
		CreatedAt:   attempt.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorAttemptRepository) ListByContentHash(ctx context.Context, contentHash string) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AnchorAttemptModel
	if err := r.db.WithContext(ctx).
		Where("content_hash = ?", contentHash).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, domain.AnchorAttempt{
			ContentHash: model.ContentHash,
			Provider:    model.Provider,
			Status:      domain.AnchorStatus(model.Status),
			ErrorCode:   model.ErrorCode,
			CreatedAt:   model.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func anchorRecordFromModel(model AnchorRecordModel) domain.AnchorRecord {
	return domain.AnchorRecord{
		ContentHash:    model.ContentHash,
		UnitInternalID: model.UnitInternalID,
		StorageCID:     model.StorageCID,
		LedgerTxHash:   model.LedgerTxHash,
		Status:         domain.AnchorStatus(model.Status),
		Attempts:       model.Attempts,
		LastError:      model.LastError,
		CreatedAt:      model.CreatedAt.UTC(),
		UpdatedAt:      model.UpdatedAt.UTC(),
	}
}
