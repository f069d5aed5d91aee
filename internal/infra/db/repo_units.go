package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"gorm.io/gorm"
)

// maxComponentDepth bounds recursive component loading. Composite units
// nest a couple of levels in practice; a deeper chain indicates bad data.
const maxComponentDepth = 8

type UnitRepository struct {
	db      *gorm.DB
	schemas *SchemaRepository
}

func NewUnitRepository(db *gorm.DB, schemas *SchemaRepository) *UnitRepository {
	return &UnitRepository{db: db, schemas: schemas}
}

func (r *UnitRepository) GetByInternalID(ctx context.Context, internalID string) (*domain.Unit, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model UnitModel
	if err := r.db.WithContext(ctx).
		Where("internal_id = ?", internalID).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unit %s", domain.ErrNotFound, internalID)
		}
		return nil, err
	}
	return r.loadUnit(ctx, model, 0)
}

func (r *UnitRepository) loadUnit(ctx context.Context, model UnitModel, depth int) (*domain.Unit, error) {
	if depth > maxComponentDepth {
		return nil, fmt.Errorf("component nesting of unit %s exceeds depth %d", model.InternalID, maxComponentDepth)
	}
	schema, err := r.schemas.GetByID(ctx, model.SchemaID)
	if err != nil {
		return nil, fmt.Errorf("load schema of unit %s: %w", model.InternalID, err)
	}

	unit := &domain.Unit{
		UUID:             model.UUID,
		InternalID:       model.InternalID,
		SchemaID:         model.SchemaID,
		Schema:           *schema,
		Status:           domain.UnitStatus(model.Status),
		SerialNumber:     model.SerialNumber,
		FeaturedInUnitID: model.FeaturedInUnitID,
		PassportCID:      model.PassportCID,
		LedgerTxHash:     model.LedgerTxHash,
		CreatedAt:        model.CreatedAt.UTC(),
	}

	var stageModels []StageRecordModel
	if err := r.db.WithContext(ctx).
		Where("unit_uuid = ?", model.UUID).
		Order("number ASC").
		Find(&stageModels).Error; err != nil {
		return nil, err
	}
	for _, sm := range stageModels {
		rec, err := stageRecordFromModel(sm)
		if err != nil {
			return nil, err
		}
		unit.Biography = append(unit.Biography, rec)
	}

	var componentModels []UnitModel
	if err := r.db.WithContext(ctx).
		Where("featured_in_unit_id = ?", model.InternalID).
		Order("internal_id ASC").
		Find(&componentModels).Error; err != nil {
		return nil, err
	}
	for _, cm := range componentModels {
		component, err := r.loadUnit(ctx, cm, depth+1)
		if err != nil {
			return nil, err
		}
		unit.Components = append(unit.Components, component)
	}
	return unit, nil
}

func (r *UnitRepository) Create(ctx context.Context, unit *domain.Unit) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := unitToModel(unit)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, rec := range unit.Biography {
			if err := upsertStageRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *UnitRepository) Save(ctx context.Context, unit *domain.Unit) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`UPDATE units
			 SET status = ?, serial_number = ?, featured_in_unit_id = ?
			 WHERE uuid = ?`,
			string(unit.Status), unit.SerialNumber, unit.FeaturedInUnitID, unit.UUID,
		).Error; err != nil {
			return err
		}
		for _, rec := range unit.Biography {
			if err := upsertStageRecord(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *UnitRepository) ListByStatus(ctx context.Context, status domain.UnitStatus) ([]domain.UnitListEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var entries []domain.UnitListEntry
	if err := r.db.WithContext(ctx).
		Raw(`SELECT u.internal_id AS internal_id, s.unit_name AS unit_name
		     FROM units u
		     JOIN production_schemas s ON s.schema_id = u.schema_id
		     WHERE u.status = ?
		     ORDER BY u.created_at ASC`,
			string(status),
		).Scan(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *UnitRepository) SetPassportCID(ctx context.Context, internalID, cid string) error {
	return r.setField(ctx, internalID, "passport_cid", cid)
}

func (r *UnitRepository) SetLedgerTxHash(ctx context.Context, internalID, txHash string) error {
	return r.setField(ctx, internalID, "ledger_tx_hash", txHash)
}

func (r *UnitRepository) setField(ctx context.Context, internalID, column, value string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Table("units").
		Where("internal_id = ?", internalID).
		Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: unit %s", domain.ErrNotFound, internalID)
	}
	return nil
}

func unitToModel(unit *domain.Unit) UnitModel {
	return UnitModel{
		UUID:             unit.UUID,
		InternalID:       unit.InternalID,
		SchemaID:         unit.SchemaID,
		Status:           string(unit.Status),
		SerialNumber:     unit.SerialNumber,
		FeaturedInUnitID: unit.FeaturedInUnitID,
		PassportCID:      unit.PassportCID,
		LedgerTxHash:     unit.LedgerTxHash,
		CreatedAt:        unit.CreatedAt.UTC(),
	}
}

func upsertStageRecord(tx *gorm.DB, rec domain.StageRecord) error {
	var videoCIDs []byte
	if len(rec.VideoCIDs) > 0 {
		b, err := json.Marshal(rec.VideoCIDs)
		if err != nil {
			return err
		}
		videoCIDs = b
	}
	var additionalInfo []byte
	if len(rec.AdditionalInfo) > 0 {
		b, err := json.Marshal(rec.AdditionalInfo)
		if err != nil {
			return err
		}
		additionalInfo = b
	}
	return tx.Exec(
		`INSERT INTO unit_stage_records
		   (id, unit_uuid, schema_stage_id, name, number, operator_name,
		    started_at, ended_at, ended_prematurely, video_cids_json,
		    additional_info_json, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id)
		 DO UPDATE SET name = EXCLUDED.name,
		               number = EXCLUDED.number,
		               operator_name = EXCLUDED.operator_name,
		               started_at = EXCLUDED.started_at,
		               ended_at = EXCLUDED.ended_at,
		               ended_prematurely = EXCLUDED.ended_prematurely,
		               video_cids_json = EXCLUDED.video_cids_json,
		               additional_info_json = EXCLUDED.additional_info_json,
		               completed = EXCLUDED.completed`,
		rec.ID, rec.UnitUUID, rec.SchemaStageID, rec.Name, rec.Number, rec.OperatorName,
		rec.StartedAt, rec.EndedAt, rec.EndedPrematurely, videoCIDs,
		additionalInfo, rec.Completed, rec.CreatedAt.UTC(),
	).Error
}

func stageRecordFromModel(model StageRecordModel) (domain.StageRecord, error) {
	rec := domain.StageRecord{
		ID:               model.ID,
		UnitUUID:         model.UnitUUID,
		SchemaStageID:    model.SchemaStageID,
		Name:             model.Name,
		Number:           model.Number,
		OperatorName:     model.OperatorName,
		StartedAt:        model.StartedAt,
		EndedAt:          model.EndedAt,
		EndedPrematurely: model.EndedPrematurely,
		Completed:        model.Completed,
		CreatedAt:        model.CreatedAt.UTC(),
	}
	if len(model.VideoCIDsJSON) > 0 {
		if err := json.Unmarshal(model.VideoCIDsJSON, &rec.VideoCIDs); err != nil {
			return domain.StageRecord{}, fmt.Errorf("decode video cids of stage %s: %w", model.ID, err)
		}
	}
	if len(model.AdditionalInfoJSON) > 0 {
		if err := json.Unmarshal(model.AdditionalInfoJSON, &rec.AdditionalInfo); err != nil {
			return domain.StageRecord{}, fmt.Errorf("decode additional info of stage %s: %w", model.ID, err)
		}
	}
	return rec, nil
}
