package usecase

import (
	"fmt"
	"time"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"
	"github.com/Testiot539/feec-workbench-daemon/internal/infra/canonical"
)

const passportVersion = "unit_passport_v1"

// AssemblePassport builds the immutable passport document for a completed
// unit: schema snapshot, full ordered stage history and recursive component
// passports, canonically serialized and content hashed. It is a pure
// function of the frozen unit state, so re-assembly after a crash
// reproduces the identical artifact.
func AssemblePassport(unit *domain.Unit) (domain.Passport, error) {
	if unit.Status != domain.UnitStatusBuilt && unit.Status != domain.UnitStatusFinalized {
		return domain.Passport{}, fmt.Errorf("%w: unit %s has status %s", domain.ErrIncompleteUnit, unit.InternalID, unit.Status)
	}
	doc := passportDocument(unit)
	hash, body, err := canonical.SHA256Hex(doc)
	if err != nil {
		return domain.Passport{}, fmt.Errorf("serialize passport: %w", err)
	}
	var assembledAt time.Time
	if last := lastStageEnd(unit); last != nil {
		assembledAt = *last
	}
	return domain.Passport{
		UnitUUID:       unit.UUID,
		UnitInternalID: unit.InternalID,
		ContentHash:    hash,
		Document:       body,
		AssembledAt:    assembledAt,
	}, nil
}

func passportDocument(unit *domain.Unit) map[string]any {
	doc := map[string]any{
		"version":    passportVersion,
		"unit_id":    unit.UUID,
		"model_name": unit.Schema.UnitName,
		"schema": map[string]any{
			"schema_id":        unit.Schema.SchemaID,
			"schema_type":      string(unit.Schema.Type),
			"parent_schema_id": unit.Schema.ParentSchemaID,
		},
	}
	if unit.SerialNumber != "" {
		doc["serial_number"] = unit.SerialNumber
	}
	if end := lastStageEnd(unit); end != nil {
		doc["assembly_seconds"] = int64(unit.TotalAssemblyTime(*end) / time.Second)
	}
	if len(unit.Biography) > 0 {
		stages := make([]any, 0, len(unit.Biography))
		for _, rec := range unit.Biography {
			stages = append(stages, stageDocument(rec))
		}
		doc["production_stages"] = stages
	}
	if len(unit.Components) > 0 {
		components := make([]any, 0, len(unit.Components))
		for _, c := range unit.Components {
			components = append(components, passportDocument(c))
		}
		doc["components"] = components
	}
	return doc
}

func stageDocument(rec domain.StageRecord) map[string]any {
	stage := map[string]any{
		"stage_id": rec.SchemaStageID,
		"name":     rec.Name,
		"number":   rec.Number,
		"employee": rec.OperatorName,
	}
	if rec.StartedAt != nil {
		stage["started_at"] = rec.StartedAt.UTC().Format(time.RFC3339)
	}
	if rec.EndedAt != nil {
		stage["ended_at"] = rec.EndedAt.UTC().Format(time.RFC3339)
	}
	if rec.EndedPrematurely {
		stage["ended_prematurely"] = true
	}
	if len(rec.VideoCIDs) > 0 {
		stage["video_hashes"] = rec.VideoCIDs
	}
	if len(rec.AdditionalInfo) > 0 {
		stage["additional_info"] = rec.AdditionalInfo
	}
	return stage
}

func lastStageEnd(unit *domain.Unit) *time.Time {
	var last *time.Time
	for i := range unit.Biography {
		end := unit.Biography[i].EndedAt
		if end != nil && (last == nil || end.After(*last)) {
			last = end
		}
	}
	return last
}
