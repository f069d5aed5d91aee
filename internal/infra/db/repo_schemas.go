package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"gorm.io/gorm"
)

type SchemaRepository struct {
	db *gorm.DB
}

func NewSchemaRepository(db *gorm.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

func (r *SchemaRepository) GetByID(ctx context.Context, schemaID string) (*domain.ProductionSchema, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SchemaModel
	if err := r.db.WithContext(ctx).
		Where("schema_id = ?", schemaID).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: schema %s", domain.ErrNotFound, schemaID)
		}
		return nil, err
	}
	schema, err := schemaFromModel(model)
	if err != nil {
		return nil, err
	}
	return &schema, nil
}

func (r *SchemaRepository) List(ctx context.Context) ([]domain.ProductionSchema, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []SchemaModel
	if err := r.db.WithContext(ctx).
		Order("schema_id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ProductionSchema, 0, len(models))
	for _, model := range models {
		schema, err := schemaFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, schema)
	}
	return out, nil
}

// Upsert inserts or replaces a schema definition. Used by seeding and by
// operators pushing updated schema catalogs.
func (r *SchemaRepository) Upsert(ctx context.Context, schema domain.ProductionSchema) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := schemaToModel(schema)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO production_schemas
		   (schema_id, unit_name, unit_short_name, parent_schema_id, type, stages_json, components_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NOW())
		 ON CONFLICT (schema_id)
		 DO UPDATE SET unit_name = EXCLUDED.unit_name,
		               unit_short_name = EXCLUDED.unit_short_name,
		               parent_schema_id = EXCLUDED.parent_schema_id,
		               type = EXCLUDED.type,
		               stages_json = EXCLUDED.stages_json,
		               components_json = EXCLUDED.components_json`,
		model.SchemaID, model.UnitName, model.UnitShortName, model.ParentSchemaID,
		model.Type, model.StagesJSON, model.ComponentsJSON,
	).Error
}

func schemaToModel(schema domain.ProductionSchema) (SchemaModel, error) {
	stages, err := json.Marshal(schema.Stages)
	if err != nil {
		return SchemaModel{}, err
	}
	var components []byte
	if len(schema.RequiredComponentSchemaIDs) > 0 {
		components, err = json.Marshal(schema.RequiredComponentSchemaIDs)
		if err != nil {
			return SchemaModel{}, err
		}
	}
	return SchemaModel{
		SchemaID:       schema.SchemaID,
		UnitName:       schema.UnitName,
		UnitShortName:  schema.UnitShortName,
		ParentSchemaID: schema.ParentSchemaID,
		Type:           string(schema.Type),
		StagesJSON:     stages,
		ComponentsJSON: components,
	}, nil
}

func schemaFromModel(model SchemaModel) (domain.ProductionSchema, error) {
	schema := domain.ProductionSchema{
		SchemaID:       model.SchemaID,
		UnitName:       model.UnitName,
		UnitShortName:  model.UnitShortName,
		ParentSchemaID: model.ParentSchemaID,
		Type:           domain.SchemaType(model.Type),
	}
	if len(model.StagesJSON) > 0 {
		if err := json.Unmarshal(model.StagesJSON, &schema.Stages); err != nil {
			return domain.ProductionSchema{}, fmt.Errorf("decode stages of schema %s: %w", model.SchemaID, err)
		}
	}
	if len(model.ComponentsJSON) > 0 {
		if err := json.Unmarshal(model.ComponentsJSON, &schema.RequiredComponentSchemaIDs); err != nil {
			return domain.ProductionSchema{}, fmt.Errorf("decode components of schema %s: %w", model.SchemaID, err)
		}
	}
	return schema, nil
}
