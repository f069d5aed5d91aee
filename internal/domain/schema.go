package domain

type SchemaType string

const (
	SchemaTypeSingle    SchemaType = "single"
	SchemaTypeSample    SchemaType = "sample"
	SchemaTypeComposite SchemaType = "composite"
)

// StageTemplate is one step of a production schema. Immutable once the
// schema is published.
type StageTemplate struct {
	StageID         string   `json:"stage_id"`
	Name            string   `json:"name"`
	Type            string   `json:"type,omitempty"`
	Description     string   `json:"description,omitempty"`
	Equipment       []string `json:"equipment,omitempty"`
	Workplace       string   `json:"workplace,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
}

// ProductionSchema is the template a unit is built under: an ordered stage
// sequence plus, for composite schemas, the component schemas a finished
// unit must reference.
type ProductionSchema struct {
	SchemaID                   string          `json:"schema_id"`
	UnitName                   string          `json:"unit_name"`
	UnitShortName              string          `json:"unit_short_name,omitempty"`
	ParentSchemaID             string          `json:"parent_schema_id,omitempty"`
	Type                       SchemaType      `json:"schema_type,omitempty"`
	Stages                     []StageTemplate `json:"production_stages,omitempty"`
	RequiredComponentSchemaIDs []string        `json:"required_components_schema_ids,omitempty"`
}

func (s ProductionSchema) IsComposite() bool {
	return s.Type == SchemaTypeComposite || len(s.RequiredComponentSchemaIDs) > 0
}

// PrintName is the annotation used on printed labels.
func (s ProductionSchema) PrintName() string {
	if s.UnitShortName != "" {
		return s.UnitShortName
	}
	return s.UnitName
}

func (s ProductionSchema) StageIndex(stageID string) int {
	for i, stage := range s.Stages {
		if stage.StageID == stageID {
			return i
		}
	}
	return -1
}
