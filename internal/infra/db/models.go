package db

import "time"

type EmployeeModel struct {
	ID         string    `gorm:"primaryKey"`
	Name       string    `gorm:"not null"`
	Position   string    `gorm:"not null"`
	CardToken  string    `gorm:"uniqueIndex;not null"`
	Authorized bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (EmployeeModel) TableName() string {
	return "employees"
}

type SchemaModel struct {
	SchemaID       string `gorm:"primaryKey"`
	UnitName       string `gorm:"not null"`
	UnitShortName  string
	ParentSchemaID string `gorm:"index"`
	Type           string `gorm:"not null"`
	StagesJSON     []byte `gorm:"type:jsonb;not null"`
	ComponentsJSON []byte `gorm:"type:jsonb"`
	CreatedAt      time.Time
}

func (SchemaModel) TableName() string {
	return "production_schemas"
}

type UnitModel struct {
	// Unit ids are dash-stripped uuid hex, stored as plain text.
	UUID             string `gorm:"primaryKey;size:32"`
	InternalID       string `gorm:"uniqueIndex;not null"`
	SchemaID         string `gorm:"index;not null"`
	Status           string `gorm:"index;not null"`
	SerialNumber     string
	FeaturedInUnitID string `gorm:"index"`
	PassportCID      string
	LedgerTxHash     string
	CreatedAt        time.Time `gorm:"not null"`
}

func (UnitModel) TableName() string {
	return "units"
}

type StageRecordModel struct {
	ID                 string `gorm:"primaryKey;size:32"`
	UnitUUID           string `gorm:"index;not null;size:32"`
	SchemaStageID      string `gorm:"not null"`
	Name               string `gorm:"not null"`
	Number             int    `gorm:"not null"`
	OperatorName       string
	StartedAt          *time.Time
	EndedAt            *time.Time
	EndedPrematurely   bool
	VideoCIDsJSON      []byte    `gorm:"type:jsonb"`
	AdditionalInfoJSON []byte    `gorm:"type:jsonb"`
	Completed          bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (StageRecordModel) TableName() string {
	return "unit_stage_records"
}

type StageSessionModel struct {
	UnitInternalID string    `gorm:"primaryKey"`
	OperatorID     string    `gorm:"not null"`
	StageID        string    `gorm:"not null"`
	AcquiredAt     time.Time `gorm:"not null"`
}

func (StageSessionModel) TableName() string {
	return "stage_sessions"
}

type AnchorRecordModel struct {
	ContentHash    string `gorm:"primaryKey"`
	UnitInternalID string `gorm:"index;not null"`
	StorageCID     string
	LedgerTxHash   string
	Status         string `gorm:"index;not null"`
	Attempts       int    `gorm:"not null"`
	LastError      string
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (AnchorRecordModel) TableName() string {
	return "anchor_records"
}

type AnchorAttemptModel struct {
	ID          int64  `gorm:"primaryKey"`
	ContentHash string `gorm:"index;not null"`
	Provider    string `gorm:"not null"`
	Status      string `gorm:"not null"`
	ErrorCode   string
	CreatedAt   time.Time `gorm:"not null"`
}

func (AnchorAttemptModel) TableName() string {
	return "anchor_attempts"
}

type AuditEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	Workbench     int    `gorm:"uniqueIndex:idx_audit_workbench_seq;not null"`
	Seq           int64  `gorm:"uniqueIndex:idx_audit_workbench_seq;not null"`
	EventType     string `gorm:"index;not null"`
	PayloadJSON   []byte `gorm:"type:jsonb;not null"`
	PayloadHash   string `gorm:"not null"`
	ActorType     string `gorm:"not null"`
	ActorID       string
	TargetType    string
	TargetID      string `gorm:"index"`
	Result        string `gorm:"not null"`
	ErrorCode     string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string {
	return "audit_events"
}

type AuditSeqModel struct {
	Workbench int   `gorm:"primaryKey"`
	Seq       int64 `gorm:"not null"`
}

func (AuditSeqModel) TableName() string {
	return "workbench_audit_seq"
}
