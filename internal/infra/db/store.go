package db

import (
	"errors"
	"fmt"
	"log"

	"github.com/Testiot539/feec-workbench-daemon/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

// Migrate creates or updates the daemon's tables. Safe to run on every
// start.
func (s *Store) Migrate() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&EmployeeModel{},
		&SchemaModel{},
		&UnitModel{},
		&StageRecordModel{},
		&StageSessionModel{},
		&AnchorRecordModel{},
		&AnchorAttemptModel{},
		&AuditEventModel{},
		&AuditSeqModel{},
	)
}
