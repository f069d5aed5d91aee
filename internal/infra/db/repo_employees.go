package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"gorm.io/gorm"
)

type EmployeeRepository struct {
	db *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

func (r *EmployeeRepository) GetByCardToken(ctx context.Context, token string) (*domain.Employee, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if token == "" {
		return nil, errors.New("card token is required")
	}
	var model EmployeeModel
	if err := r.db.WithContext(ctx).
		Where("card_token = ?", token).
		Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no employee for card token", domain.ErrNotFound)
		}
		return nil, err
	}
	return &domain.Employee{
		ID:         model.ID,
		Name:       model.Name,
		Position:   model.Position,
		CardToken:  model.CardToken,
		Authorized: model.Authorized,
	}, nil
}
