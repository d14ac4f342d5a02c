package services

import (
	"errors"

	"cryptovision_backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelService manages prediction model versions
type ModelService struct {
	db *gorm.DB
}

// NewModelService creates a new model service
func NewModelService(db *gorm.DB) *ModelService {
	return &ModelService{db: db}
}

// GetByNameVersion returns the model version with the given natural key,
// or nil when absent
func (s *ModelService) GetByNameVersion(name, version string) (*models.ModelVersion, error) {
	var mv models.ModelVersion
	err := s.db.Where("name = ? AND version = ?", name, version).First(&mv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mv, nil
}

// GetProductionVersion returns the production version of a model by name,
// or nil when none is flagged
func (s *ModelService) GetProductionVersion(name string) (*models.ModelVersion, error) {
	var mv models.ModelVersion
	err := s.db.Where("name = ? AND is_production = ?", name, true).First(&mv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mv, nil
}

// forUpdate adds a row lock on dialects that support SELECT FOR UPDATE.
// SQLite serializes writers on its own.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// lockName locks every version row of the model name so concurrent
// production transitions for that name serialize
func lockName(tx *gorm.DB, name string) error {
	var rows []models.ModelVersion
	return forUpdate(tx).Where("name = ?", name).Find(&rows).Error
}

// Create registers a new model version. A version created with the
// production flag demotes any flagged sibling in the same transaction.
func (s *ModelService) Create(mv *models.ModelVersion) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if mv.IsProduction {
			if err := lockName(tx, mv.Name); err != nil {
				return err
			}
			if err := tx.Model(&models.ModelVersion{}).
				Where("name = ? AND is_production = ?", mv.Name, true).
				Update("is_production", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(mv).Error
	})
}

// SetProductionVersion makes the given version the production one for its
// model name. The unset-then-set runs in a single transaction over locked
// rows so concurrent transitions leave exactly one version flagged.
func (s *ModelService) SetProductionVersion(modelVersionID string) (*models.ModelVersion, error) {
	var mv models.ModelVersion

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).Where("id = ?", modelVersionID).First(&mv).Error; err != nil {
			return err
		}
		if err := lockName(tx, mv.Name); err != nil {
			return err
		}

		if err := tx.Model(&models.ModelVersion{}).
			Where("name = ? AND is_production = ?", mv.Name, true).
			Update("is_production", false).Error; err != nil {
			return err
		}

		if err := tx.Model(&mv).Update("is_production", true).Error; err != nil {
			return err
		}
		mv.IsProduction = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &mv, nil
}
