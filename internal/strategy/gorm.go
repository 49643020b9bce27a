package strategy

import (
	"context"
	"time"

	"gorm.io/gorm"

	"livetrade/internal/errors"
	"livetrade/pkg/exception"
)

type strategyRecord struct {
	ID           string             `gorm:"primaryKey;size:64"`
	Name         string             `gorm:"size:255;not null;uniqueIndex"`
	StrategyType string             `gorm:"size:50;not null;index:ix_strategies_type_active,priority:1"`
	Parameters   map[string]float64 `gorm:"serializer:json;not null"`
	Description  string             `gorm:"type:text"`
	IsActive     bool               `gorm:"not null;index:ix_strategies_type_active,priority:2"`
	CreatedAt    time.Time          `gorm:"not null"`
	UpdatedAt    time.Time          `gorm:"not null"`
}

func (strategyRecord) TableName() string {
	return "strategies"
}

func toRecord(def Definition) strategyRecord {
	params := def.Parameters
	if params == nil {
		params = map[string]float64{}
	}
	return strategyRecord{
		ID:           def.ID,
		Name:         def.Name,
		StrategyType: string(def.Type),
		Parameters:   params,
		Description:  def.Description,
		IsActive:     def.IsActive,
		CreatedAt:    def.CreatedAt,
		UpdatedAt:    def.UpdatedAt,
	}
}

func (rec strategyRecord) definition() Definition {
	return Definition{
		ID:          rec.ID,
		Name:        rec.Name,
		Type:        Type(rec.StrategyType),
		Parameters:  rec.Parameters,
		Description: rec.Description,
		IsActive:    rec.IsActive,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

// GormRepository stores definitions in the "strategies" table.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an open gorm connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the strategies table.
func (r *GormRepository) Migrate(ctx context.Context) error {
	return errors.Wrap(r.db.WithContext(ctx).AutoMigrate(&strategyRecord{}), "migrate strategies")
}

// Save inserts or updates a definition by ID.
func (r *GormRepository) Save(ctx context.Context, def Definition) (Definition, error) {
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	rec := toRecord(def)
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return Definition{}, errors.Wrapf(err, "save strategy %s", def.ID)
	}
	return rec.definition(), nil
}

// FindByID loads a definition, mapping a missing row to ErrStrategyNotFound.
func (r *GormRepository) FindByID(ctx context.Context, id string) (Definition, error) {
	var rec strategyRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Definition{}, errors.Wrapf(exception.ErrStrategyNotFound, "find %s", id)
	}
	if err != nil {
		return Definition{}, errors.Wrapf(err, "find strategy %s", id)
	}
	return rec.definition(), nil
}

// List returns all definitions ordered by ID.
func (r *GormRepository) List(ctx context.Context) ([]Definition, error) {
	var recs []strategyRecord
	if err := r.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list strategies")
	}
	out := make([]Definition, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.definition())
	}
	return out, nil
}

// Delete removes a definition.
func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&strategyRecord{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete strategy %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(exception.ErrStrategyNotFound, "delete %s", id)
	}
	return nil
}
