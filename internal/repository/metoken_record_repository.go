package repository

import (
	"context"

	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MeTokenRecordRepository defines data access for synced MeToken records
type MeTokenRecordRepository interface {
	Upsert(ctx context.Context, record *models.MeTokenRecord) error
	GetByAddress(ctx context.Context, address string) (*models.MeTokenRecord, error)
	FindByOwner(ctx context.Context, owner string) ([]*models.MeTokenRecord, error)
}

type meTokenRecordRepository struct {
	db *gorm.DB
}

// NewMeTokenRecordRepository creates a MeTokenRecordRepository instance
func NewMeTokenRecordRepository(db *gorm.DB) MeTokenRecordRepository {
	return &meTokenRecordRepository{db: db}
}

// Upsert inserts or refreshes a record, keyed by the MeToken address.
func (r *meTokenRecordRepository) Upsert(ctx context.Context, record *models.MeTokenRecord) error {
	record.Address = utils.NormalizeAddress(record.Address)
	record.Owner = utils.NormalizeAddress(record.Owner)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(record).Error
}

// GetByAddress retrieves a record by MeToken address
func (r *meTokenRecordRepository) GetByAddress(ctx context.Context, address string) (*models.MeTokenRecord, error) {
	var record models.MeTokenRecord
	err := r.db.WithContext(ctx).
		Where("address = ?", utils.NormalizeAddress(address)).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByOwner finds records by owner address
func (r *meTokenRecordRepository) FindByOwner(ctx context.Context, owner string) ([]*models.MeTokenRecord, error) {
	var records []*models.MeTokenRecord
	err := r.db.WithContext(ctx).
		Where("owner = ?", utils.NormalizeAddress(owner)).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}
