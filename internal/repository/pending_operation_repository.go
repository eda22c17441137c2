// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"

	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOperationNotFound no ledger entry exists for the requested handle.
var ErrOperationNotFound = errors.New("pending operation not found")

// PendingOperationRepository is the injectable ledger store. The ledger is a
// keyed collection: Save upserts by operation handle. Implementations must keep
// two guarantees regardless of caller order:
//   - MeTokenAddress is written at most once and never overwritten, so a slow
//     stale poll cannot clobber an earlier confirmation
//   - Status never moves backwards
type PendingOperationRepository interface {
	Save(ctx context.Context, op *models.PendingOperation) error
	GetByHandle(ctx context.Context, handle string) (*models.PendingOperation, error)
	List(ctx context.Context) ([]*models.PendingOperation, error)
	ListByInitiator(ctx context.Context, initiator string) ([]*models.PendingOperation, error)
	Delete(ctx context.Context, handle string) error
}

// pendingOperationRepository implements PendingOperationRepository on gorm
type pendingOperationRepository struct {
	db *gorm.DB
}

// NewPendingOperationRepository creates a gorm-backed ledger store.
func NewPendingOperationRepository(db *gorm.DB) PendingOperationRepository {
	return &pendingOperationRepository{db: db}
}

// Save upserts the entry by handle, enforcing the ledger invariants against the
// currently stored row.
func (r *pendingOperationRepository) Save(ctx context.Context, op *models.PendingOperation) error {
	existing, err := r.GetByHandle(ctx, op.OperationHandle)
	if err != nil && !errors.Is(err, ErrOperationNotFound) {
		return err
	}
	if existing != nil {
		reconcileWithStored(existing, op)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "operation_handle"}},
		UpdateAll: true,
	}).Create(op).Error
}

// GetByHandle retrieves one ledger entry.
func (r *pendingOperationRepository) GetByHandle(ctx context.Context, handle string) (*models.PendingOperation, error) {
	var op models.PendingOperation
	err := r.db.WithContext(ctx).Where("operation_handle = ?", handle).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// List returns the full ledger snapshot, newest first.
func (r *pendingOperationRepository) List(ctx context.Context) ([]*models.PendingOperation, error) {
	var ops []*models.PendingOperation
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&ops).Error
	return ops, err
}

// ListByInitiator returns ledger entries owned by one address, newest first.
func (r *pendingOperationRepository) ListByInitiator(ctx context.Context, initiator string) ([]*models.PendingOperation, error) {
	var ops []*models.PendingOperation
	err := r.db.WithContext(ctx).
		Where("lower(initiator) = ?", utils.NormalizeAddress(initiator)).
		Order("created_at DESC").
		Find(&ops).Error
	return ops, err
}

// Delete retires one ledger entry.
func (r *pendingOperationRepository) Delete(ctx context.Context, handle string) error {
	return r.db.WithContext(ctx).
		Where("operation_handle = ?", handle).
		Delete(&models.PendingOperation{}).Error
}

// reconcileWithStored applies the ledger invariants: the stored result address
// wins over any attempt to change it, and statuses only move forward.
func reconcileWithStored(stored, incoming *models.PendingOperation) {
	if stored.MeTokenAddress != "" {
		incoming.MeTokenAddress = stored.MeTokenAddress
	}
	if !stored.CanTransitionTo(incoming.Status) {
		incoming.Status = stored.Status
	}
	if incoming.TransactionHash == "" {
		incoming.TransactionHash = stored.TransactionHash
	}
	incoming.CreatedAt = stored.CreatedAt
}
