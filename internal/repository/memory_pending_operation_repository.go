package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// MemoryPendingOperationRepository keeps the ledger in memory. It backs tests
// and single-process deployments that run without Postgres.
type MemoryPendingOperationRepository struct {
	mu  sync.RWMutex
	ops map[string]*models.PendingOperation
}

// NewMemoryPendingOperationRepository creates an in-memory ledger store.
func NewMemoryPendingOperationRepository() *MemoryPendingOperationRepository {
	return &MemoryPendingOperationRepository{ops: make(map[string]*models.PendingOperation)}
}

// Save upserts by handle with the same invariants as the gorm store.
func (m *MemoryPendingOperationRepository) Save(_ context.Context, op *models.PendingOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stored, ok := m.ops[op.OperationHandle]; ok {
		reconcileWithStored(stored, op)
	} else if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	op.UpdatedAt = time.Now()

	clone := *op
	m.ops[op.OperationHandle] = &clone
	return nil
}

// GetByHandle retrieves one ledger entry.
func (m *MemoryPendingOperationRepository) GetByHandle(_ context.Context, handle string) (*models.PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.ops[handle]
	if !ok {
		return nil, ErrOperationNotFound
	}
	clone := *op
	return &clone, nil
}

// List returns the full ledger snapshot, newest first.
func (m *MemoryPendingOperationRepository) List(_ context.Context) ([]*models.PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]*models.PendingOperation, 0, len(m.ops))
	for _, op := range m.ops {
		clone := *op
		ops = append(ops, &clone)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].CreatedAt.After(ops[j].CreatedAt) })
	return ops, nil
}

// ListByInitiator returns ledger entries owned by one address, newest first.
func (m *MemoryPendingOperationRepository) ListByInitiator(_ context.Context, initiator string) ([]*models.PendingOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]*models.PendingOperation, 0)
	for _, op := range m.ops {
		if utils.SameAddress(op.Initiator, initiator) {
			clone := *op
			ops = append(ops, &clone)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].CreatedAt.After(ops[j].CreatedAt) })
	return ops, nil
}

// Delete retires one ledger entry.
func (m *MemoryPendingOperationRepository) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ops, handle)
	return nil
}
