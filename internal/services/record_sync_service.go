package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
)

// RecordSyncService mirrors a confirmed creation into the MeToken record
// table and announces it on the message bus. The chain stays authoritative:
// every failure here is logged and swallowed so a creation that succeeded
// on-chain is never reported as failed.
type RecordSyncService struct {
	records   repository.MeTokenRecordRepository
	publisher LifecyclePublisher
}

// NewRecordSyncService wires the sync layer. publisher may be nil when the
// message bus is disabled.
func NewRecordSyncService(records repository.MeTokenRecordRepository, publisher LifecyclePublisher) *RecordSyncService {
	return &RecordSyncService{records: records, publisher: publisher}
}

// SyncConfirmed records the confirmed creation and publishes the lifecycle
// event. Always returns nil by contract.
func (s *RecordSyncService) SyncConfirmed(ctx context.Context, op *models.PendingOperation) error {
	record := &models.MeTokenRecord{
		ID:              uuid.New().String(),
		Address:         strings.ToLower(op.MeTokenAddress),
		Owner:           strings.ToLower(op.Initiator),
		Name:            op.Name,
		Symbol:          op.Symbol,
		HubID:           op.HubID,
		AssetsDeposited: op.AssetsDeposited,
		TransactionHash: op.TransactionHash,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.records.Upsert(ctx, record); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"metoken": record.Address,
			"owner":   record.Owner,
		}).Warn("MeToken record sync failed, chain state remains authoritative")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishCreationEvent(clients.SubjectCreationConfirmed, &clients.CreationEvent{
			OperationHandle: op.OperationHandle,
			Initiator:       op.Initiator,
			Status:          string(op.Status),
			TransactionHash: op.TransactionHash,
			MeTokenAddress:  op.MeTokenAddress,
		}); err != nil {
			logrus.WithError(err).Warn("Creation confirmed event publish failed")
		}
	}
	return nil
}
