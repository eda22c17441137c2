package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// subgraphPageSize is how many recent subscription events one poll fetches.
const subgraphPageSize = 50

// PollingService resolves creations whose receipt wait expired. The receipt
// may never arrive even though the operation landed, so the poller looks for
// the result the other way around: scan recently created MeTokens and claim
// the one owned by the initiator.
type PollingService struct {
	repo    repository.PendingOperationRepository
	records repository.MeTokenRecordRepository
	chain   ChainReader
	indexer clients.MeTokenIndexer
	sync    *RecordSyncService
	pusher  StatePusher

	interval time.Duration
	budget   int
	indexLag time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool
}

// NewPollingService wires the fallback poller.
func NewPollingService(
	repo repository.PendingOperationRepository,
	records repository.MeTokenRecordRepository,
	chain ChainReader,
	indexer clients.MeTokenIndexer,
	syncSvc *RecordSyncService,
	pusher StatePusher,
	interval time.Duration,
	budget int,
	indexLag time.Duration,
) *PollingService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PollingService{
		repo:     repo,
		records:  records,
		chain:    chain,
		indexer:  indexer,
		sync:     syncSvc,
		pusher:   pusher,
		interval: interval,
		budget:   budget,
		indexLag: indexLag,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]bool),
	}
}

// Stop cancels all in-flight polls and waits for them to exit.
func (s *PollingService) Stop() {
	s.cancel()
	s.wg.Wait()
}

// StartPolling begins background resolution for the operation. Starting a
// handle that is already being polled is a no-op; the return value reports
// whether a new poll was started.
func (s *PollingService) StartPolling(op *models.PendingOperation) bool {
	s.mu.Lock()
	if s.active[op.OperationHandle] {
		s.mu.Unlock()
		return false
	}
	s.active[op.OperationHandle] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, op.OperationHandle)
			s.mu.Unlock()
		}()
		s.pollToCompletion(s.ctx, op, s.budget)
	}()
	return true
}

func (s *PollingService) pollToCompletion(ctx context.Context, op *models.PendingOperation, budget int) {
	address, attempts, err := s.PollUntilFound(ctx, op, budget)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logrus.WithError(err).WithField("handle", op.OperationHandle).Warn("Fallback polling gave up")
		op.ErrorMessage = err.Error()
		if saveErr := s.repo.Save(ctx, op); saveErr != nil {
			logrus.WithError(saveErr).Warn("Failed to persist polling failure")
		}
		if s.pusher != nil {
			s.pusher.PushState(op.Initiator, BuildState(models.CreationStatusError, op.OperationHandle, op.TransactionHash, "", err.Error()))
		}
		return
	}
	s.resolveFound(ctx, op, address, attempts)
}

// PollUntilFound scans the registry every interval until the initiator's new
// MeToken shows up or the attempt budget runs out. It returns the discovered
// address and how many attempts it took.
func (s *PollingService) PollUntilFound(ctx context.Context, op *models.PendingOperation, budget int) (string, int, error) {
	// Give the indexer a moment to see the block before the first scan.
	if s.indexLag > 0 {
		if !utils.SleepWithContext(ctx, s.indexLag) {
			return "", 0, ctx.Err()
		}
	}

	for attempt := 1; attempt <= budget; attempt++ {
		address, found, err := s.scanForOwner(ctx, op.Initiator)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"handle":  op.OperationHandle,
				"attempt": attempt,
			}).Warn("Registry scan failed")
		} else if found {
			return address, attempt, nil
		}

		if attempt < budget {
			if !utils.SleepWithContext(ctx, s.interval) {
				return "", attempt, ctx.Err()
			}
		}
	}
	return "", budget, fmt.Errorf("creation not visible after %d registry polls", budget)
}

// scanForOwner pages through recent subscription events, newest first, and
// returns the first MeToken whose on-chain owner is the initiator. Addresses
// already recorded for another owner are skipped without a chain call.
func (s *PollingService) scanForOwner(ctx context.Context, initiator string) (string, bool, error) {
	events, err := s.indexer.RecentSubscribes(ctx, subgraphPageSize, 0)
	if err != nil {
		return "", false, fmt.Errorf("list recent subscribes: %w", err)
	}

	initiatorAddr := common.HexToAddress(initiator)
	for _, event := range events {
		if !utils.IsEvmAddress(event.MeToken) {
			continue
		}
		if existing, err := s.records.GetByAddress(ctx, event.MeToken); err == nil && existing != nil {
			if !utils.SameAddress(existing.Owner, initiator) {
				continue
			}
			return existing.Address, true, nil
		}

		info, err := s.chain.MeTokenInfo(ctx, common.HexToAddress(event.MeToken))
		if err != nil {
			logrus.WithError(err).WithField("metoken", event.MeToken).Debug("Registry lookup failed for candidate")
			continue
		}
		if info.Owner == initiatorAddr {
			return event.MeToken, true, nil
		}
	}
	return "", false, nil
}

// resolveFound finalizes a ledger entry whose MeToken was discovered by
// polling. The result address is written once and the entry moves to
// confirmed.
func (s *PollingService) resolveFound(ctx context.Context, op *models.PendingOperation, address string, attempts int) {
	metrics.ConfirmationPollAttempts.Observe(float64(attempts))

	op.Status = models.PendingOperationStatusConfirmed
	if op.MeTokenAddress == "" {
		op.MeTokenAddress = address
	}
	op.ErrorMessage = ""
	if err := s.repo.Save(ctx, op); err != nil {
		logrus.WithError(err).WithField("handle", op.OperationHandle).Warn("Failed to persist polled confirmation")
	}

	logrus.WithFields(logrus.Fields{
		"handle":   op.OperationHandle,
		"metoken":  op.MeTokenAddress,
		"attempts": attempts,
	}).Info("Creation resolved by registry polling")

	if s.sync != nil {
		_ = s.sync.SyncConfirmed(ctx, op)
	}
	if s.pusher != nil {
		s.pusher.PushState(op.Initiator, BuildState(models.CreationStatusSuccess, op.OperationHandle, op.TransactionHash, op.MeTokenAddress, ""))
	}

	// The entry has served its purpose: the result is synced and announced,
	// so it is retired from the ledger.
	if err := s.repo.Delete(ctx, op.OperationHandle); err != nil && !errors.Is(err, repository.ErrOperationNotFound) {
		logrus.WithError(err).WithField("handle", op.OperationHandle).Warn("Failed to retire resolved operation")
	}
}
