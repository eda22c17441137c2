package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
)

// RecoveryService reconciles the pending operation ledger with on-chain
// reality. It picks up operations orphaned by a crash or restart, resolves
// the ones whose MeToken actually landed, and discards entries past the age
// limit. Each unresolved entry gets a reduced poll budget per sweep so one
// stuck operation cannot monopolize a pass.
type RecoveryService struct {
	repo      repository.PendingOperationRepository
	poller    *PollingService
	submitter clients.OperationSubmitter
	publisher LifecyclePublisher

	interval time.Duration
	maxAge   time.Duration
	budget   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecoveryService wires the reconciler. submitter and publisher may be nil.
func NewRecoveryService(repo repository.PendingOperationRepository, poller *PollingService, submitter clients.OperationSubmitter, publisher LifecyclePublisher, interval, maxAge time.Duration, budget int) *RecoveryService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RecoveryService{
		repo:      repo,
		poller:    poller,
		submitter: submitter,
		publisher: publisher,
		interval:  interval,
		maxAge:    maxAge,
		budget:    budget,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop is called.
func (s *RecoveryService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logrus.WithField("interval", s.interval).Info("Recovery service started")

		s.Sweep(s.ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(s.ctx)
			case <-s.ctx.Done():
				logrus.Info("Recovery service stopped")
				return
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (s *RecoveryService) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Sweep walks the whole ledger once. Safe to call concurrently with live
// creations: the poller's active set prevents double polling, and resolution
// is idempotent because the result address is only ever written once.
func (s *RecoveryService) Sweep(ctx context.Context) {
	ops, err := s.repo.List(ctx)
	if err != nil {
		logrus.WithError(err).Error("Recovery sweep could not list pending operations")
		metrics.RecoveryRuns.WithLabelValues("list_failed").Inc()
		return
	}

	unresolved := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			return
		}
		switch s.reconcile(ctx, op) {
		case recoveryDiscarded:
			metrics.RecoveryRuns.WithLabelValues("discarded").Inc()
		case recoveryResolved:
			metrics.RecoveryRuns.WithLabelValues("resolved").Inc()
		case recoverySkipped:
			metrics.RecoveryRuns.WithLabelValues("skipped").Inc()
		default:
			unresolved++
			metrics.RecoveryRuns.WithLabelValues("unresolved").Inc()
		}
	}
	metrics.PendingOperations.Set(float64(unresolved))
}

type recoveryOutcome int

const (
	recoveryUnresolved recoveryOutcome = iota
	recoveryDiscarded
	recoveryResolved
	recoverySkipped
)

func (s *RecoveryService) reconcile(ctx context.Context, op *models.PendingOperation) recoveryOutcome {
	log := logrus.WithFields(logrus.Fields{
		"handle":    op.OperationHandle,
		"initiator": op.Initiator,
		"status":    op.Status,
	})

	if op.IsExpired(s.maxAge) {
		if err := s.repo.Delete(ctx, op.OperationHandle); err != nil {
			log.WithError(err).Warn("Failed to discard expired operation")
			return recoveryUnresolved
		}
		log.Info("Discarded expired pending operation")
		return recoveryDiscarded
	}

	if op.IsResolved() {
		// Resolved but never retired, typically a crash between the result
		// write and the cleanup. Finish the retirement path.
		s.poller.resolveFound(ctx, op, op.MeTokenAddress, 0)
		return recoveryResolved
	}

	// Failed entries wait for a manual retry or expiry; re-polling them
	// cannot change the terminal submission error.
	if op.Status == models.PendingOperationStatusFailed {
		return recoverySkipped
	}

	// An orphan interrupted before the receipt landed may have a transaction
	// by now. Backfill the hash with a single receipt lookup before scanning
	// the registry.
	if op.TransactionHash == "" && s.submitter != nil {
		txHash, found, rerr := s.submitter.OperationTransaction(ctx, op.OperationHandle)
		if rerr != nil {
			log.WithError(rerr).Debug("Receipt lookup failed during recovery")
		} else if found {
			op.TransactionHash = txHash
			if serr := s.repo.Save(ctx, op); serr != nil {
				log.WithError(serr).Warn("Failed to persist recovered transaction hash")
			}
		}
	}

	address, attempts, err := s.poller.PollUntilFound(ctx, op, s.budget)
	if err != nil {
		log.WithField("budget", s.budget).Debug("Recovery poll budget exhausted, will retry next sweep")
		return recoveryUnresolved
	}
	s.poller.resolveFound(ctx, op, address, attempts)
	log.WithField("metoken", address).Info("Orphaned creation recovered")
	if s.publisher != nil {
		if perr := s.publisher.PublishCreationEvent(clients.SubjectCreationRecovered, &clients.CreationEvent{
			OperationHandle: op.OperationHandle,
			Initiator:       op.Initiator,
			Status:          string(op.Status),
			TransactionHash: op.TransactionHash,
			MeTokenAddress:  op.MeTokenAddress,
		}); perr != nil {
			log.WithError(perr).Debug("Recovered event publish failed")
		}
	}
	return recoveryResolved
}
