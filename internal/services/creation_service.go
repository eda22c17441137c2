package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// ErrSubmitTimeout is returned when no operation handle could be obtained
// within the submission deadline.
var ErrSubmitTimeout = errors.New("user operation submission timed out")

// errConfirmTimeout signals the receipt wait expired. Never surfaced to the
// caller: the attempt hands over to the fallback poller instead.
var errConfirmTimeout = errors.New("user operation confirmation timed out")

// CreationService drives one MeToken creation end to end: preflight balance
// check, allowance setup, gas strategy, submission, confirmation, and result
// resolution. Every durable transition goes through the pending operation
// ledger so a crash at any point is recoverable.
type CreationService struct {
	repo      repository.PendingOperationRepository
	chain     ChainReader
	submitter clients.OperationSubmitter
	gas       *GasStrategy
	allowance *AllowanceService
	poller    *PollingService
	sync      *RecordSyncService
	pusher    StatePusher
	publisher LifecyclePublisher

	submitTimeout  time.Duration
	confirmTimeout time.Duration
}

// NewCreationService wires the orchestrator.
func NewCreationService(
	repo repository.PendingOperationRepository,
	chain ChainReader,
	submitter clients.OperationSubmitter,
	gas *GasStrategy,
	allowance *AllowanceService,
	poller *PollingService,
	syncSvc *RecordSyncService,
	pusher StatePusher,
	publisher LifecyclePublisher,
	submitTimeout, confirmTimeout time.Duration,
) *CreationService {
	return &CreationService{
		repo:           repo,
		chain:          chain,
		submitter:      submitter,
		gas:            gas,
		allowance:      allowance,
		poller:         poller,
		sync:           syncSvc,
		pusher:         pusher,
		publisher:      publisher,
		submitTimeout:  submitTimeout,
		confirmTimeout: confirmTimeout,
	}
}

func (s *CreationService) push(initiator string, status models.CreationStatus, handle, txHash, meToken, errMsg string) {
	if s.pusher != nil {
		s.pusher.PushState(initiator, BuildState(status, handle, txHash, meToken, errMsg))
	}
}

func (s *CreationService) publish(subject string, op *models.PendingOperation, errMsg string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCreationEvent(subject, &clients.CreationEvent{
		OperationHandle: op.OperationHandle,
		Initiator:       op.Initiator,
		Status:          string(op.Status),
		TransactionHash: op.TransactionHash,
		MeTokenAddress:  op.MeTokenAddress,
		Error:           errMsg,
	}); err != nil {
		logrus.WithError(err).Debug("Lifecycle event publish failed")
	}
}

func validateParams(initiator string, params models.CreationParams) (common.Address, *big.Int, error) {
	if !utils.IsEvmAddress(initiator) {
		return common.Address{}, nil, fmt.Errorf("invalid initiator address %q", initiator)
	}
	if strings.TrimSpace(params.Name) == "" || strings.TrimSpace(params.Symbol) == "" {
		return common.Address{}, nil, errors.New("name and symbol are required")
	}
	deposit, ok := new(big.Int).SetString(params.AssetsDeposited, 10)
	if !ok || deposit.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("invalid deposit amount %q", params.AssetsDeposited)
	}
	return common.HexToAddress(initiator), deposit, nil
}

// CreateMeToken runs one creation attempt. On a confirmation timeout the
// returned operation is in the timeout state and resolution continues in the
// background; that is not an error. Terminal failures come back as typed
// errors from the models package.
func (s *CreationService) CreateMeToken(ctx context.Context, initiator string, params models.CreationParams) (*models.PendingOperation, error) {
	account, deposit, err := validateParams(initiator, params)
	if err != nil {
		return nil, err
	}
	metrics.CreationsStarted.Inc()

	// Preflight: nothing is submitted, and nothing is persisted, unless the
	// deposit is actually covered. A zero deposit skips the balance read
	// entirely: there is nothing to cover.
	s.push(initiator, models.CreationStatusCheckingBalance, "", "", "", "")
	if deposit.Sign() > 0 {
		balance, err := s.chain.DepositAssetBalance(ctx, account)
		if err != nil {
			return nil, s.failBeforeLedger(initiator, fmt.Errorf("read deposit balance: %w", err))
		}
		if balance.Cmp(deposit) < 0 {
			return nil, s.failBeforeLedger(initiator, &models.InsufficientFundsError{
				Account:   initiator,
				Required:  deposit,
				Available: balance,
			})
		}
	}

	hub, err := s.chain.HubInfo(ctx, new(big.Int).SetUint64(params.HubID))
	if err != nil {
		return nil, s.failBeforeLedger(initiator, fmt.Errorf("read hub %d: %w", params.HubID, err))
	}
	if !hub.Active {
		return nil, s.failBeforeLedger(initiator, fmt.Errorf("hub %d is not active", params.HubID))
	}

	payment, isMember, err := s.gas.SelectPaymentContext(ctx, account)
	if err != nil {
		return nil, s.failBeforeLedger(initiator, err)
	}

	if deposit.Sign() > 0 {
		s.push(initiator, models.CreationStatusApprovingDAI, "", "", "", "")
		if err := s.allowance.EnsureAllowances(ctx, account, hub.Vault, deposit, payment); err != nil {
			return nil, s.failBeforeLedger(initiator, err)
		}
	}

	s.push(initiator, models.CreationStatusCreatingMeToken, "", "", "", "")
	handle, err := s.submitSubscribe(ctx, account, isMember, payment, params, deposit)
	if err != nil {
		return nil, s.failBeforeLedger(initiator, err)
	}

	op := &models.PendingOperation{
		OperationHandle: handle,
		Initiator:       strings.ToLower(initiator),
		Status:          models.PendingOperationStatusPending,
		Name:            params.Name,
		Symbol:          params.Symbol,
		HubID:           params.HubID,
		AssetsDeposited: deposit.String(),
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, op); err != nil {
		// The operation is in flight regardless. Keep going, recovery will
		// not see this one but the receipt wait still can.
		logrus.WithError(err).WithField("handle", handle).Error("Failed to persist pending operation")
	}
	s.publish(clients.SubjectCreationSubmitted, op, "")

	return s.awaitConfirmation(ctx, op)
}

// submitSubscribe submits the subscribe operation under the submission
// deadline. A sponsorship failure that the gas strategy clears for fallback
// is retried exactly once with no payment context.
func (s *CreationService) submitSubscribe(ctx context.Context, account common.Address, isMember bool, payment *clients.PaymentContext, params models.CreationParams, deposit *big.Int) (string, error) {
	callData, err := clients.EncodeSubscribe(params.Name, params.Symbol, new(big.Int).SetUint64(params.HubID), deposit)
	if err != nil {
		return "", fmt.Errorf("encode subscribe: %w", err)
	}
	call := clients.OperationCall{
		Target: s.chain.DiamondAddress(),
		Value:  clients.NewValue(nil),
		Data:   callData,
	}

	send := func(payment *clients.PaymentContext) (string, error) {
		return utils.RaceWithTimeout(ctx, s.submitTimeout, ErrSubmitTimeout, func(ctx context.Context) (string, error) {
			return s.submitter.SendOperation(ctx, account, call, payment)
		})
	}

	handle, err := send(payment)
	if err == nil {
		return handle, nil
	}

	// A submission timeout goes through the same failure handling as a
	// bundler rejection. A second timeout on the fallback send is terminal.
	decision, ferr := s.gas.HandleSubmissionFailure(ctx, account, isMember, payment, err)
	if decision != FallbackSelfFunded {
		return "", ferr
	}
	handle, err = send(nil)
	if err != nil {
		return "", fmt.Errorf("self-funded resubmission failed: %w", err)
	}
	return handle, nil
}

// awaitConfirmation moves the ledger entry to confirming, waits for the
// receipt under the confirmation deadline, and resolves the result. The
// confirming write happens before the wait starts so a crash during the wait
// is always recoverable.
func (s *CreationService) awaitConfirmation(ctx context.Context, op *models.PendingOperation) (*models.PendingOperation, error) {
	op.Status = models.PendingOperationStatusConfirming
	if err := s.repo.Save(ctx, op); err != nil {
		logrus.WithError(err).WithField("handle", op.OperationHandle).Error("Failed to persist confirming status")
	}
	s.push(op.Initiator, models.CreationStatusWaitingConfirmation, op.OperationHandle, "", "", "")

	txHash, err := utils.RaceWithTimeout(ctx, s.confirmTimeout, errConfirmTimeout, func(ctx context.Context) (string, error) {
		return s.submitter.WaitForOperation(ctx, op.OperationHandle)
	})
	if err != nil {
		if errors.Is(err, errConfirmTimeout) {
			return s.handOverToPoller(ctx, op)
		}
		return nil, s.failWithLedger(ctx, op, fmt.Errorf("confirmation wait: %w", err))
	}

	op.TransactionHash = txHash
	if err := s.repo.Save(ctx, op); err != nil {
		logrus.WithError(err).WithField("handle", op.OperationHandle).Warn("Failed to persist transaction hash")
	}

	// The receipt proves inclusion but not which MeToken came out of it.
	// Resolve the address through the registry scan.
	s.push(op.Initiator, models.CreationStatusPolling, op.OperationHandle, txHash, "", "")
	address, attempts, err := s.poller.PollUntilFound(ctx, op, s.poller.budget)
	if err != nil {
		return nil, s.failWithLedger(ctx, op, fmt.Errorf("confirmed but result not found: %w", err))
	}
	s.poller.resolveFound(ctx, op, address, attempts)
	metrics.CreationsCompleted.WithLabelValues("confirmed").Inc()
	return op, nil
}

// handOverToPoller parks a timed-out attempt in the ledger and continues
// resolution in the background. The caller gets the operation back without
// an error; the outcome arrives over the state stream.
func (s *CreationService) handOverToPoller(ctx context.Context, op *models.PendingOperation) (*models.PendingOperation, error) {
	op.Status = models.PendingOperationStatusTimeout
	if err := s.repo.Save(ctx, op); err != nil {
		logrus.WithError(err).WithField("handle", op.OperationHandle).Error("Failed to persist timeout status")
	}
	logrus.WithField("handle", op.OperationHandle).Warn("Confirmation wait expired, handing over to registry polling")

	s.push(op.Initiator, models.CreationStatusPolling, op.OperationHandle, "", "", "")
	s.poller.StartPolling(op)
	metrics.CreationsCompleted.WithLabelValues("timeout").Inc()
	return op, nil
}

func (s *CreationService) failBeforeLedger(initiator string, err error) error {
	s.push(initiator, models.CreationStatusError, "", "", "", err.Error())
	metrics.CreationsCompleted.WithLabelValues("failed").Inc()
	return err
}

func (s *CreationService) failWithLedger(ctx context.Context, op *models.PendingOperation, err error) error {
	op.Status = models.PendingOperationStatusFailed
	op.ErrorMessage = err.Error()
	if saveErr := s.repo.Save(ctx, op); saveErr != nil {
		logrus.WithError(saveErr).WithField("handle", op.OperationHandle).Error("Failed to persist failure status")
	}
	s.push(op.Initiator, models.CreationStatusError, op.OperationHandle, op.TransactionHash, "", err.Error())
	s.publish(clients.SubjectCreationFailed, op, err.Error())
	metrics.CreationsCompleted.WithLabelValues("failed").Inc()
	return err
}

// RetryOperation re-runs resolution for a parked ledger entry on user
// request. It rechecks the registry exactly once; only when that check comes
// up empty is the creation resubmitted as a fresh operation. Blind automatic
// resubmission is never done because the original operation may still land.
func (s *CreationService) RetryOperation(ctx context.Context, handle string) (*models.PendingOperation, error) {
	op, err := s.repo.GetByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if op.IsResolved() {
		return op, nil
	}

	address, found, err := s.poller.scanForOwner(ctx, op.Initiator)
	if err != nil {
		logrus.WithError(err).WithField("handle", handle).Warn("Retry recheck scan failed")
	}
	if found {
		s.poller.resolveFound(ctx, op, address, 1)
		return op, nil
	}

	// The old entry stays, marked failed, as the audit trail. The fresh
	// attempt gets its own handle and ledger entry.
	op.Status = models.PendingOperationStatusFailed
	if op.ErrorMessage == "" {
		op.ErrorMessage = "superseded by manual retry"
	}
	if err := s.repo.Save(ctx, op); err != nil {
		logrus.WithError(err).WithField("handle", handle).Warn("Failed to retire superseded operation")
	}

	return s.CreateMeToken(ctx, op.Initiator, models.CreationParams{
		Name:            op.Name,
		Symbol:          op.Symbol,
		HubID:           op.HubID,
		AssetsDeposited: op.AssetsDeposited,
	})
}
