package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// AllowanceService makes sure the deposit asset spenders are approved before
// a creation is submitted. Approvals are granted at the maximum amount so a
// returning initiator skips this step entirely.
type AllowanceService struct {
	chain     ChainReader
	submitter clients.OperationSubmitter
	retries   int
	retryUnit time.Duration
}

// NewAllowanceService wires the allowance manager. retries bounds the
// verification reads after an approval lands.
func NewAllowanceService(chain ChainReader, submitter clients.OperationSubmitter, retries int) *AllowanceService {
	if retries <= 0 {
		retries = 5
	}
	return &AllowanceService{chain: chain, submitter: submitter, retries: retries, retryUnit: time.Second}
}

type spenderRole struct {
	name    string
	address common.Address
}

// EnsureAllowances checks and, where short, grants deposit asset approval for
// the hub vault and the Diamond. The vault pulls the deposit during
// subscribe; the Diamond approval covers facets that move the asset
// themselves. Both approvals reuse the creation's payment context.
func (s *AllowanceService) EnsureAllowances(ctx context.Context, initiator common.Address, vault common.Address, deposit *big.Int, payment *clients.PaymentContext) error {
	spenders := []spenderRole{
		{name: "vault", address: vault},
		{name: "diamond", address: s.chain.DiamondAddress()},
	}

	for _, spender := range spenders {
		current, err := s.chain.DepositAssetAllowance(ctx, initiator, spender.address)
		if err != nil {
			return fmt.Errorf("read %s allowance: %w", spender.name, err)
		}
		if current.Cmp(deposit) >= 0 {
			logrus.WithFields(logrus.Fields{
				"initiator": initiator.Hex(),
				"spender":   spender.name,
			}).Debug("Allowance already sufficient")
			continue
		}
		if err := s.approveAndVerify(ctx, initiator, spender, deposit, payment); err != nil {
			return err
		}
	}
	return nil
}

func (s *AllowanceService) approveAndVerify(ctx context.Context, initiator common.Address, spender spenderRole, deposit *big.Int, payment *clients.PaymentContext) error {
	callData, err := clients.EncodeApprove(spender.address, clients.MaxUint256)
	if err != nil {
		return fmt.Errorf("encode approve: %w", err)
	}

	handle, err := s.submitter.SendOperation(ctx, initiator, clients.OperationCall{
		Target: s.chain.DepositAssetAddress(),
		Value:  clients.NewValue(nil),
		Data:   callData,
	}, payment)
	if err != nil {
		return &models.ApprovalError{Spender: spender.address.Hex(), Reason: err.Error()}
	}

	logrus.WithFields(logrus.Fields{
		"initiator": initiator.Hex(),
		"spender":   spender.name,
		"handle":    handle,
	}).Info("Approval operation submitted")

	if _, err := s.submitter.WaitForOperation(ctx, handle); err != nil {
		return &models.ApprovalError{Spender: spender.address.Hex(), Reason: err.Error()}
	}
	metrics.ApprovalsGranted.WithLabelValues(spender.name).Inc()

	// RPC nodes can serve a stale allowance right after inclusion. Re-read
	// with a growing backoff before declaring the approval lost.
	for attempt := 1; attempt <= s.retries; attempt++ {
		if !utils.SleepWithContext(ctx, time.Duration(attempt+1)*s.retryUnit) {
			return ctx.Err()
		}
		current, err := s.chain.DepositAssetAllowance(ctx, initiator, spender.address)
		if err != nil {
			logrus.WithError(err).WithField("spender", spender.name).Warn("Allowance verification read failed")
			continue
		}
		if current.Cmp(deposit) >= 0 {
			return nil
		}
	}
	return &models.ApprovalError{
		Spender: spender.address.Hex(),
		Reason:  "allowance not visible after approval confirmed",
	}
}
