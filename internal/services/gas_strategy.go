package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/metrics"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
)

// GasStrategy picks the payment context for a user operation and decides what
// happens when a submission fails. Members get fully sponsored gas, everyone
// else pays gas in USDC through the token paymaster, and when neither policy
// is configured the account pays from its native balance.
type GasStrategy struct {
	chain           ChainReader
	membership      clients.MembershipChecker
	sponsoredPolicy string
	usdcPolicy      string
	usdcToken       string
	minGas          *big.Int
}

// NewGasStrategy wires the strategy from policy configuration.
func NewGasStrategy(chain ChainReader, membership clients.MembershipChecker, sponsoredPolicy, usdcPolicy, usdcToken string, minGas *big.Int) *GasStrategy {
	return &GasStrategy{
		chain:           chain,
		membership:      membership,
		sponsoredPolicy: sponsoredPolicy,
		usdcPolicy:      usdcPolicy,
		usdcToken:       usdcToken,
		minGas:          minGas,
	}
}

// SelectPaymentContext resolves the payment context for account. The returned
// bool reports membership so failure handling can tell the two sponsored
// paths apart. A membership check error falls back to the non-member path
// rather than blocking the creation.
func (g *GasStrategy) SelectPaymentContext(ctx context.Context, account common.Address) (*clients.PaymentContext, bool, error) {
	isMember := false
	if g.membership != nil {
		member, err := g.membership.IsMember(ctx, account)
		if err != nil {
			logrus.WithError(err).WithField("account", account.Hex()).Warn("Membership check failed, treating as non-member")
		} else {
			isMember = member
		}
	}

	if isMember && g.sponsoredPolicy != "" {
		return &clients.PaymentContext{PolicyID: g.sponsoredPolicy}, true, nil
	}
	if g.usdcPolicy != "" {
		return &clients.PaymentContext{PolicyID: g.usdcPolicy, Token: g.usdcToken}, isMember, nil
	}
	return nil, isMember, nil
}

// FallbackDecision says how a failed submission should proceed.
type FallbackDecision int

const (
	// FallbackNone means the error is terminal and must be surfaced.
	FallbackNone FallbackDecision = iota
	// FallbackSelfFunded means retry exactly once with no payment context.
	FallbackSelfFunded
)

// HandleSubmissionFailure classifies a submission error and decides the next
// step. Branch order matters: deployment errors are checked before paymaster
// errors because an undeployed account surfaces both signatures at once.
func (g *GasStrategy) HandleSubmissionFailure(ctx context.Context, account common.Address, isMember bool, payment *clients.PaymentContext, submitErr error) (FallbackDecision, error) {
	kind := clients.ClassifySubmissionError(submitErr)
	metrics.SubmissionFailures.WithLabelValues(kind.String()).Inc()

	switch kind {
	case clients.FailureDeploymentRequired:
		balance, required, ok, err := g.hasMinGas(ctx, account)
		if err != nil {
			return FallbackNone, fmt.Errorf("deployment gas check: %w", err)
		}
		if !ok {
			return FallbackNone, &models.DeploymentFundingRequiredError{
				Account:   account.Hex(),
				Required:  required,
				Available: balance,
			}
		}
		logrus.WithField("account", account.Hex()).Info("Account deployment needed, retrying self-funded")
		metrics.GasFallbacks.Inc()
		return FallbackSelfFunded, nil

	case clients.FailurePaymaster, clients.FailureTimeout:
		// A submission that times out under sponsorship is treated exactly
		// like a paymaster rejection: the sponsoring path is suspect, so the
		// account gets one self-funded attempt if it can afford gas.
		if payment == nil {
			// No sponsorship was in play. Surface the original error; a
			// timeout without a payment context has nothing to fall back to.
			return FallbackNone, submitErr
		}
		if isMember {
			// A member's sponsored operation should never hit paymaster
			// rejection. Falling back would silently charge the member, so
			// this is terminal and needs operator attention.
			return FallbackNone, &models.SponsorshipMisconfiguredError{
				Account:  account.Hex(),
				PolicyID: payment.PolicyID,
			}
		}
		balance, required, ok, err := g.hasMinGas(ctx, account)
		if err != nil {
			return FallbackNone, fmt.Errorf("fallback gas check: %w", err)
		}
		if !ok {
			return FallbackNone, &models.InsufficientGasError{
				Account:   account.Hex(),
				Required:  required,
				Available: balance,
			}
		}
		logrus.WithFields(logrus.Fields{
			"account": account.Hex(),
			"policy":  payment.PolicyID,
			"kind":    kind.String(),
		}).Info("Sponsored submission failed, retrying self-funded")
		metrics.GasFallbacks.Inc()
		return FallbackSelfFunded, nil

	default:
		return FallbackNone, submitErr
	}
}

func (g *GasStrategy) hasMinGas(ctx context.Context, account common.Address) (balance, required *big.Int, ok bool, err error) {
	balance, err = g.chain.NativeBalance(ctx, account)
	if err != nil {
		return nil, nil, false, err
	}
	required = g.minGas
	return balance, required, balance.Cmp(required) >= 0, nil
}
