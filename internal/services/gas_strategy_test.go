package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
)

var testAccount = common.HexToAddress("0xAaaaAAAAaAAAaaaAaAAAaaAAaaaAAAAAAaaaaaa1")

func newTestGasStrategy(chain *fakeChain, member bool) *GasStrategy {
	return NewGasStrategy(chain, &fakeMembership{member: member}, "policy-sponsored", "policy-usdc", "0x8335", big.NewInt(1000))
}

func TestSelectPaymentContextMember(t *testing.T) {
	g := newTestGasStrategy(newFakeChain(), true)
	payment, isMember, err := g.SelectPaymentContext(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isMember {
		t.Fatal("expected member")
	}
	if payment == nil || payment.PolicyID != "policy-sponsored" || payment.Token != "" {
		t.Fatalf("expected sponsored policy, got %+v", payment)
	}
}

func TestSelectPaymentContextNonMember(t *testing.T) {
	g := newTestGasStrategy(newFakeChain(), false)
	payment, isMember, err := g.SelectPaymentContext(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isMember {
		t.Fatal("expected non-member")
	}
	if payment == nil || payment.PolicyID != "policy-usdc" || payment.Token == "" {
		t.Fatalf("expected usdc policy with token, got %+v", payment)
	}
}

func TestSelectPaymentContextMembershipErrorFallsBack(t *testing.T) {
	chain := newFakeChain()
	g := NewGasStrategy(chain, &fakeMembership{err: errors.New("rpc down")}, "policy-sponsored", "policy-usdc", "0x8335", big.NewInt(1000))
	payment, isMember, err := g.SelectPaymentContext(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isMember || payment == nil || payment.PolicyID != "policy-usdc" {
		t.Fatalf("expected non-member usdc fallback, got member=%v payment=%+v", isMember, payment)
	}
}

func TestSelectPaymentContextNoPolicies(t *testing.T) {
	g := NewGasStrategy(newFakeChain(), &fakeMembership{}, "", "", "", big.NewInt(1000))
	payment, _, err := g.SelectPaymentContext(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment != nil {
		t.Fatalf("expected self-funded (nil payment), got %+v", payment)
	}
}

func TestHandleSubmissionFailureDeploymentUnfunded(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(10) // below min gas
	g := newTestGasStrategy(chain, false)

	submitErr := errors.New("AA13 initCode failed or OOG")
	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc"}, submitErr)
	if decision != FallbackNone {
		t.Fatal("expected no fallback")
	}
	var funding *models.DeploymentFundingRequiredError
	if !errors.As(err, &funding) {
		t.Fatalf("expected DeploymentFundingRequiredError, got %v", err)
	}
}

func TestHandleSubmissionFailureDeploymentFunded(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(2000)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, nil, errors.New("account not deployed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != FallbackSelfFunded {
		t.Fatal("expected self-funded fallback")
	}
}

// A deployment error that also mentions the paymaster must take the
// deployment branch, not the paymaster branch.
func TestHandleSubmissionFailureDeploymentBeatsPaymaster(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(10)
	g := newTestGasStrategy(chain, true)

	submitErr := errors.New("AA13 initCode failed: paymaster requires deployed sender")
	_, err := g.HandleSubmissionFailure(context.Background(), testAccount, true, &clients.PaymentContext{PolicyID: "policy-sponsored"}, submitErr)
	var funding *models.DeploymentFundingRequiredError
	if !errors.As(err, &funding) {
		t.Fatalf("expected DeploymentFundingRequiredError, got %v", err)
	}
}

func TestHandleSubmissionFailureMemberSponsorshipIsTerminal(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(1_000_000) // plenty of gas, still no fallback
	g := newTestGasStrategy(chain, true)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, true, &clients.PaymentContext{PolicyID: "policy-sponsored"}, errors.New("AA31 paymaster deposit too low"))
	if decision != FallbackNone {
		t.Fatal("expected no fallback for member sponsorship failure")
	}
	var misconfigured *models.SponsorshipMisconfiguredError
	if !errors.As(err, &misconfigured) {
		t.Fatalf("expected SponsorshipMisconfiguredError, got %v", err)
	}
	if misconfigured.PolicyID != "policy-sponsored" {
		t.Fatalf("wrong policy in error: %s", misconfigured.PolicyID)
	}
}

func TestHandleSubmissionFailureNonMemberPaymasterFallsBack(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(2000)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc", Token: "0x8335"}, errors.New("AA33 reverted (or OOG)"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != FallbackSelfFunded {
		t.Fatal("expected self-funded fallback")
	}
}

func TestHandleSubmissionFailureNonMemberPaymasterUnfunded(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(10)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc"}, errors.New("AA33 reverted (or OOG)"))
	if decision != FallbackNone {
		t.Fatal("expected no fallback")
	}
	var gasErr *models.InsufficientGasError
	if !errors.As(err, &gasErr) {
		t.Fatalf("expected InsufficientGasError, got %v", err)
	}
}

func TestHandleSubmissionFailurePaymasterWithoutPaymentPropagates(t *testing.T) {
	g := newTestGasStrategy(newFakeChain(), false)
	submitErr := errors.New("AA33 reverted (or OOG)")
	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, nil, submitErr)
	if decision != FallbackNone || !errors.Is(err, submitErr) {
		t.Fatalf("expected original error propagated, got decision=%v err=%v", decision, err)
	}
}

func TestHandleSubmissionFailureGenericPropagates(t *testing.T) {
	g := newTestGasStrategy(newFakeChain(), false)
	submitErr := errors.New("execution reverted: hub inactive")
	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc"}, submitErr)
	if decision != FallbackNone || !errors.Is(err, submitErr) {
		t.Fatalf("expected original error propagated, got decision=%v err=%v", decision, err)
	}
}

func TestHandleSubmissionFailureTimeoutNonMemberFallsBack(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(2000)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc", Token: "0x8335"}, ErrSubmitTimeout)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != FallbackSelfFunded {
		t.Fatal("expected self-funded fallback after a sponsored submission timeout")
	}
}

func TestHandleSubmissionFailureTimeoutNonMemberUnfunded(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(10)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, &clients.PaymentContext{PolicyID: "policy-usdc"}, ErrSubmitTimeout)
	if decision != FallbackNone {
		t.Fatal("expected no fallback")
	}
	var gasErr *models.InsufficientGasError
	if !errors.As(err, &gasErr) {
		t.Fatalf("expected InsufficientGasError, got %v", err)
	}
}

func TestHandleSubmissionFailureTimeoutMemberIsTerminal(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(1_000_000)
	g := newTestGasStrategy(chain, true)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, true, &clients.PaymentContext{PolicyID: "policy-sponsored"}, ErrSubmitTimeout)
	if decision != FallbackNone {
		t.Fatal("expected no fallback for a member submission timeout")
	}
	var misconfigured *models.SponsorshipMisconfiguredError
	if !errors.As(err, &misconfigured) {
		t.Fatalf("expected SponsorshipMisconfiguredError, got %v", err)
	}
}

func TestHandleSubmissionFailureTimeoutWithoutPaymentPropagates(t *testing.T) {
	chain := newFakeChain()
	chain.nativeBalance = big.NewInt(1_000_000)
	g := newTestGasStrategy(chain, false)

	decision, err := g.HandleSubmissionFailure(context.Background(), testAccount, false, nil, ErrSubmitTimeout)
	if decision != FallbackNone || !errors.Is(err, ErrSubmitTimeout) {
		t.Fatalf("expected the timeout propagated, got decision=%v err=%v", decision, err)
	}
}
