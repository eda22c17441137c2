package models

import (
	"fmt"
	"math/big"
)

// InsufficientFundsError deposit asset balance below the requested deposit.
// Raised by the preflight check before anything is submitted.
type InsufficientFundsError struct {
	Account   string
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient DAI balance: have %s wei, need %s wei (account %s)",
		e.Available.String(), e.Required.String(), e.Account)
}

// DeploymentFundingRequiredError the smart account has no code yet; paymasters
// cannot sponsor the deploying operation and the account holds too little native
// token to self-fund it.
type DeploymentFundingRequiredError struct {
	Account   string
	Required  *big.Int
	Available *big.Int
}

func (e *DeploymentFundingRequiredError) Error() string {
	return fmt.Sprintf("account deployment requires funding: send at least %s wei ETH to %s (current balance %s wei)",
		e.Required.String(), e.Account, e.Available.String())
}

// InsufficientGasError paymaster payment failed and the account cannot cover
// self-funded gas either.
type InsufficientGasError struct {
	Account   string
	Required  *big.Int
	Available *big.Int
}

func (e *InsufficientGasError) Error() string {
	return fmt.Sprintf("gas payment failed: account %s holds %s wei ETH but needs at least %s wei, fund it with USDC or ETH",
		e.Account, e.Available.String(), e.Required.String())
}

// SponsorshipMisconfiguredError the paymaster rejected an operation from an
// account that is entitled to full sponsorship. Not user-fixable; falling back
// to self-funded gas would silently charge a member who was promised free gas.
type SponsorshipMisconfiguredError struct {
	Account  string
	PolicyID string
}

func (e *SponsorshipMisconfiguredError) Error() string {
	return fmt.Sprintf("paymaster rejected sponsored operation for member account %s (policy %s): paymaster configuration issue, contact support",
		e.Account, e.PolicyID)
}

// ApprovalError a token approval was submitted but could not be confirmed, or
// its effect never became visible within the verification retry budget.
type ApprovalError struct {
	Spender string
	Reason  string
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("DAI approval for spender %s failed: %s", e.Spender, e.Reason)
}
