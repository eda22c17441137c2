package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// PaymentContext selects how a user operation's gas is paid. A nil context
// means the account pays its own gas from its native balance.
type PaymentContext struct {
	// PolicyID identifies the sponsorship policy the paymaster should apply.
	PolicyID string `json:"policyId"`
	// Token, when set, pays gas in the given ERC-20 instead of full sponsorship.
	Token string `json:"token,omitempty"`
}

// OperationCall is a single contract call carried by a user operation.
type OperationCall struct {
	Target common.Address `json:"target"`
	Value  *hexutil.Big   `json:"value"`
	Data   hexutil.Bytes  `json:"data"`
}

// OperationSubmitter abstracts the account-abstraction signing service. Wait
// may block until the operation is bundled and mined; callers bound it with
// their own deadline and keep the handle for later receipt lookups.
type OperationSubmitter interface {
	SendOperation(ctx context.Context, initiator common.Address, call OperationCall, payment *PaymentContext) (string, error)
	WaitForOperation(ctx context.Context, handle string) (string, error)
	OperationTransaction(ctx context.Context, handle string) (string, bool, error)
}

type sendOperationRequest struct {
	From    common.Address  `json:"from"`
	Call    OperationCall   `json:"call"`
	Payment *PaymentContext `json:"payment,omitempty"`
}

type sendOperationResponse struct {
	Hash string `json:"hash"`
}

type operationReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Success         bool   `json:"success"`
}

// SmartAccountClient talks JSON-RPC to the wallet service that owns the smart
// account keys. It never sees private keys itself; it forwards calls and the
// wallet service signs, bundles, and relays them.
type SmartAccountClient struct {
	rpc *rpc.Client
}

// NewSmartAccountClient dials the wallet service endpoint.
func NewSmartAccountClient(url string) (*SmartAccountClient, error) {
	client, err := rpc.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet service: %w", err)
	}
	logrus.WithField("url", url).Info("Smart account client connected")
	return &SmartAccountClient{rpc: client}, nil
}

// Close releases the underlying connection.
func (c *SmartAccountClient) Close() {
	c.rpc.Close()
}

// SendOperation submits a single-call user operation for the initiator's smart
// account and returns the operation handle. The handle identifies the
// operation for receipt lookups; it is not the transaction hash.
func (c *SmartAccountClient) SendOperation(ctx context.Context, initiator common.Address, call OperationCall, payment *PaymentContext) (string, error) {
	req := sendOperationRequest{From: initiator, Call: call, Payment: payment}
	var resp sendOperationResponse
	if err := c.rpc.CallContext(ctx, &resp, "wallet_sendUserOperation", req); err != nil {
		return "", fmt.Errorf("send user operation: %w", err)
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("wallet service returned empty operation hash")
	}
	return resp.Hash, nil
}

// WaitForOperation blocks until the operation identified by handle is included
// in a block, then returns the transaction hash. Under bundler congestion this
// can hang well past inclusion; callers race it against a deadline.
func (c *SmartAccountClient) WaitForOperation(ctx context.Context, handle string) (string, error) {
	var txHash string
	if err := c.rpc.CallContext(ctx, &txHash, "wallet_waitForUserOperationTransaction", handle); err != nil {
		return "", fmt.Errorf("wait for user operation %s: %w", handle, err)
	}
	return txHash, nil
}

// OperationTransaction does a single non-blocking receipt lookup. The second
// return is false while the operation is still pending.
func (c *SmartAccountClient) OperationTransaction(ctx context.Context, handle string) (string, bool, error) {
	var receipt *operationReceipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", handle); err != nil {
		return "", false, fmt.Errorf("get user operation receipt %s: %w", handle, err)
	}
	if receipt == nil || receipt.TransactionHash == "" {
		return "", false, nil
	}
	return receipt.TransactionHash, true, nil
}

// NewValue wraps a wei amount for an OperationCall.
func NewValue(v *big.Int) *hexutil.Big {
	if v == nil {
		v = big.NewInt(0)
	}
	return (*hexutil.Big)(v)
}
