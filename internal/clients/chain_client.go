package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ChainClient performs read-only calls against the target network: deposit
// asset balances and allowances, Diamond hub and MeToken lookups, native
// balances and account code.
type ChainClient struct {
	eth     *ethclient.Client
	diamond common.Address
	dai     common.Address
}

// NewChainClient dials rpcURL and binds the Diamond and deposit asset addresses.
func NewChainClient(rpcURL string, diamond, dai string) (*ChainClient, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"rpc":     rpcURL,
		"diamond": diamond,
	}).Info("Chain client connected")
	return &ChainClient{
		eth:     eth,
		diamond: common.HexToAddress(diamond),
		dai:     common.HexToAddress(dai),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *ChainClient) Close() {
	c.eth.Close()
}

// Eth exposes the underlying connection for clients that share it.
func (c *ChainClient) Eth() *ethclient.Client {
	return c.eth
}

// DiamondAddress returns the bound Diamond contract address.
func (c *ChainClient) DiamondAddress() common.Address {
	return c.diamond
}

// DepositAssetAddress returns the bound deposit asset (DAI) address.
func (c *ChainClient) DepositAssetAddress() common.Address {
	return c.dai
}

func (c *ChainClient) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// DepositAssetBalance returns the DAI balance of account.
func (c *ChainClient) DepositAssetBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.dai, erc20ABI, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// DepositAssetAllowance returns the DAI allowance owner has granted spender.
func (c *ChainClient) DepositAssetAllowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.dai, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// HubInfo returns the Diamond's hub record for hubID. The vault address in the
// result is the primary spender that needs deposit asset approval.
func (c *ChainClient) HubInfo(ctx context.Context, hubID *big.Int) (*HubInfo, error) {
	out, err := c.call(ctx, c.diamond, diamondABI, "getHubInfo", hubID)
	if err != nil {
		return nil, err
	}
	info := abi.ConvertType(out[0], new(HubInfo)).(*HubInfo)
	return info, nil
}

// MeTokenInfo returns the Diamond's registry record for a MeToken address.
// A zero owner means the address is not a registered MeToken.
func (c *ChainClient) MeTokenInfo(ctx context.Context, meToken common.Address) (*MeTokenInfo, error) {
	out, err := c.call(ctx, c.diamond, diamondABI, "getMeTokenInfo", meToken)
	if err != nil {
		return nil, err
	}
	info := abi.ConvertType(out[0], new(MeTokenInfo)).(*MeTokenInfo)
	return info, nil
}

// NativeBalance returns the account's native token balance at the latest block.
func (c *ChainClient) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", account.Hex(), err)
	}
	return bal, nil
}

// HasCode reports whether the account has deployed contract code. Counterfactual
// smart accounts return false until their first sponsored or funded operation.
func (c *ChainClient) HasCode(ctx context.Context, account common.Address) (bool, error) {
	code, err := c.eth.CodeAt(ctx, account, nil)
	if err != nil {
		return false, fmt.Errorf("code of %s: %w", account.Hex(), err)
	}
	return len(code) > 0, nil
}
