package clients

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI fragments for the MeTokens Diamond and the ERC-20 deposit asset.
// Only the functions the orchestrator calls are declared.

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const diamondABIJSON = `[
	{"name":"subscribe","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"name","type":"string"},
		{"name":"symbol","type":"string"},
		{"name":"hubId","type":"uint256"},
		{"name":"assetsDeposited","type":"uint256"}
	],"outputs":[]},
	{"name":"getHubInfo","type":"function","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[
		{"name":"","type":"tuple","components":[
			{"name":"startTime","type":"uint256"},
			{"name":"endTime","type":"uint256"},
			{"name":"endCooldown","type":"uint256"},
			{"name":"refundRatio","type":"uint256"},
			{"name":"targetRefundRatio","type":"uint256"},
			{"name":"owner","type":"address"},
			{"name":"vault","type":"address"},
			{"name":"asset","type":"address"},
			{"name":"updating","type":"bool"},
			{"name":"reconfigure","type":"bool"},
			{"name":"active","type":"bool"}
		]}
	]},
	{"name":"getMeTokenInfo","type":"function","stateMutability":"view","inputs":[{"name":"meToken","type":"address"}],"outputs":[
		{"name":"","type":"tuple","components":[
			{"name":"owner","type":"address"},
			{"name":"hubId","type":"uint256"},
			{"name":"balancePooled","type":"uint256"},
			{"name":"balanceLocked","type":"uint256"},
			{"name":"startTime","type":"uint256"},
			{"name":"endTime","type":"uint256"},
			{"name":"targetHubId","type":"uint256"},
			{"name":"migration","type":"address"}
		]}
	]}
]`

// HubInfo mirrors the Diamond's HubInfo tuple.
type HubInfo struct {
	StartTime         *big.Int
	EndTime           *big.Int
	EndCooldown       *big.Int
	RefundRatio       *big.Int
	TargetRefundRatio *big.Int
	Owner             common.Address
	Vault             common.Address
	Asset             common.Address
	Updating          bool
	Reconfigure       bool
	Active            bool
}

// MeTokenInfo mirrors the Diamond's MeTokenInfo tuple.
type MeTokenInfo struct {
	Owner         common.Address
	HubId         *big.Int
	BalancePooled *big.Int
	BalanceLocked *big.Int
	StartTime     *big.Int
	EndTime       *big.Int
	TargetHubId   *big.Int
	Migration     common.Address
}

var (
	erc20ABI   abi.ABI
	diamondABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid erc20 abi: %v", err))
	}
	diamondABI, err = abi.JSON(strings.NewReader(diamondABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid diamond abi: %v", err))
	}
}

// EncodeApprove packs approve(spender, amount) call data.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// EncodeSubscribe packs subscribe(name, symbol, hubId, assetsDeposited) call data.
func EncodeSubscribe(name, symbol string, hubID *big.Int, assetsDeposited *big.Int) ([]byte, error) {
	return diamondABI.Pack("subscribe", name, symbol, hubID, assetsDeposited)
}

// MaxUint256 is the approval amount used for allowance amortization: approving
// the maximum once means later creations by the same initiator skip approval.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
