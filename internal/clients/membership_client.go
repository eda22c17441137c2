package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const lockABIJSON = `[
	{"name":"getHasValidKey","type":"function","stateMutability":"view","inputs":[{"name":"_keyOwner","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

var lockABI abi.ABI

func init() {
	var err error
	lockABI, err = abi.JSON(strings.NewReader(lockABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid lock abi: %v", err))
	}
}

// MembershipChecker reports whether an account holds a valid membership key.
// Membership decides which gas sponsorship policy applies.
type MembershipChecker interface {
	IsMember(ctx context.Context, account common.Address) (bool, error)
}

// LockMembershipClient checks membership against an on-chain lock contract.
type LockMembershipClient struct {
	eth  *ethclient.Client
	lock common.Address
}

// NewLockMembershipClient binds the membership lock contract on an existing
// chain connection.
func NewLockMembershipClient(eth *ethclient.Client, lock string) *LockMembershipClient {
	return &LockMembershipClient{eth: eth, lock: common.HexToAddress(lock)}
}

// IsMember returns true when the account holds an unexpired key.
func (c *LockMembershipClient) IsMember(ctx context.Context, account common.Address) (bool, error) {
	data, err := lockABI.Pack("getHasValidKey", account)
	if err != nil {
		return false, fmt.Errorf("pack getHasValidKey: %w", err)
	}
	res, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.lock, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call getHasValidKey: %w", err)
	}
	out, err := lockABI.Unpack("getHasValidKey", res)
	if err != nil {
		return false, fmt.Errorf("unpack getHasValidKey: %w", err)
	}
	return out[0].(bool), nil
}
