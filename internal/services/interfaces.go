package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
)

// ChainReader is the read-only chain surface the orchestrator depends on.
// *clients.ChainClient is the production implementation.
type ChainReader interface {
	DepositAssetBalance(ctx context.Context, account common.Address) (*big.Int, error)
	DepositAssetAllowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	HubInfo(ctx context.Context, hubID *big.Int) (*clients.HubInfo, error)
	MeTokenInfo(ctx context.Context, meToken common.Address) (*clients.MeTokenInfo, error)
	NativeBalance(ctx context.Context, account common.Address) (*big.Int, error)
	DiamondAddress() common.Address
	DepositAssetAddress() common.Address
}

// LifecyclePublisher pushes creation lifecycle events to the message bus.
// Publishing is best effort everywhere it is called.
type LifecyclePublisher interface {
	PublishCreationEvent(subject string, event *clients.CreationEvent) error
}

// StatePusher streams per-initiator creation state to connected clients.
type StatePusher interface {
	PushState(initiator string, state interface{})
}
