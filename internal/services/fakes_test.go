package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
)

type fakeChain struct {
	mu sync.Mutex

	daiBalances   map[common.Address]*big.Int
	daiBalanceErr error
	allowances    map[string]*big.Int // owner|spender
	hub           *clients.HubInfo
	hubErr        error
	meTokenOwners map[common.Address]common.Address
	nativeBalance *big.Int

	diamond common.Address
	dai     common.Address
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		daiBalances:   make(map[common.Address]*big.Int),
		allowances:    make(map[string]*big.Int),
		meTokenOwners: make(map[common.Address]common.Address),
		nativeBalance: big.NewInt(0),
		hub: &clients.HubInfo{
			Vault:  common.HexToAddress("0x1000000000000000000000000000000000000001"),
			Active: true,
		},
		diamond: common.HexToAddress("0xba5502db2aC2cBff189965e991C07109B14eB3f5"),
		dai:     common.HexToAddress("0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"),
	}
}

func allowanceKey(owner, spender common.Address) string {
	return strings.ToLower(owner.Hex() + "|" + spender.Hex())
}

func (f *fakeChain) DepositAssetBalance(_ context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.daiBalanceErr != nil {
		return nil, f.daiBalanceErr
	}
	if b, ok := f.daiBalances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) DepositAssetAllowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.allowances[allowanceKey(owner, spender)]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) setAllowance(owner, spender common.Address, v *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allowances[allowanceKey(owner, spender)] = v
}

func (f *fakeChain) HubInfo(_ context.Context, _ *big.Int) (*clients.HubInfo, error) {
	if f.hubErr != nil {
		return nil, f.hubErr
	}
	return f.hub, nil
}

func (f *fakeChain) MeTokenInfo(_ context.Context, meToken common.Address) (*clients.MeTokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.meTokenOwners[meToken]
	if !ok {
		return &clients.MeTokenInfo{Owner: common.Address{}}, nil
	}
	return &clients.MeTokenInfo{Owner: owner}, nil
}

func (f *fakeChain) NativeBalance(_ context.Context, _ common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.nativeBalance), nil
}

func (f *fakeChain) DiamondAddress() common.Address      { return f.diamond }
func (f *fakeChain) DepositAssetAddress() common.Address { return f.dai }

type sentOperation struct {
	call    clients.OperationCall
	payment *clients.PaymentContext
}

// fakeSubmitter scripts submission results in order. When the script runs
// out, sends succeed with generated handles.
type fakeSubmitter struct {
	mu        sync.Mutex
	sent      []sentOperation
	sendErrs  []error
	sendHangs []bool        // per-send, a true entry blocks until sendFree closes
	sendFree  chan struct{} // releases hung sends, closed by the test
	waitTx    string
	waitErr   error
	waitBlock chan struct{} // non-nil makes WaitForOperation hang until closed
	receipts  map[string]string
}

func (f *fakeSubmitter) SendOperation(ctx context.Context, _ common.Address, call clients.OperationCall, payment *clients.PaymentContext) (string, error) {
	f.mu.Lock()
	n := len(f.sent)
	f.sent = append(f.sent, sentOperation{call: call, payment: payment})
	hang := n < len(f.sendHangs) && f.sendHangs[n]
	free := f.sendFree
	f.mu.Unlock()

	if hang {
		select {
		case <-free:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n < len(f.sendErrs) && f.sendErrs[n] != nil {
		return "", f.sendErrs[n]
	}
	return fmt.Sprintf("0xhandle%d", n), nil
}

func (f *fakeSubmitter) WaitForOperation(ctx context.Context, _ string) (string, error) {
	if f.waitBlock != nil {
		select {
		case <-f.waitBlock:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.waitErr != nil {
		return "", f.waitErr
	}
	if f.waitTx == "" {
		return "0xtx1", nil
	}
	return f.waitTx, nil
}

func (f *fakeSubmitter) OperationTransaction(_ context.Context, handle string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.receipts[handle]
	return tx, ok, nil
}

func (f *fakeSubmitter) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSubmitter) sentAt(i int) sentOperation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

// fakeIndexer returns one scripted page per call and repeats the last page
// once the script is exhausted.
type fakeIndexer struct {
	mu    sync.Mutex
	pages [][]clients.SubscribeEvent
	calls int
}

func (f *fakeIndexer) RecentSubscribes(_ context.Context, _, _ int) ([]clients.SubscribeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.pages) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.pages) {
		idx = len(f.pages) - 1
	}
	return f.pages[idx], nil
}

func (f *fakeIndexer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[string]*models.MeTokenRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[string]*models.MeTokenRecord)}
}

func (f *fakeRecordRepo) Upsert(_ context.Context, record *models.MeTokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *record
	f.records[strings.ToLower(record.Address)] = &clone
	return nil
}

func (f *fakeRecordRepo) GetByAddress(_ context.Context, address string) (*models.MeTokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[strings.ToLower(address)]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeRecordRepo) FindByOwner(_ context.Context, owner string) ([]*models.MeTokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MeTokenRecord
	for _, r := range f.records {
		if strings.EqualFold(r.Owner, owner) {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) get(address string) *models.MeTokenRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[strings.ToLower(address)]
}

type fakePusher struct {
	mu     sync.Mutex
	states []*models.CreationAttemptState
}

func (f *fakePusher) PushState(_ string, state interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := state.(*models.CreationAttemptState); ok {
		f.states = append(f.states, s)
	}
}

func (f *fakePusher) statuses() []models.CreationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CreationStatus, 0, len(f.states))
	for _, s := range f.states {
		out = append(out, s.Status)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events map[string][]*clients.CreationEvent
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{events: make(map[string][]*clients.CreationEvent)}
}

func (f *fakePublisher) PublishCreationEvent(subject string, event *clients.CreationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[subject] = append(f.events[subject], event)
	return nil
}

func (f *fakePublisher) count(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events[subject])
}

type fakeMembership struct {
	member bool
	err    error
}

func (f *fakeMembership) IsMember(_ context.Context, _ common.Address) (bool, error) {
	return f.member, f.err
}
