package services

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/models"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
)

const (
	testInitiator = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1"
	testMeToken   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2"
)

func newTestPoller(chain *fakeChain, indexer *fakeIndexer, budget int) (*PollingService, *repository.MemoryPendingOperationRepository, *fakeRecordRepo, *fakePusher) {
	repo := repository.NewMemoryPendingOperationRepository()
	records := newFakeRecordRepo()
	pusher := &fakePusher{}
	syncSvc := NewRecordSyncService(records, nil)
	poller := NewPollingService(repo, records, chain, indexer, syncSvc, pusher,
		time.Millisecond, budget, 0)
	return poller, repo, records, pusher
}

func pendingOp(status models.PendingOperationStatus) *models.PendingOperation {
	return &models.PendingOperation{
		OperationHandle: "0xparked0",
		Initiator:       testInitiator,
		Status:          status,
		Name:            "My Token",
		Symbol:          "MYT",
		HubID:           1,
		AssetsDeposited: "0",
		CreatedAt:       time.Now(),
	}
}

func TestPollUntilFoundStopsOnMatch(t *testing.T) {
	chain := newFakeChain()
	chain.meTokenOwners[common.HexToAddress(testMeToken)] = common.HexToAddress(testInitiator)

	// Six empty pages, then the match shows up.
	pages := make([][]clients.SubscribeEvent, 7)
	pages[6] = []clients.SubscribeEvent{{MeToken: testMeToken}}
	indexer := &fakeIndexer{pages: pages}

	poller, _, _, _ := newTestPoller(chain, indexer, 30)
	op := pendingOp(models.PendingOperationStatusTimeout)

	address, attempts, err := poller.PollUntilFound(context.Background(), op, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if address != testMeToken {
		t.Fatalf("wrong address: %s", address)
	}
	if attempts != 7 {
		t.Fatalf("expected resolution on attempt 7, got %d", attempts)
	}
	if indexer.callCount() != 7 {
		t.Fatalf("polling must stop on the attempt that found the result, scans=%d", indexer.callCount())
	}
}

func TestPollUntilFoundBudgetExhausted(t *testing.T) {
	indexer := &fakeIndexer{} // never returns anything
	poller, _, _, _ := newTestPoller(newFakeChain(), indexer, 3)
	op := pendingOp(models.PendingOperationStatusTimeout)

	_, attempts, err := poller.PollUntilFound(context.Background(), op, 3)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestScanSkipsMeTokensClaimedByOthers(t *testing.T) {
	chain := newFakeChain()
	other := "0xccccccccccccccccccccccccccccccccccccccc3"
	chain.meTokenOwners[common.HexToAddress(testMeToken)] = common.HexToAddress(testInitiator)

	indexer := &fakeIndexer{pages: [][]clients.SubscribeEvent{{
		{MeToken: other},     // recorded for someone else, must be skipped
		{MeToken: testMeToken},
	}}}

	poller, _, records, _ := newTestPoller(chain, indexer, 5)
	records.Upsert(context.Background(), &models.MeTokenRecord{
		ID: "1", Address: other, Owner: "0xddddddddddddddddddddddddddddddddddddddd4",
	})

	address, found, err := poller.scanForOwner(context.Background(), testInitiator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || address != testMeToken {
		t.Fatalf("expected %s, got %s found=%v", testMeToken, address, found)
	}
}

func TestStartPollingIdempotent(t *testing.T) {
	// An indexer that never resolves keeps the first poll active.
	indexer := &fakeIndexer{}
	poller, _, _, _ := newTestPoller(newFakeChain(), indexer, 1000)
	defer poller.Stop()

	op := pendingOp(models.PendingOperationStatusTimeout)
	if !poller.StartPolling(op) {
		t.Fatal("first start must begin polling")
	}
	if poller.StartPolling(op) {
		t.Fatal("second start for the same handle must be a no-op")
	}
}

func TestResolveFoundWritesResultOnceAndRetires(t *testing.T) {
	chain := newFakeChain()
	poller, repo, records, pusher := newTestPoller(chain, &fakeIndexer{}, 5)

	op := pendingOp(models.PendingOperationStatusTimeout)
	if err := repo.Save(context.Background(), op); err != nil {
		t.Fatalf("save: %v", err)
	}

	poller.resolveFound(context.Background(), op, testMeToken, 2)

	if op.Status != models.PendingOperationStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", op.Status)
	}
	if op.MeTokenAddress != testMeToken {
		t.Fatalf("result address not set: %q", op.MeTokenAddress)
	}
	if records.get(testMeToken) == nil {
		t.Fatal("record sync did not run")
	}
	if _, err := repo.GetByHandle(context.Background(), op.OperationHandle); err != repository.ErrOperationNotFound {
		t.Fatalf("resolved entry must be retired, got %v", err)
	}

	statuses := pusher.statuses()
	if len(statuses) == 0 || statuses[len(statuses)-1] != models.CreationStatusSuccess {
		t.Fatalf("expected final success push, got %v", statuses)
	}

	// A later stale resolution must not change the recorded address.
	stale := "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee5"
	poller.resolveFound(context.Background(), op, stale, 1)
	if op.MeTokenAddress != testMeToken {
		t.Fatalf("result address was overwritten: %s", op.MeTokenAddress)
	}
}
