package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sirgawain0x/metoken-orchestrator/internal/clients"
	"github.com/sirgawain0x/metoken-orchestrator/internal/config"
	"github.com/sirgawain0x/metoken-orchestrator/internal/db"
	"github.com/sirgawain0x/metoken-orchestrator/internal/repository"
	"github.com/sirgawain0x/metoken-orchestrator/internal/services"
)

// ServiceContainer wires and owns every component of the orchestrator.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	PendingRepo repository.PendingOperationRepository
	RecordRepo  repository.MeTokenRecordRepository

	// Clients
	ChainClient   *clients.ChainClient
	WalletClient  *clients.SmartAccountClient
	Subgraph      *clients.SubgraphClient
	NATSClient    *clients.NATSClient
	Membership    clients.MembershipChecker

	// Services
	GasStrategy      *services.GasStrategy
	AllowanceService *services.AllowanceService
	PushService      *services.PushService
	RecordSync       *services.RecordSyncService
	PollingService   *services.PollingService
	CreationService  *services.CreationService
	RecoveryService  *services.RecoveryService
}

// Container is the process-wide instance.
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once. networkName selects which
// configured network the orchestrator runs against, either by name or, when
// the value is numeric, by chain ID.
func InitializeContainer(networkName string) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		logrus.Info("Initializing service container")

		var network *config.NetworkConfig
		var err error
		if chainID, perr := strconv.ParseInt(networkName, 10, 64); perr == nil {
			network, err = config.GetNetworkConfigByChainID(chainID)
		} else {
			network, err = config.GetNetworkConfig(networkName)
		}
		if err != nil {
			initErr = err
			return
		}
		cfg := config.AppConfig

		c := &ServiceContainer{DB: db.DB}
		c.PendingRepo = repository.NewPendingOperationRepository(c.DB)
		c.RecordRepo = repository.NewMeTokenRecordRepository(c.DB)

		if len(network.RPCEndpoints) == 0 {
			initErr = fmt.Errorf("network %s has no RPC endpoints", networkName)
			return
		}
		c.ChainClient, err = clients.NewChainClient(network.RPCEndpoints[0], network.DiamondContract, network.DAIContract)
		if err != nil {
			initErr = err
			return
		}
		// A Diamond address without code means the network config points at
		// the wrong chain. Warn loudly but keep starting; the RPC endpoint
		// may simply be lagging.
		probeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if deployed, cerr := c.ChainClient.HasCode(probeCtx, c.ChainClient.DiamondAddress()); cerr != nil {
			logrus.WithError(cerr).Warn("Could not verify Diamond contract code")
		} else if !deployed {
			logrus.WithField("diamond", network.DiamondContract).Warn("No contract code at the configured Diamond address")
		}
		cancel()
		c.WalletClient, err = clients.NewSmartAccountClient(network.BundlerURL)
		if err != nil {
			initErr = err
			return
		}
		c.Subgraph = clients.NewSubgraphClient(cfg.Subgraph.URL, cfg.Subgraph.APIKey)
		if network.MembershipLock != "" {
			c.Membership = clients.NewLockMembershipClient(c.ChainClient.Eth(), network.MembershipLock)
		}

		// NATS is optional: a missing broker degrades to no lifecycle events.
		if cfg.NATS.URL != "" {
			nc, err := clients.NewNATSClient(cfg.NATS.URL, cfg.NATS.StreamName, cfg.NATS.Timeout)
			if err != nil {
				logrus.WithError(err).Warn("NATS unavailable, lifecycle events disabled")
			} else {
				c.NATSClient = nc
			}
		}

		orch := cfg.Orchestrator
		c.GasStrategy = services.NewGasStrategy(
			c.ChainClient, c.Membership,
			cfg.Paymaster.SponsoredPolicyID, cfg.Paymaster.USDCPolicyID, network.USDCContract,
			orch.MinGas(),
		)
		c.AllowanceService = services.NewAllowanceService(c.ChainClient, c.WalletClient, orch.AllowanceRetryCount())
		c.PushService = services.NewPushService()

		var publisher services.LifecyclePublisher
		if c.NATSClient != nil {
			publisher = c.NATSClient
		}
		c.RecordSync = services.NewRecordSyncService(c.RecordRepo, publisher)
		c.PollingService = services.NewPollingService(
			c.PendingRepo, c.RecordRepo, c.ChainClient, c.Subgraph, c.RecordSync, c.PushService,
			orch.PollIntervalDuration(), orch.PollBudget(), orch.SubgraphIndexLag(),
		)
		c.CreationService = services.NewCreationService(
			c.PendingRepo, c.ChainClient, c.WalletClient,
			c.GasStrategy, c.AllowanceService, c.PollingService, c.RecordSync,
			c.PushService, publisher,
			orch.SubmitTimeoutDuration(), orch.ConfirmTimeoutDuration(),
		)
		c.RecoveryService = services.NewRecoveryService(
			c.PendingRepo, c.PollingService, c.WalletClient, publisher,
			orch.RecoveryIntervalDuration(), orch.PendingMaxAge(), orch.RecoveryBudget(),
		)

		Container = c
		logrus.Info("Service container initialized")
	})

	return Container, initErr
}

// Start launches the background services.
func (c *ServiceContainer) Start() {
	c.RecoveryService.Start()
}

// Shutdown stops background work and closes connections.
func (c *ServiceContainer) Shutdown() {
	if c.RecoveryService != nil {
		c.RecoveryService.Stop()
	}
	if c.PollingService != nil {
		c.PollingService.Stop()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.WalletClient != nil {
		c.WalletClient.Close()
	}
	if c.ChainClient != nil {
		c.ChainClient.Close()
	}
}
