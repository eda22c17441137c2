// MeTokens protocol contract address defaults.
package config

// Base mainnet deployment of the MeTokens protocol. Overridable per network in
// config.yaml; these are the addresses the frontend has always pointed at.
const (
	DefaultDiamondContract = "0xba5502db2aC2cBff189965e991C07109B14eB3f5"
	DefaultFactoryContract = "0x7BE650f4AA109377c1bBbEE0851CF72A8e7E915C"
	DefaultDAIContract     = "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb"
	DefaultUSDCContract    = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	// ERC-4337 v0.6 EntryPoint, same address on every chain.
	DefaultEntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
)

// ApplyContractDefaults fills in any contract address a network omitted.
func ApplyContractDefaults(network *NetworkConfig) {
	if network.DiamondContract == "" {
		network.DiamondContract = DefaultDiamondContract
	}
	if network.FactoryContract == "" {
		network.FactoryContract = DefaultFactoryContract
	}
	if network.DAIContract == "" {
		network.DAIContract = DefaultDAIContract
	}
	if network.USDCContract == "" {
		network.USDCContract = DefaultUSDCContract
	}
	if network.EntryPoint == "" {
		network.EntryPoint = DefaultEntryPoint
	}
}
