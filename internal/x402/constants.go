package x402

import "math/big"

const (
	// Protocol version implemented by this service.
	Version = 1

	// SchemeExact is the pay-exactly-N scheme implemented via EIP-3009.
	SchemeExact = "exact"

	// DefaultDecimals is the USDC token precision.
	DefaultDecimals = 6

	// EIP-3009 function names.
	FunctionTransferWithAuthorization = "transferWithAuthorization"
	FunctionAuthorizationState        = "authorizationState"
	FunctionBalanceOf                 = "balanceOf"

	// Transaction receipt status.
	TxStatusSuccess = 1

	// ValidBeforeBuffer pads the validBefore check so an authorization that
	// expires mid-block cannot be accepted and then revert on-chain.
	ValidBeforeBuffer = 6 // seconds
)

// Verification and settlement reason codes. Callers observe these exact
// strings, so they are part of the external contract.
const (
	ReasonUnsupportedScheme   = "unsupported_scheme"
	ReasonInvalidNetwork      = "invalid_network"
	ReasonRecipientMismatch   = "recipient_mismatch"
	ReasonInsufficientAmount  = "insufficient_amount"
	ReasonNotYetValid         = "authorization_not_yet_valid"
	ReasonExpired             = "authorization_expired"
	ReasonNonceUsed           = "nonce_already_used"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonInvalidSignature    = "invalid_signature"
	ReasonSettlementReverted  = "settlement_reverted"
)

// AssetInfo describes an ERC-20 token usable for exact payments.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// NetworkConfig holds the chain id and default asset for a network.
type NetworkConfig struct {
	ChainID      *big.Int
	DefaultAsset AssetInfo
}

var (
	ChainIDBase        = big.NewInt(8453)
	ChainIDBaseSepolia = big.NewInt(84532)
)

// NetworkConfigs maps v1 network names to their chain configuration.
var NetworkConfigs = map[string]NetworkConfig{
	"base": {
		ChainID: ChainIDBase,
		DefaultAsset: AssetInfo{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", // USDC on Base
			Name:     "USD Coin",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
	"base-sepolia": {
		ChainID: ChainIDBaseSepolia,
		DefaultAsset: AssetInfo{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e", // USDC on Base Sepolia
			Name:     "USDC",
			Version:  "2",
			Decimals: DefaultDecimals,
		},
	},
}

// GetNetworkConfig looks up a network by its v1 name.
func GetNetworkConfig(network string) (NetworkConfig, bool) {
	cfg, ok := NetworkConfigs[network]
	return cfg, ok
}

// Minimal ABIs for the contract calls the facilitator makes.
var (
	TransferWithAuthorizationABI = []byte(`[{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"validAfter","type":"uint256"},{"name":"validBefore","type":"uint256"},{"name":"nonce","type":"bytes32"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],"name":"transferWithAuthorization","outputs":[],"stateMutability":"nonpayable","type":"function"}]`)

	AuthorizationStateABI = []byte(`[{"inputs":[{"name":"authorizer","type":"address"},{"name":"nonce","type":"bytes32"}],"name":"authorizationState","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`)

	BalanceOfABI = []byte(`[{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`)
)
