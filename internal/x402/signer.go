package x402

import (
	"context"
	"math/big"
)

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField is one field of an EIP-712 type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the receipt of a mined transaction.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// FacilitatorSigner is the blockchain-client collaborator: everything the
// exact-scheme facilitator needs from a chain. The production implementation
// lives in internal/signers/evm; tests use hand-rolled fakes.
type FacilitatorSigner interface {
	// Address returns the facilitator's own account address.
	Address() string

	// VerifyTypedData checks an EIP-712 signature against the given address.
	VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]any, signature []byte) (bool, error)

	// ReadContract performs a read-only contract call.
	ReadContract(ctx context.Context, address string, abi []byte, method string, args ...any) (any, error)

	// WriteContract submits a contract transaction and returns its hash.
	WriteContract(ctx context.Context, address string, abi []byte, method string, args ...any) (string, error)

	// WaitForTransactionReceipt blocks until the transaction is mined.
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)

	// GetBalance reads an ERC-20 balance, or the native balance when
	// tokenAddress is empty.
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
}
