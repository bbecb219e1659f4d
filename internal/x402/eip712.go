package x402

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// EIP3009Types is the EIP-712 type definition for TransferWithAuthorization.
func EIP3009Types() map[string][]TypedDataField {
	return map[string][]TypedDataField{
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}
}

// EIP3009Domain builds the EIP-712 domain for a token contract.
func EIP3009Domain(tokenName, tokenVersion string, chainID *big.Int, verifyingContract string) TypedDataDomain {
	return TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// AuthorizationMessage converts an authorization into the message map used
// for EIP-712 hashing. Numeric fields become *big.Int as apitypes expects.
func AuthorizationMessage(auth ExactEIP3009Authorization) (map[string]any, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonce, err := HexToBytes(auth.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(nonce) != 32 {
		return nil, fmt.Errorf("nonce must be 32 bytes, got %d", len(nonce))
	}

	return map[string]any{
		"from":        auth.From,
		"to":          auth.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonce,
	}, nil
}

// HexToBytes decodes a hex string with or without 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
