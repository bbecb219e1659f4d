// Package evm provides the production blockchain client backing the x402
// facilitator: EIP-712 signature recovery, ERC-20 reads, and authorized
// transfer submission over an ethclient RPC connection.
package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/glosapay/glosapay/internal/x402"
)

const (
	// Gas limit for transferWithAuthorization submissions.
	settlementGasLimit = 300000

	receiptPollAttempts = 30
	receiptPollInterval = 1 * time.Second
)

// Client implements x402.FacilitatorSigner over go-ethereum.
type Client struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	client     *ethclient.Client
	chainID    *big.Int
}

// Dial connects to the RPC endpoint and loads the facilitator key.
func Dial(ctx context.Context, rpcURL, privateKeyHex string) (*Client, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	return &Client{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		client:     client,
		chainID:    chainID,
	}, nil
}

func (c *Client) Address() string {
	return c.address.Hex()
}

func (c *Client) ChainID() *big.Int {
	return c.chainID
}

func (c *Client) Close() {
	c.client.Close()
}

// VerifyTypedData recovers the signer of an EIP-712 digest and compares it
// to the expected address.
func (c *Client) VerifyTypedData(
	ctx context.Context,
	address string,
	domain x402.TypedDataDomain,
	fieldTypes map[string][]x402.TypedDataField,
	primaryType string,
	message map[string]any,
	signature []byte,
) (bool, error) {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*ethmath.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: message,
	}

	for typeName, fields := range fieldTypes {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = typedFields
	}

	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return false, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return false, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	digest := crypto.Keccak256(rawData)

	if len(signature) != 65 {
		return false, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	// go-ethereum expects the recovery id as 0/1, wallets produce 27/28.
	sigCopy := make([]byte, 65)
	copy(sigCopy, signature)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	expected := common.HexToAddress(address)
	return bytes.Equal(recovered.Bytes(), expected.Bytes()), nil
}

// ReadContract performs a read-only call, converting string-typed address
// and bytes32 arguments the way the protocol layer passes them.
func (c *Client) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	method string,
	args ...any,
) (any, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	processedArgs, err := convertCallArgs(method, args)
	if err != nil {
		return nil, err
	}

	data, err := contractABI.Pack(method, processedArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}

	if len(result) == 0 {
		switch method {
		case x402.FunctionAuthorizationState:
			return false, nil
		case x402.FunctionBalanceOf:
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("empty result from contract call %s", method)
	}

	methodDef, exists := contractABI.Methods[method]
	if !exists {
		return nil, fmt.Errorf("method %s not found in ABI", method)
	}

	output, err := methodDef.Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}
	if len(output) > 0 {
		return output[0], nil
	}
	return nil, nil
}

// WriteContract signs and submits a contract transaction, returning its hash.
func (c *Client) WriteContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	method string,
	args ...any,
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	processedArgs, err := convertCallArgs(method, args)
	if err != nil {
		return "", err
	}

	data, err := contractABI.Pack(method, processedArgs...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	tx := types.NewTransaction(nonce, to, big.NewInt(0), settlementGasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	return signedTx.Hash().Hex(), nil
}

// WaitForTransactionReceipt polls until the transaction is mined or the
// attempt budget is spent.
func (c *Client) WaitForTransactionReceipt(ctx context.Context, txHash string) (*x402.TransactionReceipt, error) {
	hash := common.HexToHash(txHash)

	for i := 0; i < receiptPollAttempts; i++ {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return &x402.TransactionReceipt{
				Status:      receipt.Status,
				BlockNumber: receipt.BlockNumber.Uint64(),
				TxHash:      receipt.TxHash.Hex(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}

	return nil, fmt.Errorf("transaction receipt not found after %d attempts", receiptPollAttempts)
}

// GetBalance reads an ERC-20 balance, or the native balance when
// tokenAddress is empty or the zero address.
func (c *Client) GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error) {
	if tokenAddress == "" || tokenAddress == "0x0000000000000000000000000000000000000000" {
		balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	result, err := c.ReadContract(ctx, tokenAddress, x402.BalanceOfABI, x402.FunctionBalanceOf, address)
	if err != nil {
		return nil, err
	}

	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balance type: %T", result)
	}
	return balance, nil
}

// convertCallArgs maps the string-typed arguments used at the protocol layer
// onto the Go types the ABI packer expects.
func convertCallArgs(method string, args []any) ([]any, error) {
	processed := make([]any, len(args))
	copy(processed, args)

	switch method {
	case x402.FunctionAuthorizationState:
		// authorizationState(address authorizer, bytes32 nonce)
		if len(processed) > 0 {
			if addrStr, ok := processed[0].(string); ok {
				processed[0] = common.HexToAddress(addrStr)
			}
		}
		if len(processed) > 1 {
			if nonceStr, ok := processed[1].(string); ok {
				nonce, err := hexToBytes32(nonceStr)
				if err != nil {
					return nil, err
				}
				processed[1] = nonce
			}
		}
	case x402.FunctionBalanceOf:
		for i, arg := range processed {
			if addrStr, ok := arg.(string); ok {
				processed[i] = common.HexToAddress(addrStr)
			}
		}
	case x402.FunctionTransferWithAuthorization:
		// (from, to, value, validAfter, validBefore, nonce, v, r, s)
		for i := 0; i < 2 && i < len(processed); i++ {
			if addrStr, ok := processed[i].(string); ok {
				processed[i] = common.HexToAddress(addrStr)
			}
		}
		if len(processed) > 5 {
			if nonceStr, ok := processed[5].(string); ok {
				nonce, err := hexToBytes32(nonceStr)
				if err != nil {
					return nil, err
				}
				processed[5] = nonce
			}
		}
	}

	return processed, nil
}

func hexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

var _ x402.FacilitatorSigner = (*Client)(nil)
