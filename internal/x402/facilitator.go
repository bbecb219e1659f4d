package x402

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/glosapay/glosapay/internal/clock"
)

// ExactEvmFacilitator verifies and settles exact-scheme EVM payments against
// the FacilitatorSigner collaborator. It is stateless; all job bookkeeping
// stays with the caller.
type ExactEvmFacilitator struct {
	signer FacilitatorSigner
	clk    clock.Clock
}

func NewExactEvmFacilitator(signer FacilitatorSigner, clk clock.Clock) *ExactEvmFacilitator {
	return &ExactEvmFacilitator{
		signer: signer,
		clk:    clk,
	}
}

// Verify checks a payment payload against requirements. An invalid payload
// yields IsValid=false with a reason code; an error return means the check
// itself could not be performed.
func (f *ExactEvmFacilitator) Verify(
	ctx context.Context,
	payload *PaymentPayload,
	requirements PaymentRequirements,
) (VerifyResponse, error) {
	if payload.X402Version != Version {
		return invalid(fmt.Sprintf("unsupported x402 version: %d", payload.X402Version), ""), nil
	}

	if payload.Scheme != SchemeExact || requirements.Scheme != SchemeExact {
		return invalid(ReasonUnsupportedScheme, ""), nil
	}

	if payload.Network != requirements.Network {
		return invalid(ReasonInvalidNetwork, ""), nil
	}

	config, ok := GetNetworkConfig(requirements.Network)
	if !ok {
		return invalid(ReasonInvalidNetwork, ""), nil
	}

	auth := payload.Payload.Authorization
	payer := auth.From

	if payload.Payload.Signature == "" {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return invalid(ReasonRecipientMismatch, payer), nil
	}

	authValue, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return invalid(fmt.Sprintf("invalid authorization value: %s", auth.Value), payer), nil
	}

	requiredValue, ok := new(big.Int).SetString(requirements.MaxAmountRequired, 10)
	if !ok {
		return VerifyResponse{}, fmt.Errorf("invalid required amount: %s", requirements.MaxAmountRequired)
	}

	if authValue.Cmp(requiredValue) < 0 {
		return invalid(ReasonInsufficientAmount, payer), nil
	}

	// Time window. validBefore gets a buffer so an authorization that would
	// expire before the settlement transaction lands is rejected up front.
	now := f.clk.Now().Unix()
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok || validBefore.Cmp(big.NewInt(now+ValidBeforeBuffer)) < 0 {
		return invalid(ReasonExpired, payer), nil
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok || validAfter.Cmp(big.NewInt(now)) > 0 {
		return invalid(ReasonNotYetValid, payer), nil
	}

	// Nonce must be unused; EIP-3009 consumes it exactly once on-chain.
	used, err := f.nonceUsed(ctx, requirements.Asset, auth)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("failed to check authorization state: %w", err)
	}
	if used {
		return invalid(ReasonNonceUsed, payer), nil
	}

	balance, err := f.signer.GetBalance(ctx, auth.From, requirements.Asset)
	if err == nil && balance.Cmp(requiredValue) < 0 {
		return invalid(ReasonInsufficientBalance, payer), nil
	}

	tokenName, tokenVersion := tokenDomainParams(requirements, config)

	message, err := AuthorizationMessage(auth)
	if err != nil {
		return invalid(fmt.Sprintf("invalid authorization: %v", err), payer), nil
	}

	signature, err := HexToBytes(payload.Payload.Signature)
	if err != nil {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	valid, err := f.signer.VerifyTypedData(
		ctx,
		auth.From,
		EIP3009Domain(tokenName, tokenVersion, config.ChainID, requirements.Asset),
		EIP3009Types(),
		"TransferWithAuthorization",
		message,
		signature,
	)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("failed to verify signature: %w", err)
	}
	if !valid {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	return VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle re-verifies the payload and executes the authorized transfer,
// waiting for the transaction to be mined. Re-verification defends against
// state drift between the verify call and the settlement call.
func (f *ExactEvmFacilitator) Settle(
	ctx context.Context,
	payload *PaymentPayload,
	requirements PaymentRequirements,
) (SettleResponse, error) {
	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		return SettleResponse{}, err
	}
	if !verifyResp.IsValid {
		return SettleResponse{
			Success:     false,
			ErrorReason: verifyResp.InvalidReason,
			Network:     payload.Network,
			Payer:       verifyResp.Payer,
		}, nil
	}

	auth := payload.Payload.Authorization

	signature, err := HexToBytes(payload.Payload.Signature)
	if err != nil || len(signature) != 65 {
		return SettleResponse{
			Success:     false,
			ErrorReason: ReasonInvalidSignature,
			Network:     payload.Network,
			Payer:       auth.From,
		}, nil
	}

	var r, s [32]byte
	copy(r[:], signature[0:32])
	copy(s[:], signature[32:64])
	v := signature[64]

	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	nonceBytes, _ := HexToBytes(auth.Nonce)
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	txHash, err := f.signer.WriteContract(
		ctx,
		requirements.Asset,
		TransferWithAuthorizationABI,
		FunctionTransferWithAuthorization,
		auth.From,
		auth.To,
		value,
		validAfter,
		validBefore,
		nonce,
		v,
		r,
		s,
	)
	if err != nil {
		return SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("transaction_failed: %v", err),
			Network:     payload.Network,
			Payer:       auth.From,
		}, nil
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return SettleResponse{
			Success:     false,
			ErrorReason: fmt.Sprintf("failed to get receipt: %v", err),
			Transaction: txHash,
			Network:     payload.Network,
			Payer:       auth.From,
		}, nil
	}

	if receipt.Status != TxStatusSuccess {
		return SettleResponse{
			Success:     false,
			ErrorReason: ReasonSettlementReverted,
			Transaction: txHash,
			Network:     payload.Network,
			Payer:       auth.From,
		}, nil
	}

	return SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     payload.Network,
		Payer:       auth.From,
	}, nil
}

func (f *ExactEvmFacilitator) nonceUsed(ctx context.Context, asset string, auth ExactEIP3009Authorization) (bool, error) {
	result, err := f.signer.ReadContract(ctx, asset, AuthorizationStateABI, FunctionAuthorizationState, auth.From, auth.Nonce)
	if err != nil {
		return false, err
	}
	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type: %T", result)
	}
	return used, nil
}

// tokenDomainParams resolves the EIP-712 domain name/version, preferring the
// values carried in requirements.Extra over the network defaults.
func tokenDomainParams(requirements PaymentRequirements, config NetworkConfig) (string, string) {
	name := config.DefaultAsset.Name
	version := config.DefaultAsset.Version
	if requirements.Extra != nil {
		if n, ok := requirements.Extra["name"].(string); ok && n != "" {
			name = n
		}
		if v, ok := requirements.Extra["version"].(string); ok && v != "" {
			version = v
		}
	}
	return name, version
}

func invalid(reason, payer string) VerifyResponse {
	return VerifyResponse{
		IsValid:       false,
		InvalidReason: reason,
		Payer:         payer,
	}
}
