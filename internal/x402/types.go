// Package x402 implements the v1 wire format and the exact-scheme EVM
// verification and settlement logic of the HTTP 402 payment protocol.
package x402

import "encoding/json"

// PaymentRequirements is the v1 402 offer: what the client must pay, where,
// and within which window. MaxAmountRequired is in atomic units as a string.
type PaymentRequirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description,omitempty"`
	MimeType          string         `json:"mimeType,omitempty"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// PaymentRequired is the v1 402 response body.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// ExactEIP3009Authorization is the EIP-3009 TransferWithAuthorization data.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`        // payer address (hex)
	To          string `json:"to"`          // payee address (hex)
	Value       string `json:"value"`       // amount in atomic units as decimal string
	ValidAfter  string `json:"validAfter"`  // unix timestamp as decimal string
	ValidBefore string `json:"validBefore"` // unix timestamp as decimal string
	Nonce       string `json:"nonce"`       // 32-byte nonce as hex string
}

// ExactEIP3009Payload is the exact-scheme payment payload for EVM networks.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// PaymentPayload is the v1 payment submission: scheme and network at top
// level, the signed authorization nested under payload.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Scheme      string              `json:"scheme"`
	Network     string              `json:"network"`
	Payload     ExactEIP3009Payload `json:"payload"`
}

// VerifyResponse reports the outcome of verifying a payment payload.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse reports the outcome of settling a payment on-chain.
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// SupportedKind advertises one scheme/network pair the service can settle.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// ToPaymentPayload unmarshals bytes to a v1 payment payload.
func ToPaymentPayload(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
