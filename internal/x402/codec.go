package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paymentPayloadSchema validates the decoded JSON before it is unmarshalled,
// so malformed submissions are rejected with a field-level message instead
// of a zero-valued struct slipping into verification.
const paymentPayloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["x402Version", "scheme", "network", "payload"],
  "properties": {
    "x402Version": {"type": "integer"},
    "scheme": {"type": "string", "minLength": 1},
    "network": {"type": "string", "minLength": 1},
    "payload": {
      "type": "object",
      "required": ["signature", "authorization"],
      "properties": {
        "signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]+$"},
        "authorization": {
          "type": "object",
          "required": ["from", "to", "value", "validAfter", "validBefore", "nonce"],
          "properties": {
            "from": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
            "to": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
            "value": {"type": "string", "pattern": "^[0-9]+$"},
            "validAfter": {"type": "string", "pattern": "^[0-9]+$"},
            "validBefore": {"type": "string", "pattern": "^[0-9]+$"},
            "nonce": {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"}
          }
        }
      }
    }
  }
}`

var payloadSchemaLoader = gojsonschema.NewStringLoader(paymentPayloadSchema)

// DecodePaymentPayload decodes a base64-encoded JSON payment payload,
// validating it against the v1 schema.
func DecodePaymentPayload(encoded string) (*PaymentPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}

	result, err := gojsonschema.Validate(payloadSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		var descs []string
		for _, desc := range result.Errors() {
			descs = append(descs, desc.String())
		}
		return nil, fmt.Errorf("payload failed schema validation: %s", strings.Join(descs, "; "))
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &payload, nil
}

// EncodePaymentPayload is the inverse of DecodePaymentPayload, used by
// clients and tests to build submissions.
func EncodePaymentPayload(payload *PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
