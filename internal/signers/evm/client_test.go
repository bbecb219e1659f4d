package evm

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glosapay/glosapay/internal/x402"
)

func TestHexToBytes32(t *testing.T) {
	nonce := "0x" + strings.Repeat("ab", 32)
	out, err := hexToBytes32(nonce)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), out[0])
	assert.Equal(t, byte(0xab), out[31])

	_, err = hexToBytes32("0xabcd")
	assert.Error(t, err)

	_, err = hexToBytes32("0xzz")
	assert.Error(t, err)
}

func TestConvertCallArgsAuthorizationState(t *testing.T) {
	addr := "0x857b06519E91e3A54538791bDbb0E22373e36b66"
	nonce := "0x" + strings.Repeat("01", 32)

	out, err := convertCallArgs(x402.FunctionAuthorizationState, []any{addr, nonce})
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(addr), out[0])
	converted, ok := out[1].([32]byte)
	require.True(t, ok)
	assert.Equal(t, byte(0x01), converted[0])
}

func TestConvertCallArgsTransferWithAuthorization(t *testing.T) {
	from := "0x857b06519E91e3A54538791bDbb0E22373e36b66"
	to := "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	nonce := "0x" + strings.Repeat("02", 32)
	value := big.NewInt(1_000_000)

	out, err := convertCallArgs(x402.FunctionTransferWithAuthorization,
		[]any{from, to, value, big.NewInt(0), big.NewInt(1790000000), nonce, byte(27), [32]byte{}, [32]byte{}})
	require.NoError(t, err)

	assert.Equal(t, common.HexToAddress(from), out[0])
	assert.Equal(t, common.HexToAddress(to), out[1])
	assert.Same(t, value, out[2])
	_, ok := out[5].([32]byte)
	assert.True(t, ok)
}

func TestConvertCallArgsLeavesTypedValuesAlone(t *testing.T) {
	// Already-converted arguments pass through untouched.
	addr := common.HexToAddress("0x857b06519E91e3A54538791bDbb0E22373e36b66")
	var nonce [32]byte

	out, err := convertCallArgs(x402.FunctionAuthorizationState, []any{addr, nonce})
	require.NoError(t, err)
	assert.Equal(t, addr, out[0])
	assert.Equal(t, nonce, out[1])
}
