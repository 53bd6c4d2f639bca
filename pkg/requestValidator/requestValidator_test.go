package requestValidator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taji-labs/signing-service/pkg/types"
)

const testKey = `"0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"`

func completeTransaction() map[string]any {
	return map[string]any{
		"nonce":    0,
		"gasPrice": "0x1",
		"gas":      "0x5208",
		"to":       "0x3535353535353535353535353535353535353535",
		"value":    "0x0",
		"data":     "0x",
		"chainId":  1,
	}
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestValidateRequest_Ordering(t *testing.T) {
	t.Run("missing transaction wins over everything", func(t *testing.T) {
		_, _, err := ValidateRequest(&types.SignTransactionRequest{})
		require.Equal(t, types.ErrorKindMissingTransaction, types.KindOf(err))
	})

	t.Run("null transaction", func(t *testing.T) {
		_, _, err := ValidateRequest(&types.SignTransactionRequest{
			Transaction: json.RawMessage(`null`),
			PrivateKey:  json.RawMessage(testKey),
		})
		require.Equal(t, types.ErrorKindMissingTransaction, types.KindOf(err))
	})

	t.Run("nil request", func(t *testing.T) {
		_, _, err := ValidateRequest(nil)
		require.Equal(t, types.ErrorKindMissingTransaction, types.KindOf(err))
	})

	t.Run("missing private key wins over missing fields", func(t *testing.T) {
		_, _, err := ValidateRequest(&types.SignTransactionRequest{
			Transaction: json.RawMessage(`{}`),
		})
		require.Equal(t, types.ErrorKindMissingPrivateKey, types.KindOf(err))
	})

	t.Run("empty private key is missing", func(t *testing.T) {
		_, _, err := ValidateRequest(&types.SignTransactionRequest{
			Transaction: mustRaw(t, completeTransaction()),
			PrivateKey:  json.RawMessage(`""`),
		})
		require.Equal(t, types.ErrorKindMissingPrivateKey, types.KindOf(err))
	})

	t.Run("fields checked last", func(t *testing.T) {
		_, _, err := ValidateRequest(&types.SignTransactionRequest{
			Transaction: json.RawMessage(`{}`),
			PrivateKey:  json.RawMessage(testKey),
		})
		var se *types.SigningError
		require.ErrorAs(t, err, &se)
		require.Equal(t, types.ErrorKindMissingFields, se.Kind)
		require.Equal(t, types.RequiredFields, se.Fields)
	})
}

func TestValidateRequest_Valid(t *testing.T) {
	fields, secret, err := ValidateRequest(&types.SignTransactionRequest{
		Transaction: mustRaw(t, completeTransaction()),
		PrivateKey:  json.RawMessage(testKey),
	})
	require.NoError(t, err)
	require.NotNil(t, fields)

	assert.JSONEq(t, `0`, string(fields.Nonce))
	assert.JSONEq(t, `"0x5208"`, string(fields.Gas))
	assert.JSONEq(t, `1`, string(fields.ChainID))

	key, ok := secret.Reveal()
	require.True(t, ok)
	require.Equal(t, "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", key)
}

func TestValidateTransaction_MissingFieldsEnumeratedExactly(t *testing.T) {
	tests := []struct {
		name    string
		remove  []string
		missing []string
	}{
		{"only chainId", []string{"chainId"}, []string{"chainId"}},
		{"nonce and to", []string{"to", "nonce"}, []string{"nonce", "to"}},
		{"data key absent", []string{"data"}, []string{"data"}},
		{"all", types.RequiredFields, types.RequiredFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := completeTransaction()
			for _, name := range tt.remove {
				delete(tx, name)
			}
			fields, errs := ValidateTransaction(mustRaw(t, tx))
			require.Nil(t, fields)
			require.Equal(t, tt.missing, MissingFieldNames(errs))
		})
	}
}

func TestValidateTransaction_ZeroValuesArePresent(t *testing.T) {
	tx := completeTransaction()
	tx["nonce"] = 0
	tx["value"] = 0
	tx["gasPrice"] = "0x0"

	fields, errs := ValidateTransaction(mustRaw(t, tx))
	require.Empty(t, errs)
	require.NotNil(t, fields)
}

func TestValidateTransaction_NullAndEmpty(t *testing.T) {
	tx := completeTransaction()
	tx["to"] = nil
	tx["value"] = ""
	tx["data"] = ""

	_, errs := ValidateTransaction(mustRaw(t, tx))
	require.Equal(t, []string{"to", "value"}, MissingFieldNames(errs))
}

func TestValidateTransaction_NonObject(t *testing.T) {
	for _, raw := range []string{`"abc"`, `[1,2]`, `42`, `true`} {
		_, errs := ValidateTransaction(json.RawMessage(raw))
		require.Equal(t, types.RequiredFields, MissingFieldNames(errs), raw)
	}
}

func TestValidateTransaction_Idempotent(t *testing.T) {
	tx := completeTransaction()
	delete(tx, "gas")
	delete(tx, "value")
	raw := mustRaw(t, tx)

	_, first := ValidateTransaction(raw)
	_, second := ValidateTransaction(raw)
	require.Equal(t, MissingFieldNames(first), MissingFieldNames(second))
	require.Equal(t, []string{"gas", "value"}, MissingFieldNames(first))
}

func TestValidateRequest_NonStringKeyIsPresent(t *testing.T) {
	_, secret, err := ValidateRequest(&types.SignTransactionRequest{
		Transaction: mustRaw(t, completeTransaction()),
		PrivateKey:  json.RawMessage(`12345`),
	})
	require.NoError(t, err)
	_, ok := secret.Reveal()
	require.False(t, ok)
}
