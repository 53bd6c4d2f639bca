package types

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const ServiceName = "taji-signing-service"

// Transaction field names as they appear on the wire.
const (
	FieldNonce    = "nonce"
	FieldGasPrice = "gasPrice"
	FieldGas      = "gas"
	FieldTo       = "to"
	FieldValue    = "value"
	FieldData     = "data"
	FieldChainID  = "chainId"
)

// RequiredFields lists every transaction field in the order missing fields are reported.
var RequiredFields = []string{
	FieldNonce,
	FieldGasPrice,
	FieldGas,
	FieldTo,
	FieldValue,
	FieldData,
	FieldChainID,
}

// TransactionFields holds the raw JSON value of each required field after presence
// validation. Values are parsed and range-checked by the signer, not here.
type TransactionFields struct {
	Nonce    json.RawMessage
	GasPrice json.RawMessage
	Gas      json.RawMessage
	To       json.RawMessage
	Value    json.RawMessage
	Data     json.RawMessage
	ChainID  json.RawMessage
}

// NewTransactionFields picks the required fields out of a decoded transaction object.
func NewTransactionFields(raw map[string]json.RawMessage) *TransactionFields {
	return &TransactionFields{
		Nonce:    raw[FieldNonce],
		GasPrice: raw[FieldGasPrice],
		Gas:      raw[FieldGas],
		To:       raw[FieldTo],
		Value:    raw[FieldValue],
		Data:     raw[FieldData],
		ChainID:  raw[FieldChainID],
	}
}

// Get returns the raw value of the named field, or nil for an unknown name.
func (tf *TransactionFields) Get(name string) json.RawMessage {
	switch name {
	case FieldNonce:
		return tf.Nonce
	case FieldGasPrice:
		return tf.GasPrice
	case FieldGas:
		return tf.Gas
	case FieldTo:
		return tf.To
	case FieldValue:
		return tf.Value
	case FieldData:
		return tf.Data
	case FieldChainID:
		return tf.ChainID
	default:
		return nil
	}
}

// SignedTransaction is the result of a successful signing.
type SignedTransaction struct {
	// Envelope is the 0x-prefixed hex of the canonical signed encoding.
	Envelope string
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Nonce    uint64
	ChainID  *big.Int
}
