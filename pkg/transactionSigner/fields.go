package transactionSigner

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/pkg/errors"
	"github.com/taji-labs/signing-service/pkg/types"
)

// parsedTransaction is the typed form of TransactionFields, with gas mapped to the
// gas limit slot.
type parsedTransaction struct {
	nonce    uint64
	gasPrice *big.Int
	gasLimit uint64
	to       common.Address
	value    *big.Int
	data     []byte
	chainID  *big.Int
}

func parseTransaction(fields *types.TransactionFields) (*parsedTransaction, error) {
	if fields == nil {
		return nil, errors.New("transaction fields are nil")
	}

	nonce, err := parseUint64(types.FieldNonce, fields.Nonce)
	if err != nil {
		return nil, err
	}
	gasPrice, err := parseBig(types.FieldGasPrice, fields.GasPrice)
	if err != nil {
		return nil, err
	}
	gasLimit, err := parseUint64(types.FieldGas, fields.Gas)
	if err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		return nil, errors.New("gas must be positive")
	}
	to, err := parseAddress(types.FieldTo, fields.To)
	if err != nil {
		return nil, err
	}
	value, err := parseBig(types.FieldValue, fields.Value)
	if err != nil {
		return nil, err
	}
	data, err := parseData(fields.Data)
	if err != nil {
		return nil, err
	}
	chainID, err := parseBig(types.FieldChainID, fields.ChainID)
	if err != nil {
		return nil, err
	}
	if chainID.Sign() == 0 {
		return nil, errors.New("chainId must be positive")
	}

	return &parsedTransaction{
		nonce:    nonce,
		gasPrice: gasPrice,
		gasLimit: gasLimit,
		to:       to,
		value:    value,
		data:     data,
		chainID:  chainID,
	}, nil
}

// quantityText accepts a JSON number literal or a decimal/0x-hex string.
func quantityText(name string, raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", errors.Wrapf(err, "invalid %s", name)
		}
		trimmed = strings.TrimSpace(s)
	}
	if trimmed == "" {
		return "", errors.Errorf("invalid %s: empty value", name)
	}
	return trimmed, nil
}

func parseBig(name string, raw json.RawMessage) (*big.Int, error) {
	text, err := quantityText(name, raw)
	if err != nil {
		return nil, err
	}
	v, ok := math.ParseBig256(text)
	if !ok {
		return nil, errors.Errorf("invalid %s: %q is not a 256-bit integer", name, text)
	}
	if v.Sign() < 0 {
		return nil, errors.Errorf("invalid %s: must not be negative", name)
	}
	return v, nil
}

func parseUint64(name string, raw json.RawMessage) (uint64, error) {
	v, err := parseBig(name, raw)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, errors.Errorf("invalid %s: %s overflows uint64", name, v.String())
	}
	return v.Uint64(), nil
}

func parseAddress(name string, raw json.RawMessage) (common.Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return common.Address{}, errors.Errorf("invalid %s address: expected a hex string", name)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Errorf("invalid %s address: %q", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseData(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("invalid data: expected a hex string")
	}
	if s == "" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid data")
	}
	return data, nil
}
