package transactionSigner

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// DecodeEnvelope parses a 0x-prefixed signed transaction.
func DecodeEnvelope(envelope string) (*ethtypes.Transaction, error) {
	raw, err := hexutil.Decode(envelope)
	if err != nil {
		return nil, errors.Wrap(err, "invalid envelope hex")
	}
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, errors.Wrap(err, "invalid envelope encoding")
	}
	return tx, nil
}

// RecoverSender returns the address that signed tx, using the chain id embedded in
// its signature.
func RecoverSender(tx *ethtypes.Transaction) (common.Address, error) {
	if !tx.Protected() {
		return common.Address{}, errors.New("transaction is not replay protected")
	}
	return ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
}
