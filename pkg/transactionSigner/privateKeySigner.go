package transactionSigner

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/taji-labs/signing-service/pkg/types"
)

// PrivateKeySigner signs with a key supplied per call. It holds no state, so one
// instance is shared by all requests.
type PrivateKeySigner struct{}

var _ ITransactionSigner = (*PrivateKeySigner)(nil)

func NewPrivateKeySigner() *PrivateKeySigner {
	return &PrivateKeySigner{}
}

// SignTransaction builds a legacy transaction and signs it with EIP-155 replay
// protection for the requested chain. Signatures are deterministic (RFC 6979).
func (pks *PrivateKeySigner) SignTransaction(fields *types.TransactionFields, secret types.Secret) (*types.SignedTransaction, error) {
	key, err := DeriveSigningKey(secret)
	if err != nil {
		return nil, err
	}

	parsed, err := parseTransaction(fields)
	if err != nil {
		return nil, types.NewSigningFailureError(err)
	}

	to := parsed.to
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    parsed.nonce,
		GasPrice: parsed.gasPrice,
		Gas:      parsed.gasLimit,
		To:       &to,
		Value:    parsed.value,
		Data:     parsed.data,
	})

	signer := ethtypes.NewEIP155Signer(parsed.chainID)
	signedTx, err := ethtypes.SignTx(tx, signer, key)
	if err != nil {
		return nil, types.NewSigningFailureError(errors.Wrap(err, "failed to sign transaction"))
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	recovered, err := ethtypes.Sender(signer, signedTx)
	if err != nil {
		return nil, types.NewSigningFailureError(errors.Wrap(err, "failed to recover signer"))
	}
	if recovered != from {
		return nil, types.NewSigningFailureError(errors.Errorf("recovered signer %s does not match key address", recovered.Hex()))
	}

	envelope, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, types.NewSigningFailureError(errors.Wrap(err, "failed to encode transaction"))
	}

	return &types.SignedTransaction{
		Envelope: hexutil.Encode(envelope),
		Hash:     signedTx.Hash(),
		From:     from,
		To:       to,
		Nonce:    parsed.nonce,
		ChainID:  parsed.chainID,
	}, nil
}
