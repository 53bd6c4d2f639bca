package transactionSigner

import (
	"github.com/taji-labs/signing-service/pkg/types"
)

// ITransactionSigner turns validated transaction fields and a caller secret into a
// signed envelope.
type ITransactionSigner interface {
	// SignTransaction derives the signing key and signs in one atomic step. Errors are
	// *types.SigningError with kind InvalidKeyFormat or SigningFailure.
	SignTransaction(fields *types.TransactionFields, secret types.Secret) (*types.SignedTransaction, error)
}

// NewTransactionSigner returns the signer used by the gateway.
func NewTransactionSigner() ITransactionSigner {
	return NewPrivateKeySigner()
}
