package transactionSigner

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/taji-labs/signing-service/pkg/types"
)

// privateKeyHexLength is a 32-byte scalar in hex, without prefix.
const privateKeyHexLength = 64

// DeriveSigningKey parses a hex secp256k1 scalar with an optional 0x prefix. The
// returned error never describes the input.
func DeriveSigningKey(secret types.Secret) (*ecdsa.PrivateKey, error) {
	text, ok := secret.Reveal()
	if !ok {
		return nil, types.NewInvalidKeyFormatError()
	}
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
	}
	if len(text) != privateKeyHexLength {
		return nil, types.NewInvalidKeyFormatError()
	}

	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, types.NewInvalidKeyFormatError()
	}
	defer clear(raw)

	// ToECDSA rejects zero and scalars >= the curve order.
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, types.NewInvalidKeyFormatError()
	}
	return key, nil
}
