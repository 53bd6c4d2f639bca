package gateway

import (
	"github.com/taji-labs/signing-service/pkg/requestValidator"
	"github.com/taji-labs/signing-service/pkg/transactionSigner"
	"github.com/taji-labs/signing-service/pkg/types"
)

// Gateway composes request validation and signing. It performs no I/O and keeps no
// per-request state, so a single instance serves every request concurrently.
type Gateway struct {
	signer transactionSigner.ITransactionSigner
}

func NewGateway(signer transactionSigner.ITransactionSigner) *Gateway {
	if signer == nil {
		signer = transactionSigner.NewTransactionSigner()
	}
	return &Gateway{signer: signer}
}

// Process validates req and, only if validation passes, signs it. The returned event
// always reaches a terminal stage and never carries the private key.
func (g *Gateway) Process(req *types.SignTransactionRequest) (*types.SignedTransaction, *types.SigningEvent, error) {
	event := types.NewSigningEvent()
	event.Advance(types.StageValidating)

	fields, secret, err := requestValidator.ValidateRequest(req)
	if err != nil {
		reject(event, err)
		return nil, event, err
	}
	event.Fields = types.PreviewFields(fields)
	event.Advance(types.StageValidated)

	event.Advance(types.StageSigning)
	signed, err := g.signer.SignTransaction(fields, secret)
	if err != nil {
		event.Advance(types.StageFailed)
		event.ErrorKind = types.KindOf(err)
		return nil, event, err
	}

	event.Advance(types.StageSigned)
	event.From = signed.From.Hex()
	event.TxHash = signed.Hash.Hex()
	event.EnvelopeBytes = envelopeBytes(signed.Envelope)
	return signed, event, nil
}

func reject(event *types.SigningEvent, err error) {
	event.Advance(types.StageRejected)
	event.ErrorKind = types.KindOf(err)
	if se, ok := err.(*types.SigningError); ok {
		event.MissingFields = se.Fields
	}
}

func envelopeBytes(envelope string) int {
	if len(envelope) < 2 {
		return 0
	}
	return (len(envelope) - 2) / 2
}
