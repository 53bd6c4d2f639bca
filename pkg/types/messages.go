package types

import "encoding/json"

// SignTransactionRequest is the body of POST /sign-transaction. Both members are
// kept raw so that presence can be told apart from zero values.
type SignTransactionRequest struct {
	Transaction json.RawMessage `json:"transaction"`
	PrivateKey  json.RawMessage `json:"privateKey"`
}

// SignTransactionResponse is returned for both outcomes of a signing request.
type SignTransactionResponse struct {
	Success           bool   `json:"success"`
	SignedTransaction string `json:"signedTransaction,omitempty"`
	TransactionHash   string `json:"transactionHash,omitempty"`
	From              string `json:"from,omitempty"`
	Message           string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

const MessageSigned = "Transaction signed successfully"
