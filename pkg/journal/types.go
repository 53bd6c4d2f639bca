package journal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/taji-labs/signing-service/pkg/types"
)

var ErrClosed = fmt.Errorf("journal is closed")

// Receipt is the audit record of one issued signature.
type Receipt struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId,omitempty"`
	TxHash    string    `json:"txHash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChainID   string    `json:"chainId"`
	Nonce     uint64    `json:"nonce"`
	SignedAt  time.Time `json:"signedAt"`
}

// NewReceipt describes signed. SignedAt is kept at millisecond precision so that
// every backend orders receipts the same way.
func NewReceipt(requestID string, signed *types.SignedTransaction, now time.Time) *Receipt {
	chainID := ""
	if signed.ChainID != nil {
		chainID = signed.ChainID.String()
	}
	return &Receipt{
		ID:        uuid.NewString(),
		RequestID: requestID,
		TxHash:    signed.Hash.Hex(),
		From:      signed.From.Hex(),
		To:        signed.To.Hex(),
		ChainID:   chainID,
		Nonce:     signed.Nonce,
		SignedAt:  now.UTC().Truncate(time.Millisecond),
	}
}

func (r *Receipt) Validate() error {
	if r == nil {
		return fmt.Errorf("cannot record nil Receipt")
	}
	if r.ID == "" {
		return fmt.Errorf("receipt id is required")
	}
	if r.TxHash == "" {
		return fmt.Errorf("receipt txHash is required")
	}
	if r.From == "" {
		return fmt.Errorf("receipt from is required")
	}
	return nil
}

// SenderKey normalizes an address for use in index keys.
func SenderKey(from string) string {
	return strings.ToLower(from)
}

// SortNewestFirst orders by SignedAt descending, then ID descending.
func SortNewestFirst(receipts []*Receipt) {
	sort.Slice(receipts, func(i, j int) bool {
		if !receipts[i].SignedAt.Equal(receipts[j].SignedAt) {
			return receipts[i].SignedAt.After(receipts[j].SignedAt)
		}
		return receipts[i].ID > receipts[j].ID
	})
}

// ApplyLimit truncates receipts to limit entries when limit is positive.
func ApplyLimit(receipts []*Receipt, limit int) []*Receipt {
	if limit > 0 && len(receipts) > limit {
		return receipts[:limit]
	}
	return receipts
}
