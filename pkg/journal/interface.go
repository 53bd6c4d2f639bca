package journal

import "context"

// IReceiptJournal records the signatures the service has issued. It never stores key
// material. All implementations must be safe for concurrent use.
type IReceiptJournal interface {
	// Record persists a receipt keyed by its ID. Recording the same ID twice
	// overwrites the first entry.
	Record(ctx context.Context, receipt *Receipt) error

	// Get returns the receipt with the given ID, or nil if none exists.
	Get(ctx context.Context, id string) (*Receipt, error)

	// ListBySender returns receipts signed by from, newest first. A limit of zero or
	// less returns everything.
	ListBySender(ctx context.Context, from string, limit int) ([]*Receipt, error)

	// Close is idempotent. Every other call fails after Close.
	Close() error

	// HealthCheck returns nil if the journal is usable.
	HealthCheck() error
}
