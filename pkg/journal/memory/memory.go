package memory

import (
	"context"
	"sync"

	"github.com/taji-labs/signing-service/pkg/journal"
)

// MemoryJournal keeps receipts in process memory. Everything is lost on restart, so
// it suits tests and local development only.
type MemoryJournal struct {
	mu sync.RWMutex

	// id -> receipt
	receipts map[string]*journal.Receipt

	// normalized sender -> receipt ids
	bySender map[string]map[string]struct{}

	closed bool
}

var _ journal.IReceiptJournal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		receipts: make(map[string]*journal.Receipt),
		bySender: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryJournal) Record(_ context.Context, receipt *journal.Receipt) error {
	if err := receipt.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return journal.ErrClosed
	}

	// drop the old index entry if an overwrite changes the sender
	if previous, ok := m.receipts[receipt.ID]; ok {
		delete(m.bySender[journal.SenderKey(previous.From)], previous.ID)
	}

	m.receipts[receipt.ID] = copyReceipt(receipt)
	sender := journal.SenderKey(receipt.From)
	if m.bySender[sender] == nil {
		m.bySender[sender] = make(map[string]struct{})
	}
	m.bySender[sender][receipt.ID] = struct{}{}
	return nil
}

func (m *MemoryJournal) Get(_ context.Context, id string) (*journal.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, journal.ErrClosed
	}

	r, ok := m.receipts[id]
	if !ok {
		return nil, nil
	}
	return copyReceipt(r), nil
}

func (m *MemoryJournal) ListBySender(_ context.Context, from string, limit int) ([]*journal.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, journal.ErrClosed
	}

	ids := m.bySender[journal.SenderKey(from)]
	receipts := make([]*journal.Receipt, 0, len(ids))
	for id := range ids {
		receipts = append(receipts, copyReceipt(m.receipts[id]))
	}
	journal.SortNewestFirst(receipts)
	return journal.ApplyLimit(receipts, limit), nil
}

func (m *MemoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.receipts = nil
	m.bySender = nil
	return nil
}

func (m *MemoryJournal) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return journal.ErrClosed
	}
	return nil
}

func copyReceipt(r *journal.Receipt) *journal.Receipt {
	c := *r
	return &c
}
