package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/taji-labs/signing-service/pkg/journal"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixReceipt     = "receipt:"
	keyPrefixSender      = "sender:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"

	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

// BadgerJournal stores receipts in an embedded Badger database. Each receipt is kept
// under its id, plus an empty index key per sender ordered by signing time.
type BadgerJournal struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ journal.IReceiptJournal = (*BadgerJournal)(nil)

// NewBadgerJournal opens (or creates) the database at dataPath with synchronous
// writes and starts background value log GC.
func NewBadgerJournal(dataPath string, logger *zap.Logger) (*BadgerJournal, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = newBadgerLoggerAdapter(logger)
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bj := &BadgerJournal{
		db:     db,
		logger: logger,
	}

	if err := bj.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bj.gcCancel = cancel
	bj.gcWg.Add(1)
	go bj.runGC(ctx)

	logger.Sugar().Infow("Badger receipt journal initialized", "path", absPath)
	return bj, nil
}

func (b *BadgerJournal) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerJournal) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func receiptKey(id string) []byte {
	return []byte(keyPrefixReceipt + id)
}

func senderPrefix(from string) []byte {
	return []byte(keyPrefixSender + journal.SenderKey(from) + ":")
}

// senderIndexKey sorts by signing time, then id.
func senderIndexKey(r *journal.Receipt) []byte {
	prefix := senderPrefix(r.From)
	key := make([]byte, 0, len(prefix)+8+len(r.ID))
	key = append(key, prefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(r.SignedAt.UnixMilli()))
	return append(key, r.ID...)
}

func (b *BadgerJournal) Record(_ context.Context, receipt *journal.Receipt) error {
	if err := receipt.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return journal.ErrClosed
	}

	data, err := journal.MarshalReceipt(receipt)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		previous, err := loadReceipt(txn, receipt.ID)
		if err != nil {
			return err
		}
		if previous != nil {
			if err := txn.Delete(senderIndexKey(previous)); err != nil {
				return fmt.Errorf("failed to drop previous index entry: %w", err)
			}
		}
		if err := txn.Set(receiptKey(receipt.ID), data); err != nil {
			return fmt.Errorf("failed to store receipt: %w", err)
		}
		return txn.Set(senderIndexKey(receipt), nil)
	})
}

func (b *BadgerJournal) Get(_ context.Context, id string) (*journal.Receipt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, journal.ErrClosed
	}

	var receipt *journal.Receipt
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		receipt, err = loadReceipt(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load receipt: %w", err)
	}
	return receipt, nil
}

func (b *BadgerJournal) ListBySender(_ context.Context, from string, limit int) ([]*journal.Receipt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, journal.ErrClosed
	}

	prefix := senderPrefix(from)
	idOffset := len(prefix) + 8

	var receipts []*journal.Receipt
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration has to start past the last key carrying the prefix
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			if len(key) <= idOffset {
				continue
			}
			r, err := loadReceipt(txn, string(key[idOffset:]))
			if err != nil {
				return err
			}
			if r == nil {
				b.logger.Sugar().Warnw("Dangling sender index entry", "key", string(key))
				continue
			}
			receipts = append(receipts, r)
			if limit > 0 && len(receipts) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	if receipts == nil {
		receipts = []*journal.Receipt{}
	}
	return receipts, nil
}

func loadReceipt(txn *badgerdb.Txn, id string) (*journal.Receipt, error) {
	item, err := txn.Get(receiptKey(id))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var receipt *journal.Receipt
	err = item.Value(func(val []byte) error {
		var err error
		receipt, err = journal.UnmarshalReceipt(val)
		return err
	})
	return receipt, err
}

func (b *BadgerJournal) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger receipt journal closed")
	return nil
}

func (b *BadgerJournal) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return journal.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
