// Package journaltest holds behaviour tests shared by every receipt journal backend.
package journaltest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taji-labs/signing-service/pkg/journal"
)

// Factory opens a fresh, empty journal for one subtest.
type Factory func(t *testing.T) journal.IReceiptJournal

// NewTestReceipt returns a receipt for a sender unique to this call unless from is set.
func NewTestReceipt(from string, signedAt time.Time) *journal.Receipt {
	if from == "" {
		from = fmt.Sprintf("0x%040x", uuid.New().ID())
	}
	return &journal.Receipt{
		ID:       uuid.NewString(),
		TxHash:   "0x" + uuid.New().String(),
		From:     from,
		To:       "0x3535353535353535353535353535353535353535",
		ChainID:  "1",
		Nonce:    1,
		SignedAt: signedAt.UTC().Truncate(time.Millisecond),
	}
}

func RunSuite(t *testing.T, open Factory) {
	ctx := context.Background()

	t.Run("record and get", func(t *testing.T) {
		j := open(t)
		r := NewTestReceipt("", time.Now())
		require.NoError(t, j.Record(ctx, r))

		loaded, err := j.Get(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, r.TxHash, loaded.TxHash)
		assert.Equal(t, r.From, loaded.From)
		assert.True(t, r.SignedAt.Equal(loaded.SignedAt))
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		j := open(t)
		loaded, err := j.Get(ctx, uuid.NewString())
		require.NoError(t, err)
		require.Nil(t, loaded)
	})

	t.Run("record rejects invalid receipt", func(t *testing.T) {
		j := open(t)
		require.Error(t, j.Record(ctx, nil))
		require.Error(t, j.Record(ctx, &journal.Receipt{ID: uuid.NewString()}))
	})

	t.Run("list by sender newest first", func(t *testing.T) {
		j := open(t)
		from := fmt.Sprintf("0xAbC%037x", uuid.New().ID())
		base := time.Now().Add(-time.Hour)

		var ids []string
		for i := 0; i < 4; i++ {
			r := NewTestReceipt(from, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, j.Record(ctx, r))
			ids = append(ids, r.ID)
		}
		require.NoError(t, j.Record(ctx, NewTestReceipt("", base)))

		all, err := j.ListBySender(ctx, from, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, ids[3], all[0].ID)
		assert.Equal(t, ids[0], all[3].ID)

		limited, err := j.ListBySender(ctx, from, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, ids[3], limited[0].ID)
		assert.Equal(t, ids[2], limited[1].ID)

		// lookups ignore address case
		lower, err := j.ListBySender(ctx, journal.SenderKey(from), 0)
		require.NoError(t, err)
		assert.Len(t, lower, 4)
	})

	t.Run("list unknown sender is empty", func(t *testing.T) {
		j := open(t)
		list, err := j.ListBySender(ctx, "0x0000000000000000000000000000000000000001", 0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("record is idempotent by id", func(t *testing.T) {
		j := open(t)
		r := NewTestReceipt("", time.Now())
		require.NoError(t, j.Record(ctx, r))
		require.NoError(t, j.Record(ctx, r))

		list, err := j.ListBySender(ctx, r.From, 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("concurrent records", func(t *testing.T) {
		j := open(t)
		from := fmt.Sprintf("0x%040x", uuid.New().ID())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, j.Record(ctx, NewTestReceipt(from, time.Now().Add(time.Duration(i)*time.Millisecond))))
			}(i)
		}
		wg.Wait()

		list, err := j.ListBySender(ctx, from, 0)
		require.NoError(t, err)
		assert.Len(t, list, 20)
	})

	t.Run("health check and close", func(t *testing.T) {
		j := open(t)
		require.NoError(t, j.HealthCheck())

		require.NoError(t, j.Close())
		require.NoError(t, j.Close())

		require.Error(t, j.HealthCheck())
		require.Error(t, j.Record(ctx, NewTestReceipt("", time.Now())))
		_, err := j.Get(ctx, uuid.NewString())
		require.Error(t, err)
		_, err = j.ListBySender(ctx, "0x01", 0)
		require.Error(t, err)
	})
}
