//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/testutil/containers"
	pkgredis "github.com/prohmpiriya/ticket-inventory/pkg/redis"
)

func TestRedisLedger_Integration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	newLedger := func(t *testing.T) *RedisLedgerRepository {
		rc.FlushAll(t)
		ledger := NewRedisLedgerRepository(pkgredis.NewFromClient(rc.Client))
		require.NoError(t, ledger.LoadScripts(ctx))
		return ledger
	}
	event := func(capacity int64) *domain.EventInventory {
		e, err := domain.NewEventInventory("evt-1", "tenant-1", capacity, time.Now().UTC())
		require.NoError(t, err)
		return e
	}

	t.Run("unknown event until synced", func(t *testing.T) {
		ledger := newLedger(t)

		res, err := ledger.ConditionalIncrement(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, CodeEventNotFound, res.ErrorCode)

		require.NoError(t, ledger.SyncEvent(ctx, event(2)))
		res, err = ledger.ConditionalIncrement(ctx, "evt-1")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, int64(1), res.SoldCount)
	})

	t.Run("sync does not overwrite a live counter", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.SyncEvent(ctx, event(2)))
		_, err := ledger.ConditionalIncrement(ctx, "evt-1")
		require.NoError(t, err)

		require.NoError(t, ledger.SyncEvent(ctx, event(2)))
		got, err := ledger.GetInventory(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.SoldCount)

		deleted := event(2)
		deleted.Deleted = true
		require.NoError(t, ledger.SyncEvent(ctx, deleted))
		res, err := ledger.ConditionalIncrement(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, CodeEventDeleted, res.ErrorCode)
	})

	t.Run("no oversell under concurrent reservations", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.SyncEvent(ctx, event(5)))

		results := make([]*IncrementResult, 50)
		var g errgroup.Group
		for i := range results {
			g.Go(func() error {
				res, err := ledger.ConditionalIncrement(ctx, "evt-1")
				results[i] = res
				return err
			})
		}
		require.NoError(t, g.Wait())

		ok := 0
		for _, res := range results {
			if res.Success {
				ok++
			} else {
				assert.Equal(t, CodeSoldOut, res.ErrorCode)
			}
		}
		assert.Equal(t, 5, ok)
	})

	t.Run("release once and snapshot dirty counters", func(t *testing.T) {
		ledger := newLedger(t)
		require.NoError(t, ledger.SyncEvent(ctx, event(3)))
		for i := 0; i < 2; i++ {
			_, err := ledger.ConditionalIncrement(ctx, "evt-1")
			require.NoError(t, err)
		}

		res, err := ledger.Release(ctx, "evt-1", "res-1")
		require.NoError(t, err)
		assert.True(t, res.Success)

		res, err = ledger.Release(ctx, "evt-1", "res-1")
		require.NoError(t, err)
		assert.Equal(t, CodeAlreadyReleased, res.ErrorCode)

		snaps, err := ledger.PopDirty(ctx, 10)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, SoldCountSnapshot{EventID: "evt-1", SoldCount: 1}, snaps[0])

		snaps, err = ledger.PopDirty(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, snaps)
	})
}
