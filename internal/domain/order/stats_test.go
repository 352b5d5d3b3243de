package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	orders := []Order{
		newTestOrder(1, StatusPaid, "10.50"),
		newTestOrder(2, StatusPaid, "4.50"),
		newTestOrder(3, StatusShipped, "100"),
		newTestOrder(4, StatusPending, "7"),
		newTestOrder(5, StatusCancelled, "9"),
	}

	s := ComputeStats(orders)

	assert.Equal(t, 5, s.Count)
	assert.True(t, decimal.NewFromInt(15).Equal(s.TotalSpent), "only paid orders count, got %s", s.TotalSpent)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 2, s.Paid)
	assert.Equal(t, 1, s.Shipped)
	assert.Equal(t, 1, s.Cancelled)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil)
	assert.Zero(t, s.Count)
	assert.True(t, s.TotalSpent.IsZero())
}

func TestStore_StatsPerSlot(t *testing.T) {
	s := NewStore(newMockGateway(), nil)
	s.Restore(Snapshot{
		All: []Order{newTestOrder(1, StatusPaid, "10"), newTestOrder(2, StatusPaid, "5")},
		Own: []Order{newTestOrder(2, StatusPaid, "5")},
	})

	assert.Equal(t, 2, s.Stats(SlotAll).Count)
	assert.True(t, decimal.NewFromInt(5).Equal(s.Stats(SlotOwn).TotalSpent))
	assert.Len(t, s.ByStatus(SlotAll, StatusPaid), 2)
	assert.Empty(t, s.ByStatus(SlotOwn, StatusShipped))
}
