/*
fifo.go - FIFO batch allocation and cost basis

PURPOSE:
  Pure consumption algorithm over a product's stock batches. Given a
  requested quantity, walks batches oldest-purchase-first, consumes
  them partially or fully, prunes exhausted lots, and reports the
  weighted-average unit cost of everything it took.

CRITICAL INVARIANTS:
  1. DETERMINISTIC: identical batch state + request => identical output
  2. OLDEST FIRST: consumption order is fixed by PurchaseDate, never by
     storage order or write order
  3. NO HIDING: if available stock < requested, allocation proceeds as
     far as stock allows and the shortfall is reported, not swallowed

OVERSELL:
  The caller decides shortfall policy. The observed system permits
  oversell: QuantityOnHand goes negative and the unallocated quantity
  carries zero cost, so the weighted average is computed only against
  actually-allocated cost. That is a product-owner policy decision
  preserved here as-is, not a bug to quietly correct.

SEE ALSO:
  - types.go: StockBatch
  - settle/settlement.go: the only production caller
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION RESULT
// =============================================================================

// BatchConsumption records how much was taken from one batch.
type BatchConsumption struct {
	BatchID  BatchID
	QtyTaken int64
	UnitCost decimal.Decimal
}

// Allocation is the outcome of consuming stock from a batch list.
type Allocation struct {
	Consumed  []BatchConsumption
	TotalCost decimal.Decimal
	Remaining []StockBatch // surviving batches, exhausted lots pruned
	Shortfall int64        // requested - allocated, 0 when fully covered
}

// Allocated returns the quantity actually taken from batches.
func (a Allocation) Allocated() int64 {
	var total int64
	for _, c := range a.Consumed {
		total += c.QtyTaken
	}
	return total
}

// UnitCost returns the weighted-average cost per unit across the whole
// request: TotalCost / requestedQty. The divisor is the requested
// quantity, not the allocated one, so an oversold remainder dilutes
// the average at zero cost (observed system behavior). A zero request
// costs zero.
func (a Allocation) UnitCost(requestedQty int64) decimal.Decimal {
	if requestedQty == 0 {
		return decimal.Zero
	}
	return a.TotalCost.Div(decimal.NewFromInt(requestedQty))
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocate consumes requestedQty from batches, oldest purchase first.
//
// The input slice is not mutated; Remaining is a fresh slice holding
// the surviving batches with decremented quantities. Batches drained
// to zero are pruned, not kept as tombstones.
func Allocate(batches []StockBatch, requestedQty int64) Allocation {
	ordered := make([]StockBatch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PurchaseDate.Before(ordered[j].PurchaseDate)
	})

	alloc := Allocation{TotalCost: decimal.Zero}
	stillNeeded := requestedQty

	for _, b := range ordered {
		if stillNeeded <= 0 {
			alloc.Remaining = append(alloc.Remaining, b)
			continue
		}

		take := b.RemainingQty
		if take > stillNeeded {
			take = stillNeeded
		}
		if take <= 0 {
			continue
		}

		alloc.Consumed = append(alloc.Consumed, BatchConsumption{
			BatchID:  b.ID,
			QtyTaken: take,
			UnitCost: b.UnitCost,
		})
		alloc.TotalCost = alloc.TotalCost.Add(b.UnitCost.Mul(decimal.NewFromInt(take)))
		stillNeeded -= take

		if left := b.RemainingQty - take; left > 0 {
			b.RemainingQty = left
			alloc.Remaining = append(alloc.Remaining, b)
		}
		// left == 0: batch is exhausted, prune it
	}

	if stillNeeded > 0 {
		alloc.Shortfall = stillNeeded
	}
	return alloc
}
