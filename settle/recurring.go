/*
recurring.go - Idempotent monthly expense posting

PURPOSE:
  Materializes recurring expense definitions into concrete Expense
  rows, at most once per definition per calendar month. This is the
  one place where idempotency is a first-class, testable contract
  rather than an incidental property.

PHASES:
  1. READ: fetch all definitions and every expense already posted in
     the target month; collect their idempotency keys. The read phase
     completes before any write is issued so the duplicate check never
     acts on stale data.
  2. DECIDE: a definition whose key for this month is already present
     is skipped. The posting date is DayOfMonth clamped to the month's
     last valid day (day 31 in February posts on the 28th/29th).
  3. WRITE: all new expenses commit as one atomic write set. Re-running
     in the same month posts nothing; re-running after a failure cannot
     double-post because nothing was committed.

DEDUP KEY:
  The key is "recurring:<definitionID>:<YYYY-MM>", a dedicated field on
  the Expense row. The human-readable "Recurring: <name>" description
  is display-only and safe to localize or edit.
*/
package settle

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/retail-ledger/ledger"
)

// PostingSummary reports what one poster run did.
type PostingSummary struct {
	Posted  int
	Skipped int
}

// PostDueRecurringExpenses posts every recurring definition not yet
// posted in asOf's calendar month.
func (c *Coordinator) PostDueRecurringExpenses(ctx context.Context, asOf time.Time) (PostingSummary, error) {
	defs, err := c.store.ListRecurringExpenses(ctx)
	if err != nil {
		return PostingSummary{}, err
	}

	month := ledger.MonthRange(asOf)
	existing, err := c.store.ExpensesInRange(ctx, month.From, month.To)
	if err != nil {
		return PostingSummary{}, err
	}
	posted := make(map[string]bool, len(existing))
	for _, e := range existing {
		if e.IdempotencyKey != "" {
			posted[e.IdempotencyKey] = true
		}
	}

	var ws ledger.WriteSet
	var summary PostingSummary
	for _, def := range defs {
		key := recurringKey(def.ID, asOf)
		if posted[key] {
			summary.Skipped++
			continue
		}
		ws.Expenses = append(ws.Expenses, ledger.Expense{
			ID:             ledger.ExpenseID(ledger.NewID("exp")),
			Date:           ledger.ClampDayOfMonth(asOf, def.DayOfMonth),
			Amount:         def.Amount,
			Category:       def.Category,
			Description:    "Recurring: " + def.Name,
			IdempotencyKey: key,
		})
		summary.Posted++
	}

	if ws.Empty() {
		return summary, nil
	}
	if err := c.store.Apply(ctx, ws); err != nil {
		return PostingSummary{}, err
	}
	return summary, nil
}

func recurringKey(defID string, asOf time.Time) string {
	return fmt.Sprintf("recurring:%s:%s", defID, asOf.UTC().Format("2006-01"))
}
