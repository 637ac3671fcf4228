/*
analytics.go - Read-only aggregation over the entity store

PURPOSE:
  Operator-facing queries: the platform-wide pending redemption worklist
  and the headline aggregates. Both scan every user inside one store
  transaction, so the result is a single consistent snapshot - no
  interleaved mutation is ever visible mid-scan.
*/
package ledger

import "context"

// PendingRedeemTransactions returns every redemption still awaiting
// resolution, in user insertion order then per-user append order.
func (e *Engine) PendingRedeemTransactions(ctx context.Context, caller Principal) ([]Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := []Transaction{}
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			for _, tx := range u.Transactions {
				if tx.Type == TxRedeem && tx.Status == StatusPending {
					out = append(out, tx)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}

// PlatformAnalytics sums balances and counts transactions across all users.
func (e *Engine) PlatformAnalytics(ctx context.Context, caller Principal) (*Analytics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out *Analytics
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := e.authorize(ctx, s, caller); err != nil {
			return err
		}
		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}

		a := Analytics{
			TotalPoints:     ZeroPoints,
			AvailablePoints: ZeroPoints,
			RedeemedPoints:  ZeroPoints,
		}
		for _, u := range users {
			a.TotalPoints = a.TotalPoints.Add(u.TotalPoints)
			a.AvailablePoints = a.AvailablePoints.Add(u.AvailablePoints)
			a.RedeemedPoints = a.RedeemedPoints.Add(u.TotalRedeemed)
			a.TotalTransactions += int64(len(u.Transactions))
		}
		out = &a
		return nil
	})
	if err != nil {
		return nil, Normalize(err)
	}
	return out, nil
}
