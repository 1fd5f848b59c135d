package subledger

import "context"

// Allocate settles part of one posted transaction against another of
// the same counterpart. Both outstanding amounts decrease by the same
// amount and one allocation row is written, all in a single atomic
// unit; any precondition failure leaves both sides untouched.
func (s *Service) Allocate(ctx context.Context, in AllocateInput) (Allocation, error) {
	if err := in.Validate(); err != nil {
		return Allocation{}, err
	}
	settling, err := s.repo.GetTransaction(ctx, in.CompanyID, in.SettlingID)
	if err != nil {
		return Allocation{}, err
	}
	settled, err := s.repo.GetTransaction(ctx, in.CompanyID, in.SettledID)
	if err != nil {
		return Allocation{}, err
	}
	if settling.CounterpartID != settled.CounterpartID {
		return Allocation{}, ErrCounterpartMismatch
	}
	if !settling.IsPosted || !settled.IsPosted {
		return Allocation{}, ErrNotPosted
	}

	var allocation Allocation
	err = s.locker.WithLock(ctx, lockKindCounterpart, in.CompanyID, settling.CounterpartID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			// Lock rows in id order so concurrent allocations over the
			// same pair cannot deadlock.
			firstID, secondID := in.SettlingID, in.SettledID
			if secondID < firstID {
				firstID, secondID = secondID, firstID
			}
			first, err := tx.GetTransactionForUpdate(ctx, in.CompanyID, firstID)
			if err != nil {
				return err
			}
			second, err := tx.GetTransactionForUpdate(ctx, in.CompanyID, secondID)
			if err != nil {
				return err
			}
			settling, settled := first, second
			if settling.ID != in.SettlingID {
				settling, settled = second, first
			}
			if !settling.IsPosted || !settled.IsPosted {
				return ErrNotPosted
			}
			if in.Amount > settling.OutstandingAmount || in.Amount > settled.OutstandingAmount {
				return ErrOverAllocation
			}
			if err := tx.DecrementOutstanding(ctx, settling.ID, in.Amount); err != nil {
				return err
			}
			if err := tx.DecrementOutstanding(ctx, settled.ID, in.Amount); err != nil {
				return err
			}
			allocation, err = tx.InsertAllocation(ctx, in, settling.CounterpartID)
			return err
		})
	})
	if err != nil {
		s.fail()
		return Allocation{}, err
	}
	s.metrics.RecordPosting("allocation")
	s.record(ctx, in.CompanyID, in.PostedBy, "subledger.allocate", "subledger_allocation", allocation.ID, map[string]any{
		"settling_id": in.SettlingID,
		"settled_id":  in.SettledID,
		"amount":      in.Amount,
	})
	return allocation, nil
}

// AllocationsFor returns every allocation touching the transaction,
// whether it appears on the settling or the settled side.
func (s *Service) AllocationsFor(ctx context.Context, companyID, transactionID int64) ([]Allocation, error) {
	if _, err := s.repo.GetTransaction(ctx, companyID, transactionID); err != nil {
		return nil, err
	}
	return s.repo.AllocationsFor(ctx, companyID, transactionID)
}
