// Package reservation implements two-phase AI token budget accounting.
//
// A caller reserves its estimated usage before starting AI work. The estimate
// is charged to the identity's daily budget immediately, so concurrent work
// cannot overspend. When the work finishes the caller completes the
// reservation with the actual usage and the difference is settled; if the
// work is abandoned it cancels and the estimate is refunded.
//
//	res, err := manager.Reserve(ctx, "user-42", 500_000)
//	if !res.Success {
//	    // res.Shortfall units missing, nothing charged
//	}
//	defer manager.Cancel(ctx, res.ReservationID) // no-op after Complete
//	...
//	done, err := manager.Complete(ctx, res.ReservationID, actual)
//
// Each reservation ends exactly once: completed, cancelled, or expired.
// Sweep expires reservations older than the timeout without refunding them,
// so a crashed caller keeps its estimate charged until the budget window
// rolls over.
//
// The ledger of open reservations lives in process memory. Counter state is
// shared through the store, but a reservation can only be completed or
// cancelled on the instance that created it.
package reservation
