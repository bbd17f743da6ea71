// Package limits protects a service from abuse and bounds per-identity AI
// token spend.
//
// # Overview
//
// The Engine ties together:
//
//   - ratelimit: fixed-window request policies (auth, signup, api, ...)
//   - budget: a daily token budget per identity
//   - reservation: reserve/complete/cancel accounting for AI work
//   - identity: client IP resolution and identity validation
//   - storage: the durable counter store shared by all of the above
//   - sweeper: background expiry of reservations and counter rows
//
// # Usage
//
//	engine, err := limits.New(limits.Config{
//	    Backend:         backend,
//	    DailyTokenLimit: 2_000_000,
//	    TrustProxy:      true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	// Throttle a login attempt
//	result, err := engine.CheckAuth(ctx, engine.GetClientIP(r))
//	if err != nil || !result.Success {
//	    // deny
//	}
//
//	// Wrap AI work in a reservation
//	res, err := engine.ReserveAITokens(ctx, userID, estimate)
//	if res.Success {
//	    actual := runModel()
//	    engine.CompleteTokenReservation(ctx, res.ReservationID, actual)
//	}
//
// # Failure Policy
//
// Store failures are returned as errors (storage.ErrUnavailable) and callers
// must deny the request. Limit outcomes (rate limited, budget exceeded,
// unknown reservation) are results, not errors. Invalid input is rejected with
// a *ValidationError before the store is touched.
//
// # Thread Safety
//
// All Engine methods are safe for concurrent use. Several engines may coexist
// in one process, each with its own store and metrics registry.
package limits
