// Package sweeper runs periodic cleanup jobs on cron schedules.
//
// The engine registers two jobs: one expires abandoned reservations, the
// other deletes counter rows whose window has ended. Expired rows are already
// ignored by every read, so the counter sweep only reclaims space.
//
//	s := sweeper.New(logger,
//	    sweeper.Job{Name: "reservations", Schedule: "@every 60s", Run: sweepReservations},
//	    sweeper.Job{Name: "counters", Schedule: "@every 5m", Run: sweepCounters},
//	)
//	if err := s.Start(ctx); err != nil { ... }
//	defer s.Stop()
//
// Schedules use standard cron syntax or descriptors such as "@every 5m".
package sweeper
