// Package handlers implements the gatekeeper sidecar HTTP API.
//
// Routes (all JSON):
//
//	GET    /v1/policies
//	POST   /v1/ratelimit/{policy}             {"identity": "..."}
//	GET    /v1/budget/{identity}
//	POST   /v1/budget/{identity}/usage        {"units": 1200}
//	POST   /v1/reservations                   {"identity": "...", "estimated_units": 5000}
//	POST   /v1/reservations/{id}/complete     {"actual_units": 4200}
//	DELETE /v1/reservations/{id}
//
// A rate limit check with an empty identity throttles the calling client by
// its resolved address. Rejected checks answer 429 with Retry-After, a
// reservation the budget cannot cover answers 409 with the shortfall, and an
// unknown reservation answers 404. Store failures answer 503.
package handlers
