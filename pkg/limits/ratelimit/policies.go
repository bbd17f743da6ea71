package ratelimit

import (
	"sort"
	"time"
)

// Named policies.
var (
	// Auth guards login and password-reset style endpoints.
	Auth = Policy{Name: "auth", Limit: 15, Window: 15 * time.Minute, Block: time.Hour}

	Signup      = Policy{Name: "signup", Limit: 9, Window: time.Hour}
	Batch       = Policy{Name: "batch", Limit: 20, Window: 24 * time.Hour}
	Feedback    = Policy{Name: "feedback", Limit: 15, Window: time.Hour}
	ClassJoin   = Policy{Name: "class_join", Limit: 30, Window: time.Hour}
	LiveSession = Policy{Name: "live_session", Limit: 30, Window: time.Hour}

	// API is the general per-client request throttle.
	API = Policy{Name: "api", Limit: 300, Window: time.Minute}
)

var catalog = map[string]Policy{
	Auth.Name:        Auth,
	Signup.Name:      Signup,
	Batch.Name:       Batch,
	Feedback.Name:    Feedback,
	ClassJoin.Name:   ClassJoin,
	LiveSession.Name: LiveSession,
	API.Name:         API,
}

// Lookup returns the named policy.
func Lookup(name string) (Policy, bool) {
	p, ok := catalog[name]
	return p, ok
}

// Policies returns every named policy sorted by name.
func Policies() []Policy {
	policies := make([]Policy, 0, len(catalog))
	for _, p := range catalog {
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies
}
