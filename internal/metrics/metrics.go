// Package metrics holds the prometheus collectors for onesession.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values for AuthRequests
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Source label values for SessionChanges
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

var (
	// AuthRequests counts remote auth service calls by operation and outcome.
	AuthRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onesession",
			Name:      "auth_requests_total",
			Help:      "Requests made to the remote authentication service.",
		},
		[]string{"op", "outcome"},
	)

	// SessionChanges counts session mutations, local (establish/clear) or
	// received from another context (token/email).
	SessionChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onesession",
			Name:      "session_changes_total",
			Help:      "Session state changes applied to a session context.",
		},
		[]string{"source", "kind"},
	)

	// LogStatements counts log events by level.
	LogStatements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "onesession",
			Name:      "log_statements_total",
			Help:      "Number of log statements, differentiated by log level.",
		},
		[]string{"level"},
	)
)

// Register adds all collectors to reg. Collectors already registered are ignored.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{AuthRequests, SessionChanges, LogStatements} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
