// Package metrics holds the Prometheus collectors of the client core and
// the relay.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsEstablishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherclients_sessions_established_total",
			Help: "Session establishment attempts by result.",
		},
		[]string{"result"},
	)

	SessionsResetTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherclients_sessions_reset_total",
			Help: "Sessions discarded so they can be re-established.",
		},
	)

	SessionsCorruptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherclients_sessions_corrupted_total",
			Help: "Devices flagged after a cryptographic failure on their session.",
		},
	)

	DevicesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherclients_devices_deleted_total",
			Help: "Devices removed together with their sessions.",
		},
	)

	PreKeyCounterClampedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cipherclients_prekey_counter_clamped_total",
			Help: "Times the remaining pre-key counter was found negative and reset to zero.",
		},
	)

	SecurityChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherclients_security_changes_total",
			Help: "Security classification requests by change kind.",
		},
		[]string{"kind"},
	)

	RelayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cipherclients_relay_requests_total",
			Help: "Relay HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	RelayRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cipherclients_relay_request_duration_seconds",
			Help:    "Duration of relay HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var registerOnce sync.Once

// MustRegister registers every collector with the default registry,
// labelled with serviceName. Later calls are no-ops.
func MustRegister(serviceName string) {
	registerOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(
			prometheus.Labels{"service": serviceName},
			prometheus.DefaultRegisterer,
		)
		reg.MustRegister(
			SessionsEstablishedTotal,
			SessionsResetTotal,
			SessionsCorruptedTotal,
			DevicesDeletedTotal,
			PreKeyCounterClampedTotal,
			SecurityChangesTotal,
			RelayRequestsTotal,
			RelayRequestDurationSeconds,
		)
	})
}
