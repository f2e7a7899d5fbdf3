// Package relay publishes and fetches pre-key bundles over HTTP.
//
// HTTP is the domain.RelayClient used by the CLI. Server is the matching
// in-memory relay: it keeps the latest bundle per device and hands out each
// one-time pre-key at most once.
//
// API
//
//	POST /v1/bundles
//	    Store the PreKeyBundle of the device named in the body.
//
//	GET /v1/bundles/{device}
//	    Return the bundle of {device} with at most one one-time pre-key,
//	    which is removed from the relay.
//
//	GET /healthz, GET /metrics
//
// The relay never sees private keys; it stores public bundles only.
package relay
