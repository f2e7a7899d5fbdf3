// Package main runs the in-memory pre-key relay used during development and
// tests. See package relay for the HTTP API.
//
// Configuration
//
//	-addr       listen address (RELAY_ADDR, default :8080)
//	-log-level  debug, info, warn or error (RELAY_LOG_LEVEL)
//	RELAY_ENV, RELAY_LOG_FORMAT=json
//
// Variables may also be set in a .env file in the working directory. All
// state is held in memory and lost on exit.
package main
