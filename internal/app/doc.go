// Package app wires application dependencies for the CLI.
//
// LoadConfig resolves settings from defaults, an optional .env file and the
// environment. NewWire builds the stores, the object graph, the privileged
// queue and the services from a Config and exposes them via Wire.
package app
