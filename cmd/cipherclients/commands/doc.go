// Package commands defines the cipherclients CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init             Create the local identity
//   - fingerprint      Print the identity fingerprint
//   - register         Create the self device and publish its pre-keys
//   - device           Add, list and delete known devices
//   - trust, ignore    Change the trust state of devices
//   - establish        Open a session with a device from its relay bundle
//   - reset-session    Drop a session so it is negotiated again
//   - conversation     Create conversations, show their security level, edit drafts
//   - backup           Export and verify backup metadata
//
// # Implementation
//
// The root command resolves the Config (flags over CIPHERCLIENTS_*
// environment over .env over defaults), builds an app.Wire in
// PersistentPreRunE and closes it, saving the object graph, once the
// command returns, whether or not it failed.
package commands
