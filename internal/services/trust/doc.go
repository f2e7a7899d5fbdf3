// Package trust changes which devices the self device trusts or ignores and
// asks the security classifier to re-evaluate every conversation affected by
// the change.
//
// None of the operations fail. Input is filtered (the self device, deleted
// devices and duplicates are dropped) so callers may invoke them
// speculatively.
package trust
