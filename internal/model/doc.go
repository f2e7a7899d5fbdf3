// Package model holds the in-memory object graph of users, devices,
// conversations and messages, together with the trust relations between
// devices and the set of locally modified attributes awaiting upload.
//
// Every entity belongs to exactly one ObjectContext, which guards the graph
// with a single RWMutex. Entities are handles: their accessors lock the
// owning context, so they are safe to use from any goroutine. Mutations that
// must be coordinated with the key store are performed by the services on
// the privileged sync context.
package model
