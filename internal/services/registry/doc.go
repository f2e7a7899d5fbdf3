// Package registry tracks the remote devices known to the local client. It
// turns device payloads from the backend into model devices and runs the
// deletion protocol that ends a device's session before it is removed.
package registry
