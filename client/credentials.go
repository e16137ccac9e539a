// Package client provides the client side of onesession: the key-value credential
// store contract shared by every storage backend, and an HTTP client for the remote
// authentication service.
package client

// Keys under which a session is persisted. A session is stored as two independent
// string entries, so other contexts observe them as two separate changes.
const (
	KeyToken = "token"
	KeyEmail = "email"
)

// Change describes a modification made to a store by some other context.
type Change struct {
	Key   string
	Value string

	// Present is false when the key was removed
	Present bool
}

// KeyValueStore is durable key-value persistence for the current session.
//
// Every handle opened on the same backing medium (file, Redis keyspace, table...)
// sees the same entries. Subscribers of a handle are only notified of changes made
// through other handles; writes made through the handle itself never trigger them.
type KeyValueStore interface {
	// Get returns the value for key. ok is false if the key is absent.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Subscribe registers fn for changes made by other handles.
	// The returned cancel func stops delivery and may be called more than once.
	Subscribe(fn func(Change)) (cancel func(), err error)

	// Close releases watchers, connections and subscriptions held by the handle
	Close() error
}
