// Package notify provides the notification interceptor registry.
//
// A UI surface actively displaying a conversation registers its
// (account, peer) pair so that hydration does not raise duplicate push
// notifications for messages the user is already looking at. Callers are
// responsible for unregistering on teardown; a leaked registration keeps
// suppressing notifications for that peer until the process restarts.
package notify

import "sync"

type peerKey struct {
	accountID int64
	peerID    int64
}

// Registry maps opaque interceptor ids to (account, peer) pairs.
type Registry struct {
	mu sync.RWMutex
	m  map[int64]peerKey
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[int64]peerKey)}
}

// Register binds an interceptor id to a conversation. Re-registering an id
// overwrites its previous pair.
func (r *Registry) Register(interceptorID, accountID, peerID int64) {
	r.mu.Lock()
	r.m[interceptorID] = peerKey{accountID: accountID, peerID: peerID}
	r.mu.Unlock()
}

// Unregister removes an interceptor id. Unknown ids are a no-op.
func (r *Registry) Unregister(interceptorID int64) {
	r.mu.Lock()
	delete(r.m, interceptorID)
	r.mu.Unlock()
}

// Intercepted reports whether notifications for the conversation are
// suppressed, which is the case iff some registered pair matches exactly.
func (r *Registry) Intercepted(accountID, peerID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.m {
		if k.accountID == accountID && k.peerID == peerID {
			return true
		}
	}
	return false
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
