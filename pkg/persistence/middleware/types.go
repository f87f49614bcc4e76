// Package middleware decorates a ports.StateStore. The only free text a
// session persists is the last utterance, so both decorators act on it:
// one masks personal data before it reaches the store, the other encrypts it
// at rest.
package middleware

import "github.com/aretw0/convograph/pkg/ports"

// Middleware allows wrapping a StateStore to add behavior.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies middlewares so the first one is outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
