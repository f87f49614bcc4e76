// Package runtime implements the traversal core: the availability resolver, the
// scoring policies, the response selector, the completion detector and the
// utterance state machine.
//
// Engine is stateless and safe to share; every call takes the session state and
// returns a new one. Session wraps an Engine with owned state, the
// one-utterance-in-flight rule and the highlight timer for in-process hosts.
package runtime
