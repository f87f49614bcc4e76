/*
Package session manages store-backed traversal sessions for servers.

A Manager loads, mutates and saves session state through a ports.StateStore,
serializing access per session with reference-counted local locks and, when
configured, a ports.DistributedLocker shared by several replicas. Only one
utterance per session may await the Oracle at a time; a concurrent submission
is rejected with domain.ErrBusy.
*/
package session
