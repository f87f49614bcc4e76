package domain

import "errors"

// ErrMalformedGraph is returned when a graph document cannot be turned into a Graph.
var ErrMalformedGraph = errors.New("malformed graph")

// ErrOracleUnavailable is returned when the similarity oracle is not initialized yet.
var ErrOracleUnavailable = errors.New("similarity oracle unavailable")

// ErrOracleFailure is returned when a scoring call fails. The turn is a no-op.
var ErrOracleFailure = errors.New("similarity oracle failure")

// ErrBusy is returned when an utterance arrives while another is awaiting the oracle.
var ErrBusy = errors.New("utterance already in flight")

// ErrEmptyUtterance is returned by surfaces that require a non-blank utterance.
var ErrEmptyUtterance = errors.New("empty utterance")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrUnknownNode is returned when a transition references a node outside the graph.
var ErrUnknownNode = errors.New("unknown node")

// ErrAlreadyVisited is returned when a visit targets a node that is already visited.
var ErrAlreadyVisited = errors.New("node already visited")
