/*
Package domain contains the core domain models of the convograph traversal engine.

It defines the immutable pieces of a conversation graph (Stage, Node, Edge), the
mutable Session State that a traversal accumulates turn by turn, and the events
and outcomes the engine reports back to its host. This package is kept pure and
free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Stage: an ordered phase of the conversation grouping nodes.
  - Node: an utterance target with a difficulty weight and canned response variants.
  - Edge: a prerequisite link; only inter-stage edges gate availability.
  - State: the per-session snapshot (visited set, scores, highlight, status).
  - Projection: the derived runtime view of a node (visited, available, score).
  - Outcome: the result of submitting one utterance.
*/
package domain
