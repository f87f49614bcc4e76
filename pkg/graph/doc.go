// Package graph loads staged dialogue graph documents into an immutable, indexed Graph.
//
// Documents are JSON or YAML with three top-level lists:
//
//	stages: [{id, name, order}]
//	nodes:  [{id, stage_id, order_index, content, node_type, meta: {name, difficulty, responses: [{response_text, score}]}}]
//	edges:  [{from_node, to_node, meta: {edge_type}}]
//
// Identifiers are normalized to strings at this boundary, so a document may use
// numeric ids. Per-node inter-stage gates and the terminal node are computed once
// at load time.
package graph
