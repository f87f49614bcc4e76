/*
Package dsl builds convograph documents in Go instead of JSON or YAML.

Stages are declared in order and nodes get their order_index from the order
they are added to a stage, so the last node of the last stage is the terminal.

	b := dsl.New("pitch")

	open := b.Stage("open")
	open.Node("greet", "good morning everyone").Name("Greeting")

	closing := b.Stage("close")
	closing.Node("thanks", "thank you for listening").After("greet")

	g, err := b.Build()          // *graph.Graph
	src, err := b.Source()       // ports.DocumentSource for convograph.New("", convograph.WithSource(src))
*/
package dsl
