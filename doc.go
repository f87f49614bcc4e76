/*
Package convograph tracks a speaker's progress through a staged dialogue graph.

A graph document declares stages, nodes (the things a speaker is expected to
say) and edges. Nodes of the first stage, and any node without a gate, are
available from the start; a node behind inter-stage edges becomes available
once any one of its predecessors has been visited. Each utterance is scored by
a similarity Oracle against the available nodes, and the best match above the
confidence threshold is visited, scored and highlighted. Visiting the terminal
node (the highest order_index node of the last stage) completes the session.

# Concept

The Engine holds the immutable graph and the Oracle. Sessions own their state
and allow one utterance in flight at a time: a second submission while the
Oracle is scoring is rejected as busy. Multi-session servers use pkg/session,
which persists state through a ports.StateStore (memory, file or redis).

# Usage

	eng, err := convograph.New("./pitch.yaml")
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	ctx := context.Background()
	if err := eng.InitOracle(ctx); err != nil {
		log.Fatal(err)
	}

	sess := eng.NewSession(ctx, "demo")
	defer sess.Close()

	out, err := sess.Submit(ctx, "hello everyone, thanks for coming")
	if err != nil {
		log.Printf("turn failed: %v", err)
	}
	fmt.Println(out.Kind, out.NodeID, sess.Progress().Percent)
*/
package convograph
