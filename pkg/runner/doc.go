/*
Package runner implements the utterance loop and I/O orchestration for a session.

It acts as the bridge between a traversal Session and a terminal or pipe. Each
input line is either a command (:reset, :status, :quit) or an utterance that is
submitted to the session; the outcome is presented through a pluggable handler.

# Key Components

  - Runner: reads lines until :quit, end of input or an interrupt.
  - IOHandler: decouples presentation (text or NDJSON).
  - TextHandler: human-readable output with an optional markdown renderer.
  - JSONHandler: one Event object per line for programs driving the loop.
  - Sanitizer: size limit, UTF-8 validation, control character stripping and whitespace folding.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx, session); err != nil {
		log.Fatal(err)
	}
*/
package runner
