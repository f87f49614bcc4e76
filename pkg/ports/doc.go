/*
Package ports defines the driven ports (interfaces) for the convograph engine.

These interfaces decouple the traversal core from external implementations, allowing
the engine to work with various similarity backends, storage backends and document sources.

# Key Interfaces

  - Oracle: Scores an utterance against candidate node contents (embeddings, lexical, worker process).
  - StateStore: Responsible for persisting and loading session State.
  - DistributedLocker: Provides distributed locking for handling concurrent session access.
  - DocumentSource: Supplies the raw graph document and, optionally, change notifications.
*/
package ports
