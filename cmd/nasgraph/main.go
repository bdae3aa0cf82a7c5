// Command nasgraph ingests NAS extraction records or specification
// documents, builds the per-side state machines and queries them.
//
// Usage:
//
//	nasgraph [flags] <command> [args]
//
// Commands:
//
//	ingest       - Store chunk records or parse specification documents
//	extract      - Print the chunk records extracted from a document
//	build        - Build the graph from every stored record
//	transitions  - List the transitions leaving (or entering) a state
//	path         - Shortest path between two states
//	trace        - Replay a message sequence from an entry state
//	export       - Write the graph as JSON or Mermaid
//	runs         - Show the build history
//	stats        - Show graph and store statistics
//	eval         - Check the graph against a conformance dataset
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
