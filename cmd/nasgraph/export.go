package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nasgraph/graph"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the graph as JSON or Mermaid",
	Long: `Export the graph built from the stored records.

Formats:
  json      full snapshot (states, transitions with evidence, elements, ...)
  mermaid   stateDiagram-v2 of one side
  topology  flowchart of network elements and their relationships`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		expand, _ := cmd.Flags().GetBool("expand")
		corroboration, _ := cmd.Flags().GetBool("corroboration")

		side, err := sideFlag(cmd)
		if err != nil {
			return err
		}

		e, err := openGraph(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		g, err := e.Graph()
		if err != nil {
			return err
		}

		var data []byte
		switch format {
		case "json":
			if data, err = json.MarshalIndent(g.Snapshot(), "", "  "); err != nil {
				return err
			}
			data = append(data, '\n')
		case "mermaid":
			var opts []graph.MermaidOption
			if expand {
				opts = append(opts, graph.ExpandWildcards())
			}
			if corroboration {
				opts = append(opts, graph.WithCorroboration())
			}
			data = []byte(g.Mermaid(side, opts...))
		case "topology":
			data = []byte(g.MermaidTopology())
		default:
			return fmt.Errorf("unknown format %q: want json, mermaid or topology", format)
		}
		return writeOutput(cmd, output, data)
	},
}

func init() {
	exportCmd.Flags().String("format", "json", "json, mermaid or topology")
	exportCmd.Flags().String("side", "UE", "state machine side for mermaid (UE or NETWORK)")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	exportCmd.Flags().Bool("expand", false, "draw wildcard edges from every state")
	exportCmd.Flags().Bool("corroboration", false, "label edges with their chunk count")
}
