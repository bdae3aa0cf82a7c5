package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nasgraph/graph"
)

var transitionsCmd = &cobra.Command{
	Use:   "transitions <state>",
	Short: "List the transitions leaving (or entering) a state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, err := sideFlag(cmd)
		if err != nil {
			return err
		}
		into, _ := cmd.Flags().GetBool("into")

		e, err := openGraph(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var ts []graph.Transition
		if into {
			g, _ := e.Graph()
			ts, err = g.TransitionsInto(side, args[0])
		} else {
			ts, err = e.TransitionsFrom(side, args[0], queryFlags(cmd)...)
		}
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), ts)
		}
		return printTransitions(cmd, ts)
	},
}

var pathCmd = &cobra.Command{
	Use:   "path <from> <to>",
	Short: "Shortest path between two states",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, err := sideFlag(cmd)
		if err != nil {
			return err
		}
		maxHops, _ := cmd.Flags().GetInt("max-hops")

		e, err := openGraph(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		p, err := e.PathBetween(side, args[0], args[1], maxHops, queryFlags(cmd)...)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), p)
		}

		out := cmd.OutOrStdout()
		if !p.Found {
			fmt.Fprintf(out, "no path from %s to %s\n", p.From, p.To)
			return nil
		}
		fmt.Fprintf(out, "%d hop(s): %s\n", p.Hops, strings.Join(p.States, " -> "))
		return printTransitions(cmd, p.Transitions)
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <entry-state> <message>...",
	Short: "Replay a message sequence from an entry state",
	Long: `Apply each message in order, following the best corroborated edge from
the current state (then its parent states, then wildcard edges). The first
message with no matching edge blocks the trace.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, err := sideFlag(cmd)
		if err != nil {
			return err
		}

		e, err := openGraph(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		tr, err := e.ProcedureTrace(side, args[0], args[1:])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), tr)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "entry\t%s\n", tr.Entry)
		for _, s := range tr.Steps {
			note := ""
			switch {
			case s.Wildcard:
				note = "(wildcard)"
			case s.ViaParent != "":
				note = "(via " + s.ViaParent + ")"
			}
			if len(s.Alternatives) > 0 {
				note = strings.TrimSpace(fmt.Sprintf("%s +%d alternative(s)", note, len(s.Alternatives)))
			}
			fmt.Fprintf(w, "%d\t%s\t-> %s\t%s\n", s.Index+1, s.Message, s.To, note)
		}
		if tr.Blocked != nil {
			fmt.Fprintf(w, "blocked\t%s in %s\n", tr.Blocked.Message, tr.Blocked.State)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{transitionsCmd, pathCmd, traceCmd} {
		c.Flags().String("side", "UE", "state machine side (UE or NETWORK)")
	}
	transitionsCmd.Flags().Bool("wildcards", false, "include ANY edges")
	transitionsCmd.Flags().Bool("into", false, "list incoming transitions instead")
	pathCmd.Flags().Bool("wildcards", false, "allow ANY edges on the path")
	pathCmd.Flags().Int("max-hops", 0, "hop limit (0 for unlimited)")
}

func queryFlags(cmd *cobra.Command) []graph.QueryOption {
	if w, _ := cmd.Flags().GetBool("wildcards"); w {
		return []graph.QueryOption{graph.WithWildcards()}
	}
	return nil
}

func printTransitions(cmd *cobra.Command, ts []graph.Transition) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FROM\tMESSAGE\tTO\tCHUNKS")
	for _, t := range ts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.From, t.Message, t.To, t.CorroborationCount)
	}
	return w.Flush()
}
