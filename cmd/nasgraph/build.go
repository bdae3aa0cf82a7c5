package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the graph from every stored record",
	Long: `Run ingestion, normalization, conflict resolution and graph building
over every stored chunk record. The snapshot is saved to the database, and to
Neo4j when configured. A failed build leaves the previous snapshot in place.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		rep, err := e.Build(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), rep)
		}

		st := rep.Stats
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "run\t%s\n", rep.RunID)
		fmt.Fprintf(w, "chunks\t%d\n", rep.Ingest.Chunks)
		fmt.Fprintf(w, "malformed\t%d\n", st.Malformed)
		fmt.Fprintf(w, "transitions\t%d raw, %d canonical\n", rep.RawTransitions, rep.CanonicalTransitions)
		fmt.Fprintf(w, "states\t%d (%d stubs)\n", st.States, st.Stubs)
		fmt.Fprintf(w, "wildcards\t%d\n", st.Wildcards)
		fmt.Fprintf(w, "self loops\t%d\n", st.SelfLoops)
		fmt.Fprintf(w, "divergences\t%d\n", st.Divergences)
		fmt.Fprintf(w, "conflicts\t%d\n", st.Conflicts)
		fmt.Fprintf(w, "elements\t%d\n", st.Elements)
		for _, s := range rep.Stages {
			fmt.Fprintf(w, "  %s\t%s\n", s.Stage, s.Duration.Round(time.Microsecond))
		}
		return w.Flush()
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the build history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		runs, err := e.Runs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(cmd.OutOrStdout(), runs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCHUNKS\tSTATES\tTRANSITIONS\tSTARTED\tERROR")
		for _, r := range runs {
			states, transitions := "-", "-"
			if r.Stats != nil {
				states = fmt.Sprint(r.Stats.States)
				transitions = fmt.Sprint(r.Stats.Transitions)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
				r.ID, r.Status, r.Chunks, states, transitions,
				r.StartedAt.Local().Format(time.DateTime), r.Error)
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph and store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		// Stats reports on the in-memory graph; load it when records exist.
		if _, err := e.Load(cmd.Context()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "no graph: %v\n", err)
		}
		st, err := e.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs (0 for all)")
}
