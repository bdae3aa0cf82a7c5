package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nasgraph"
	"github.com/brunobiangulo/nasgraph/model"
)

var (
	// Global flags
	configPath string
	dbPath     string
	jsonOut    bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "nasgraph",
	Short: "Build and query 3GPP NAS state machines",
	Long: `nasgraph - normalize extracted NAS procedure records into per-side
state machines (UE and NETWORK) and query them.

Records are stored in a local SQLite database; each build reads every stored
record, so ingesting more corpora and rebuilding is always safe.

Examples:
  # Store extraction output and build
  nasgraph ingest results/*.json
  nasgraph build

  # Or extract records from the specification itself
  nasgraph ingest --document ts_124501.pdf

  # Query
  nasgraph transitions 5GMM-REGISTERED --side UE
  nasgraph path 5GMM-DEREGISTERED 5GMM-REGISTERED --max-hops 6
  nasgraph trace 5GMM-DEREGISTERED "REGISTRATION REQUEST" "REGISTRATION ACCEPT"
  nasgraph export --format mermaid --side NETWORK -o network.mmd

  # Check the graph against expected behaviour
  nasgraph eval registration.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(ingestCmd, extractCmd, buildCmd, transitionsCmd, pathCmd,
		traceCmd, exportCmd, runsCmd, statsCmd, evalCmd)
}

// openEngine loads the configuration, applies the global flags and opens
// the engine. Logs go to stderr so command output stays parseable.
func openEngine(cmd *cobra.Command) (nasgraph.Engine, error) {
	cfg, err := nasgraph.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	return nasgraph.New(cmd.Context(), cfg)
}

// openGraph opens the engine and loads the graph from the stored records.
func openGraph(cmd *cobra.Command) (nasgraph.Engine, error) {
	e, err := openEngine(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := e.Load(cmd.Context()); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func sideFlag(cmd *cobra.Command) (model.Side, error) {
	v, _ := cmd.Flags().GetString("side")
	side, ok := model.ParseSide(v)
	if !ok {
		return "", fmt.Errorf("invalid --side %q: want UE or NETWORK", v)
	}
	return side, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
