package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nasgraph"
	"github.com/brunobiangulo/nasgraph/chunker"
	"github.com/brunobiangulo/nasgraph/extract"
	"github.com/brunobiangulo/nasgraph/parser"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Store chunk records or parse specification documents",
	Long: `Store chunk records (.json, .jsonl, .xlsx files or directories of them)
or run specification documents (.pdf, .docx, .txt, .md) through parsing,
chunking and extraction. Documents whose content is unchanged are skipped
unless --force is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asDocument, _ := cmd.Flags().GetBool("document")
		force, _ := cmd.Flags().GetBool("force")

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		var results []*nasgraph.IngestResult
		for _, path := range args {
			var res *nasgraph.IngestResult
			if !asDocument && isRecordPath(path) {
				res, err = e.IngestRecords(cmd.Context(), path)
			} else {
				var opts []nasgraph.IngestOption
				if force {
					opts = append(opts, nasgraph.WithForceReparse())
				}
				res, err = e.IngestDocument(cmd.Context(), path, opts...)
			}
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			results = append(results, res)
		}

		if jsonOut {
			return printJSON(cmd.OutOrStdout(), results)
		}
		out := cmd.OutOrStdout()
		for i, res := range results {
			switch {
			case res.Skipped:
				fmt.Fprintf(out, "%s: unchanged, skipped\n", args[i])
			case res.DocumentID != 0 && res.Chunks != res.Records:
				fmt.Fprintf(out, "%s: %d chunks, %d records\n", args[i], res.Chunks, res.Records)
			default:
				fmt.Fprintf(out, "%s: %d records\n", args[i], res.Records)
			}
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <document>",
	Short: "Print the chunk records extracted from a document",
	Long: `Parse, chunk and extract a specification document without storing
anything. The output is a JSON array of chunk records that 'nasgraph ingest'
accepts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		all, _ := cmd.Flags().GetBool("all")

		cfg, err := nasgraph.LoadConfig(configPath)
		if err != nil {
			return err
		}
		parsed, err := parser.NewRegistry().ParseFile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%w: %v", nasgraph.ErrParsingFailed, err)
		}
		chunks := chunker.New(chunker.Config{
			MaxTokens: cfg.MaxChunkTokens,
			Overlap:   cfg.ChunkOverlap,
		}).Chunk(filepath.Base(args[0]), parsed.Sections)

		var opts []extract.Option
		if all {
			opts = append(opts, extract.WithAllChunks())
		}
		recs, err := extract.New(opts...).Extract(cmd.Context(), chunks)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		if err := writeOutput(cmd, output, append(data, '\n')); err != nil {
			return err
		}
		if output != "" && output != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d sections, %d chunks, %d records written to %s\n",
				len(parsed.Sections), len(chunks), len(recs), output)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("document", false, "treat every path as a specification document")
	ingestCmd.Flags().Bool("force", false, "re-parse documents even if unchanged")

	extractCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	extractCmd.Flags().Bool("all", false, "keep chunks that mention no state or message")
}

// isRecordPath reports whether path holds chunk records rather than a
// document.
func isRecordPath(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return true
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson", ".xlsx":
		return true
	}
	return false
}
