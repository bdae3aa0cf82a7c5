//go:build cgo

package main

import (
	"bytes"
	"errors"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpus = `[
 {"chunk_id": "c1",
  "transitions": [
    {"from_state": "5GMM-DEREGISTERED", "to_state": "5GMM-REGISTERED-INITIATED", "message": "REGISTRATION REQUEST", "side": "UE"},
    {"from_state": "5GMM-REGISTERED-INITIATED", "to_state": "5GMM-REGISTERED", "message": "REGISTRATION ACCEPT", "side": "UE"}]},
 {"chunk_id": "c2",
  "transitions": [
    {"from_state": "5GMM-REGISTERED-INITIATED", "to_state": "5GMM-REGISTERED", "message": "REGISTRATION ACCEPT MESSAGE", "side": "UE"}]}
]`

const spec = `5.5.2.3.1 Network-initiated de-registration

The AMF shall send a DEREGISTRATION REQUEST message to the UE and start timer T3522. The AMF enters state 5GMM-DEREGISTERED-INITIATED.
`

// setupCLI writes the corpus and returns the database and corpus paths.
func setupCLI(t *testing.T) (db, records string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	records = filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(records, []byte(corpus), 0o644))
	return filepath.Join(dir, "cli.db"), records
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	resetFlags(rootCmd)
	return out.String(), errOut.String(), err
}

func resetFlags(cmd *cobra.Command) {
	configPath, dbPath, jsonOut, verbose = "", "", false, false
	var reset func(*cobra.Command)
	reset = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(cmd)
}

func TestIngestBuildQuery(t *testing.T) {
	db, records := setupCLI(t)

	out, _, err := runCmd(t, "--db", db, "ingest", records)
	require.NoError(t, err)
	assert.Contains(t, out, "2 records")

	out, _, err = runCmd(t, "--db", db, "build")
	require.NoError(t, err)
	assert.Contains(t, out, "3 raw, 2 canonical")

	out, _, err = runCmd(t, "--db", db, "transitions", "5GMM-REGISTERED-INITIATED")
	require.NoError(t, err)
	assert.Contains(t, out, "REGISTRATION ACCEPT")
	assert.Contains(t, out, "5GMM-REGISTERED")

	out, _, err = runCmd(t, "--db", db, "--json", "path", "5GMM-DEREGISTERED", "5GMM-REGISTERED")
	require.NoError(t, err)
	var p struct {
		Found bool `json:"found"`
		Hops  int  `json:"hops"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.True(t, p.Found)
	assert.Equal(t, 2, p.Hops)

	out, _, err = runCmd(t, "--db", db, "trace", "5GMM-DEREGISTERED", "REGISTRATION REQUEST", "SERVICE REQUEST")
	require.NoError(t, err)
	assert.Contains(t, out, "blocked")
	assert.Contains(t, out, "SERVICE REQUEST in 5GMM-REGISTERED-INITIATED")

	out, _, err = runCmd(t, "--db", db, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestExportFormats(t *testing.T) {
	db, records := setupCLI(t)
	_, _, err := runCmd(t, "--db", db, "ingest", records)
	require.NoError(t, err)

	out, _, err := runCmd(t, "--db", db, "export", "--format", "mermaid", "--corroboration")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stateDiagram-v2"))

	file := filepath.Join(t.TempDir(), "graph.json")
	_, _, err = runCmd(t, "--db", db, "export", "-o", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Contains(t, snap, "machines")

	_, _, err = runCmd(t, "--db", db, "export", "--format", "svg")
	assert.Error(t, err)
}

func TestExtractDocument(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	doc := filepath.Join(dir, "24501.txt")
	require.NoError(t, os.WriteFile(doc, []byte(spec), 0o644))

	out, _, err := runCmd(t, "extract", doc)
	require.NoError(t, err)
	var recs []struct {
		ChunkID     string `json:"chunk_id"`
		Transitions []struct {
			ToState string `json:"to_state"`
			Message string `json:"message"`
			Side    string `json:"side"`
		} `json:"transitions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "24501.txt#0", recs[0].ChunkID)
	require.NotEmpty(t, recs[0].Transitions)
	assert.Equal(t, "5GMM-DEREGISTERED-INITIATED", recs[0].Transitions[0].ToState)
	assert.Equal(t, "DEREGISTRATION REQUEST", recs[0].Transitions[0].Message)
	assert.Equal(t, "NETWORK", recs[0].Transitions[0].Side)
}

func TestQueryErrors(t *testing.T) {
	db, records := setupCLI(t)

	_, _, err := runCmd(t, "--db", db, "transitions", "5GMM-REGISTERED")
	assert.Error(t, err, "no records yet")

	_, _, err = runCmd(t, "--db", db, "ingest", records)
	require.NoError(t, err)

	_, _, err = runCmd(t, "--db", db, "transitions", "5GMM-REGISTERD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean")

	_, _, err = runCmd(t, "--db", db, "transitions", "--side", "MME", "5GMM-REGISTERED")
	assert.Error(t, err)
}

func TestEvalCommand(t *testing.T) {
	db, records := setupCLI(t)
	_, _, err := runCmd(t, "--db", db, "ingest", records)
	require.NoError(t, err)

	out, _, err := runCmd(t, "--db", db, "eval")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errEvalFailed))
	assert.Contains(t, out, "[PASS] 1. initial registration starts")
	assert.Contains(t, out, "[FAIL] 3. UE-initiated de-registration starts")

	_, _, err = runCmd(t, "--db", db, "eval", "--no-fail")
	require.NoError(t, err)

	ds := filepath.Join(t.TempDir(), "ds.yaml")
	require.NoError(t, os.WriteFile(ds, []byte(`
name: accept
tests:
  - name: accept corroborated
    category: transition
    side: UE
    from: 5GMM-REGISTERED-INITIATED
    message: REGISTRATION ACCEPT
    to: 5GMM-REGISTERED
    min_corroboration: 2
`), 0o644))
	out, _, err = runCmd(t, "--db", db, "--json", "eval", ds)
	require.NoError(t, err)
	var rep struct {
		Passed int `json:"passed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Passed)
}
