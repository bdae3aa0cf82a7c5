package nasgraph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/normalize"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nasgraph", cfg.DBName)
	assert.True(t, cfg.Fuzzy)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nasgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /tmp/specs.db
embedding_dim: 0
strict_initial: true
fuzzy: false
synonyms:
  - side: UE
    from: 5GMM-REG-INIT
    to: 5GMM-REGISTERED-INITIATED
vocabulary:
  NETWORK: [5GMM-COMMON-PROCEDURE-INITIATED]
neo4j:
  uri: bolt://localhost:7687
  timeout: 5s
log_level: debug
`), 0o644))

	t.Setenv("NASGRAPH_ADDR", ":9090")
	t.Setenv("NASGRAPH_NEO4J_PASSWORD", "secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/specs.db", cfg.DBPath)
	assert.Equal(t, "/tmp/specs.db", cfg.resolveDBPath())
	assert.Zero(t, cfg.EmbeddingDim)
	assert.True(t, cfg.StrictInitial)
	assert.False(t, cfg.Fuzzy)
	require.Len(t, cfg.Synonyms, 1)
	assert.Equal(t, model.SideUE, cfg.Synonyms[0].Side)
	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 5*time.Second, cfg.Neo4j.Timeout)
	assert.Equal(t, "secret", cfg.Neo4j.Password)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)

	// fuzzy, synonyms and one vocabulary side
	assert.Len(t, cfg.normalizeOptions(), 3)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("NASGRAPH_EMBEDDING_DIM", "wide")
	_, err := LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }},
		{"storage dir", func(c *Config) { c.StorageDir = "tmp" }},
		{"negative dim", func(c *Config) { c.EmbeddingDim = -1 }},
		{"no db", func(c *Config) { c.DBName = ""; c.DBPath = "" }},
		{"overlap", func(c *Config) { c.ChunkOverlap = c.MaxChunkTokens }},
		{"vocabulary side", func(c *Config) { c.Vocabulary = map[string][]string{"MME": {"EMM-NULL"}} }},
		{"synonym side", func(c *Config) {
			c.Synonyms = []normalize.Synonym{{Side: "moon", From: "5GMM-REG-INIT", To: "5GMM-REGISTERED-INITIATED"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadConfigLowercaseSynonymSide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nasgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
synonyms:
  - side: ue
    from: 5GMM-REG-INIT
    to: 5GMM-REGISTERED-INITIATED
  - side: network side
    from: 5GMM-COMMON-PROC
    to: 5GMM-COMMON-PROCEDURE-INITIATED
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.NotPanics(t, func() { normalize.New(cfg.normalizeOptions()...) })
	n := normalize.New(cfg.normalizeOptions()...)
	ue, err := n.State(model.SideUE, "5GMM-REG-INIT", "c1")
	require.NoError(t, err)
	assert.Equal(t, "5GMM-REGISTERED-INITIATED", ue)
	nw, err := n.State(model.SideNetwork, "5GMM-COMMON-PROC", "c1")
	require.NoError(t, err)
	assert.Equal(t, "5GMM-COMMON-PROCEDURE-INITIATED", nw)
}

func TestResolveDBPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDir = "local"
	cfg.DBName = "specs"
	assert.Equal(t, "specs.db", cfg.resolveDBPath())

	cfg.StorageDir = "home"
	assert.Equal(t, "specs.db", filepath.Base(cfg.resolveDBPath()))
}
