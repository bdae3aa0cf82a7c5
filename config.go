package nasgraph

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/nasgraph/model"
	"github.com/brunobiangulo/nasgraph/neo4jdb"
	"github.com/brunobiangulo/nasgraph/normalize"
)

// Config holds all configuration for the nasgraph engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.nasgraph/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name" validate:"required_without=DBPath"`

	// StorageDir controls where the database is created when DBPath
	// is not set: "home" (default) uses ~/.nasgraph/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir" validate:"omitempty,oneof=home local cwd"`

	// EmbeddingDim is the length of chunk embeddings kept for similarity
	// search. 0 disables the vector table.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim" validate:"gte=0,lte=8192"`

	// Concurrency bounds parallel chunk parsing and extraction.
	// 0 means one worker per CPU.
	Concurrency int `json:"concurrency" yaml:"concurrency" validate:"gte=0"`

	// Chunking of documents ingested with IngestDocument.
	MaxChunkTokens int `json:"max_chunk_tokens" yaml:"max_chunk_tokens" validate:"gte=0"`
	ChunkOverlap   int `json:"chunk_overlap" yaml:"chunk_overlap" validate:"gte=0"`

	// Normalization
	Fuzzy               bool                `json:"fuzzy" yaml:"fuzzy"`
	Synonyms            []normalize.Synonym `json:"synonyms,omitempty" yaml:"synonyms,omitempty" validate:"dive"`
	Vocabulary          map[string][]string `json:"vocabulary,omitempty" yaml:"vocabulary,omitempty"`
	NoDefaultVocabulary bool                `json:"no_default_vocabulary" yaml:"no_default_vocabulary"`

	// StrictInitial fails a build when an INITIAL state has incoming edges.
	StrictInitial bool `json:"strict_initial" yaml:"strict_initial"`

	// Neo4j mirrors every successful build when URI is set.
	Neo4j neo4jdb.Config `json:"neo4j" yaml:"neo4j"`

	Server ServerConfig `json:"server" yaml:"server"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	APIKey      string `json:"api_key" yaml:"api_key"`
	CORSOrigins string `json:"cors_origins" yaml:"cors_origins"`
}

// DefaultConfig returns a Config with defaults for local use.
// The database is stored in ~/.nasgraph/nasgraph.db.
func DefaultConfig() Config {
	return Config{
		DBName:         "nasgraph",
		StorageDir:     "home",
		EmbeddingDim:   768,
		MaxChunkTokens: 512,
		ChunkOverlap:   64,
		Fuzzy:          true,
		Server:         ServerConfig{Addr: ":8080"},
		LogLevel:       "info",
	}
}

// LoadConfig reads a YAML (or JSON) file over DefaultConfig and applies
// environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from NASGRAPH_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"NASGRAPH_DB_PATH":        &c.DBPath,
		"NASGRAPH_NEO4J_URI":      &c.Neo4j.URI,
		"NASGRAPH_NEO4J_USER":     &c.Neo4j.User,
		"NASGRAPH_NEO4J_PASSWORD": &c.Neo4j.Password,
		"NASGRAPH_NEO4J_DATABASE": &c.Neo4j.Database,
		"NASGRAPH_ADDR":           &c.Server.Addr,
		"NASGRAPH_API_KEY":        &c.Server.APIKey,
		"NASGRAPH_CORS_ORIGINS":   &c.Server.CORSOrigins,
		"NASGRAPH_LOG_LEVEL":      &c.LogLevel,
	}
	for env, dst := range str {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("NASGRAPH_EMBEDDING_DIM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: NASGRAPH_EMBEDDING_DIM: %v", ErrInvalidConfig, err)
		}
		c.EmbeddingDim = n
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints, chunk sizes and vocabulary side
// names.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxChunkTokens > 0 && c.ChunkOverlap >= c.MaxChunkTokens {
		return fmt.Errorf("%w: chunk_overlap must be below max_chunk_tokens", ErrInvalidConfig)
	}
	for side := range c.Vocabulary {
		if _, ok := model.ParseSide(side); !ok {
			return fmt.Errorf("%w: vocabulary side %q", ErrInvalidConfig, side)
		}
	}
	for i, syn := range c.Synonyms {
		if _, ok := model.ParseSide(string(syn.Side)); !ok {
			return fmt.Errorf("%w: synonym %d side %q", ErrInvalidConfig, i, syn.Side)
		}
	}
	return nil
}

// normalizeOptions turns the normalization settings into options.
func (c Config) normalizeOptions() []normalize.Option {
	opts := []normalize.Option{normalize.WithFuzzy(c.Fuzzy)}
	if c.NoDefaultVocabulary {
		opts = append(opts, normalize.WithoutDefaults())
	}
	if len(c.Synonyms) > 0 {
		opts = append(opts, normalize.WithSynonyms(c.Synonyms...))
	}
	for side, names := range c.Vocabulary {
		s, _ := model.ParseSide(side)
		opts = append(opts, normalize.WithVocabulary(s, names...))
	}
	return opts
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	name := c.DBName
	if name == "" {
		name = "nasgraph"
	}
	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".nasgraph", name+".db")
	}
}
