// Package config loads and validates the capacity limits a memhist.Writer
// configures its slice builders with. It mirrors the teacher's
// internal/cli.LoadSpecs: decode a plain document (YAML here, CUE there),
// then check the decoded values against an embedded CUE constraint schema
// before handing clean Go values to the caller.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/brinedb/memhist/internal/slice"
)

//go:embed limits_schema.cue
var limitsSchema string

// WriterConfig holds the four capacity limits of the specification's
// §4.2/§6: the soft overlap and access-count caps, the post-build touch
// cap, and the hard transition-span cap. A zero field means "unset",
// matching the original's std::optional<std::size_t> fields.
type WriterConfig struct {
	ChunkSizeOverlapLimit uint64 `yaml:"chunkSizeOverlapLimit" json:"chunkSizeOverlapLimit"`
	ChunkSizeTouchLimit   uint64 `yaml:"chunkSizeTouchLimit" json:"chunkSizeTouchLimit"`
	AccessCountLimit      uint64 `yaml:"accessCountLimit" json:"accessCountLimit"`
	TransitionLimit       uint64 `yaml:"transitionLimit" json:"transitionLimit"`
}

// Defaults returns the default capacity limits from the specification's
// external interface: chunk_size_overlap_limit=100000,
// chunk_size_touch_limit=1000, access_count_limit=10000000,
// transition_limit unset.
func Defaults() WriterConfig {
	return WriterConfig{
		ChunkSizeOverlapLimit: 100_000,
		ChunkSizeTouchLimit:   1_000,
		AccessCountLimit:      10_000_000,
	}
}

// Limits converts a WriterConfig into the slice.Limits shape the builder
// package consumes.
func (c WriterConfig) Limits() slice.Limits {
	return slice.Limits{
		ChunkSizeOverlapLimit: c.ChunkSizeOverlapLimit,
		ChunkSizeTouchLimit:   c.ChunkSizeTouchLimit,
		AccessCountLimit:      c.AccessCountLimit,
		TransitionLimit:       c.TransitionLimit,
	}
}

// ValidationError reports a single constraint failure found while checking
// a decoded WriterConfig against the embedded CUE schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads the YAML document at path and validates it against the CUE
// constraint schema: all fields non-negative (guaranteed by the unsigned
// type) and chunkSizeTouchLimit <= chunkSizeOverlapLimit when both are
// nonzero. It does not apply defaults for omitted fields — callers that
// want the specification's defaults should start from Defaults() and
// override only the fields present in the document.
func Load(path string) (WriterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WriterConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data)
}

// parse decodes and validates a YAML document already held in memory,
// factored out of Load so tests can exercise malformed/valid documents
// without touching the filesystem.
func parse(data []byte) (WriterConfig, error) {
	var cfg WriterConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WriterConfig{}, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return WriterConfig{}, err
	}
	return cfg, nil
}

// validate checks cfg against the embedded CUE schema using the CUE Go
// API directly, the way the teacher's internal/compiler.CompileConcept
// builds a cue.Value from Go data and walks it rather than shelling out to
// the cue CLI.
func validate(cfg WriterConfig) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(limitsSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	schema = schema.LookupPath(cue.ParsePath("#Limits"))

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("config: encode value: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Field: "limits", Message: err.Error()}
	}
	return nil
}
