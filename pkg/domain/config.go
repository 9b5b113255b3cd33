package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Database selection modes.
const (
	DatabaseIMGT   = "IMGT"
	DatabaseCustom = "Custom"
)

// Clustering modes for the public-clone pass.
const (
	ModeExact   = "exact"
	ModeLenient = "lenient"
	ModeCustom  = "custom"
)

// RunConfig is the immutable configuration of a single analysis run.
// Keys follow the wire names used by hosts.
type RunConfig struct {
	FastaDir     string `mapstructure:"fasta_dir"`
	CleanFasta   bool   `mapstructure:"clean_fasta"`
	DatabaseType string `mapstructure:"database_type"`
	DatabaseV    string `mapstructure:"database_v"`
	DatabaseD    string `mapstructure:"database_d"`
	DatabaseJ    string `mapstructure:"database_j"`
	OutputDir    string `mapstructure:"output_dir"`
	DataDir      string `mapstructure:"data_dir"`

	// Public-clone clustering knobs.
	PublicMode          string   `mapstructure:"public_mode"`
	SimilarityThreshold *float64 `mapstructure:"similarity_threshold"`
	MaxMismatches       *int     `mapstructure:"max_mismatches"`
	TopN                int      `mapstructure:"top_n"`
}

// DecodeRunConfig maps a raw config object into a RunConfig and applies
// defaults for absent fields.
func DecodeRunConfig(raw map[string]any) (RunConfig, error) {
	var cfg RunConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return RunConfig{}, fmt.Errorf("building config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return RunConfig{}, fmt.Errorf("invalid run config: %w", err)
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = DatabaseIMGT
	}
	if cfg.PublicMode == "" {
		cfg.PublicMode = ModeLenient
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	return cfg, nil
}

// Validate checks fields the controller cannot default.
func (c RunConfig) Validate() error {
	if c.FastaDir == "" {
		return fmt.Errorf("run config: %w: fasta_dir", ErrMissingField)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("run config: %w: output_dir", ErrMissingField)
	}
	if c.DatabaseType == DatabaseCustom {
		if c.DatabaseV == "" || c.DatabaseD == "" || c.DatabaseJ == "" {
			return fmt.Errorf("run config: %w: custom database paths", ErrMissingField)
		}
	}
	return nil
}
