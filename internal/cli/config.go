package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RareSkills/icp-for-evm-sub000/internal/engine"
)

// Configuration keys, settable by flag, environment variable
// (CANSIM_ prefix, dashes become underscores), or config file.
const (
	journalKey  = "journal"
	maxStepsKey = "max-steps"
	maxDepthKey = "max-depth"
)

// EngineConfig holds the runtime settings shared by the commands that
// start an engine.
type EngineConfig struct {
	Journal  string `json:"journal"`
	MaxSteps int    `json:"max_steps"`
	MaxDepth int    `json:"max_depth"`
}

// newEngineViper builds a viper instance bound to the command's flags,
// layered under CANSIM_* environment variables and an optional
// cansim.yaml in the working directory.
func newEngineViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(maxStepsKey, engine.DefaultMaxSteps)
	v.SetDefault(maxDepthKey, engine.DefaultMaxDepth)

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	v.SetEnvPrefix("CANSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("cansim")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return v, nil
}

// loadEngineConfig resolves the engine settings for a command.
func loadEngineConfig(cmd *cobra.Command) (EngineConfig, error) {
	v, err := newEngineViper(cmd)
	if err != nil {
		return EngineConfig{}, err
	}

	cfg := EngineConfig{
		Journal:  v.GetString(journalKey),
		MaxSteps: v.GetInt(maxStepsKey),
		MaxDepth: v.GetInt(maxDepthKey),
	}
	if cfg.MaxSteps <= 0 {
		return EngineConfig{}, fmt.Errorf("%s must be positive, got %d", maxStepsKey, cfg.MaxSteps)
	}
	if cfg.MaxDepth <= 0 {
		return EngineConfig{}, fmt.Errorf("%s must be positive, got %d", maxDepthKey, cfg.MaxDepth)
	}
	return cfg, nil
}

// addEngineFlags registers the flags backing the engine configuration.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String(journalKey, "", "path to the SQLite journal")
	cmd.Flags().Int(maxStepsKey, engine.DefaultMaxSteps, "op budget per call tree")
	cmd.Flags().Int(maxDepthKey, engine.DefaultMaxDepth, "sub-call depth budget")
}
