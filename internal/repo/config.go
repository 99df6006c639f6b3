package repo

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is ambient presentation/tuning glue decoded from an optional
// ".codebased.yml" at the repository root. Loading it is out of the
// core's scope (§1 Non-goals); no invariant of the core depends on it.
type Config struct {
	EmbeddingModel string `yaml:"embedding_model"`
	Dim            int    `yaml:"dim"`
	TopK           int    `yaml:"top_k"`
}

// DefaultConfig mirrors the recommended values named throughout spec.md.
func DefaultConfig() Config {
	return Config{
		EmbeddingModel: "text-embedding-3-small",
		Dim:            1536,
		TopK:           10,
	}
}

// LoadConfig decodes path if present, falling back to DefaultConfig values
// for any field left zero.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var overrides Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return cfg, err
	}

	if overrides.EmbeddingModel != "" {
		cfg.EmbeddingModel = overrides.EmbeddingModel
	}
	if overrides.Dim != 0 {
		cfg.Dim = overrides.Dim
	}
	if overrides.TopK != 0 {
		cfg.TopK = overrides.TopK
	}
	return cfg, nil
}
