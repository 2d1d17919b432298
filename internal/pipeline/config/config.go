package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidChunkSize    = errors.New("chunk_size must be positive")
	ErrInvalidOverlapRatio = errors.New("overlap_ratio must be in [0, 1]")
	ErrInvalidBatchSize    = errors.New("batch_size must be positive")
)

// Config holds the pipeline settings loaded from YAML. Secrets such as
// database credentials and API keys come from the environment, never
// from this file.
type Config struct {
	Input      InputConfig      `yaml:"input"`
	Embed      EmbedConfig      `yaml:"embed"`
	Index      IndexConfig      `yaml:"index"`
	Generation GenerationConfig `yaml:"generation"`
}

type InputConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	OverlapRatio float64 `yaml:"overlap_ratio"`
}

type EmbedConfig struct {
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Normalize bool   `yaml:"normalize"`
}

type IndexConfig struct {
	Dir string `yaml:"dir"`
}

type GenerationConfig struct {
	AnswerModel string `yaml:"answer_model"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			ChunkSize:    384,
			OverlapRatio: 0.15,
		},
		Embed: EmbedConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 32,
			Normalize: true,
		},
		Index: IndexConfig{
			Dir: "artifacts",
		},
		Generation: GenerationConfig{
			AnswerModel: "gpt-4o-mini",
		},
	}
}

// Load reads the config file at path, applying defaults for any field
// the file omits. A missing file yields the defaults without error; an
// empty path always yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Input.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.Input.OverlapRatio < 0 || c.Input.OverlapRatio > 1 {
		return ErrInvalidOverlapRatio
	}
	if c.Embed.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	return nil
}

// Metric names the similarity metric implied by the normalization
// setting. Normalized vectors are compared by inner product, which
// matches cosine similarity; unnormalized vectors use euclidean
// distance.
func (c *Config) Metric() string {
	if c.Embed.Normalize {
		return "cosine"
	}
	return "euclidean"
}
