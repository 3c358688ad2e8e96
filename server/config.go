package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/binwatch/pkg/kibi"
)

type Config struct {
	Listen        string        `json:"listen"`        // eg ":8080"
	Vocabulary    string        `json:"vocabulary"`    // Optional path to a vocabulary JSON file. Relative paths are relative to the config file.
	MinConfidence float32       `json:"minConfidence"` // Drop detections below this confidence
	MergeIoU      float64       `json:"mergeIoU"`      // Merge same-class duplicates above this IoU (0 = don't merge)
	Stride        int           `json:"stride"`        // Default sampling stride for streams
	Workers       int           `json:"workers"`       // Assessment workers per stream
	MaxBody       string        `json:"maxBody"`       // Maximum size of request bodies, and of each websocket message, eg "16 MB"
	RateLimit     int           `json:"rateLimit"`     // Requests per minute, per IP, to the assess and annotate APIs (0 = unlimited)
	JPEGQuality   int           `json:"jpegQuality"`   // Quality of JPEGs that we produce
	FrameStorage  StorageConfig `json:"frameStorage"`  // Where to store annotated stream frames. If neither option is set, frames are not stored.
	KeepFrames    int           `json:"keepFrames"`    // Keep only the last N stored frames of each stream (0 = keep all)
}

// At most one of the storage options may be configured (i.e. either 'filesystem' or 'gcs')
type StorageConfig struct {
	Filesystem *StorageConfigFS  `json:"filesystem"`
	GCS        *StorageConfigGCS `json:"gcs"`
}

type StorageConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type StorageConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Prefix string `json:"prefix"` // Prepended to all object names, eg "binwatch/"
	Public bool   `json:"public"` // Whether the bucket is public, in which case we can hand out direct URLs to frames
}

func DefaultConfig() Config {
	return Config{
		Listen:      ":8080",
		Stride:      2,
		Workers:     1,
		MaxBody:     "16 MB",
		RateLimit:   120,
		JPEGQuality: 85,
	}
}

// LoadConfig reads a JSON config file. Fields that are absent keep their defaults.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if cfgB, err := os.ReadFile(configFile); err != nil {
		return nil, err
	} else {
		if err := json.Unmarshal(cfgB, &cfg); err != nil {
			return nil, fmt.Errorf("Error parsing config file %v: %w", configFile, err)
		}
	}
	if cfg.Vocabulary != "" && !filepath.IsAbs(cfg.Vocabulary) {
		cfg.Vocabulary = filepath.Join(filepath.Dir(configFile), cfg.Vocabulary)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config file %v: %w", configFile, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.FrameStorage.Filesystem != nil && c.FrameStorage.GCS != nil {
		return fmt.Errorf("Only one of 'filesystem' or 'gcs' may be configured for frameStorage")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("minConfidence must be between 0 and 1")
	}
	if c.MergeIoU < 0 || c.MergeIoU > 1 {
		return fmt.Errorf("mergeIoU must be between 0 and 1")
	}
	if c.Stride < 0 || c.Workers < 0 || c.RateLimit < 0 || c.KeepFrames < 0 {
		return fmt.Errorf("stride, workers, rateLimit and keepFrames may not be negative")
	}
	if _, err := c.MaxBodyBytes(); err != nil {
		return err
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpegQuality must be between 0 and 100")
	}
	return nil
}

// MaxBodyBytes parses MaxBody
func (c *Config) MaxBodyBytes() (int64, error) {
	n, err := kibi.ParseBytes(c.MaxBody)
	if err != nil {
		return 0, fmt.Errorf("Invalid maxBody '%v': %w", c.MaxBody, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("maxBody may not be zero")
	}
	return n, nil
}
