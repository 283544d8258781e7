package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds buffer pool configuration
type Config struct {
	// Buffer pool configuration
	NumInstances     uint32 `json:"num_instances"`      // Number of buffer pool instances (shards)
	InstancePoolSize uint32 `json:"instance_pool_size"` // Frames per instance

	// Disk configuration
	DataDirectory string `json:"data_directory"` // Directory for data files
	PageSize      uint32 `json:"page_size"`      // Page size in bytes (default: 4096)
	UseMmap       bool   `json:"use_mmap"`       // Use the memory-mapped disk manager

	// WAL configuration
	WALDirectory   string `json:"wal_directory"`   // Directory for WAL files
	WALEnabled     bool   `json:"wal_enabled"`     // Whether WAL is enabled
	WALCompression string `json:"wal_compression"` // Payload compression (none, snappy, lz4)

	// Performance configuration
	EnableMetrics bool   `json:"enable_metrics"` // Whether to collect performance metrics
	LogLevel      string `json:"log_level"`      // Log level (debug, info, warn, error)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		NumInstances:     4,
		InstancePoolSize: 128,
		DataDirectory:    "./data",
		PageSize:         PageSize,
		UseMmap:          false,
		WALDirectory:     "./wal",
		WALEnabled:       true,
		WALCompression:   "snappy",
		EnableMetrics:    true,
		LogLevel:         "info",
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigFromEnv loads configuration from environment variables.
// Falls back to default values if environment variables are not set.
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	// Buffer pool
	if val := os.Getenv("STRATAPOOL_NUM_INSTANCES"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.NumInstances = uint32(n)
		}
	}

	if val := os.Getenv("STRATAPOOL_INSTANCE_POOL_SIZE"); val != "" {
		if size, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.InstancePoolSize = uint32(size)
		}
	}

	// Disk
	if val := os.Getenv("STRATAPOOL_DATA_DIRECTORY"); val != "" {
		config.DataDirectory = val
	}

	if val := os.Getenv("STRATAPOOL_USE_MMAP"); val != "" {
		config.UseMmap = val == "true" || val == "1"
	}

	// WAL
	if val := os.Getenv("STRATAPOOL_WAL_DIRECTORY"); val != "" {
		config.WALDirectory = val
	}

	if val := os.Getenv("STRATAPOOL_WAL_ENABLED"); val != "" {
		config.WALEnabled = val == "true" || val == "1"
	}

	if val := os.Getenv("STRATAPOOL_WAL_COMPRESSION"); val != "" {
		config.WALCompression = val
	}

	// Performance
	if val := os.Getenv("STRATAPOOL_ENABLE_METRICS"); val != "" {
		config.EnableMetrics = val == "true" || val == "1"
	}

	if val := os.Getenv("STRATAPOOL_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	return config
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.NumInstances == 0 {
		return fmt.Errorf("instance count must be greater than 0")
	}

	if c.InstancePoolSize == 0 {
		return fmt.Errorf("instance pool size must be greater than 0")
	}

	if c.PageSize != PageSize {
		return fmt.Errorf("page size must be %d", PageSize)
	}

	if c.DataDirectory == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.WALEnabled && c.WALDirectory == "" {
		return fmt.Errorf("WAL directory cannot be empty when WAL is enabled")
	}

	if _, err := ParseCompressionCodec(c.WALCompression); err != nil {
		return err
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
