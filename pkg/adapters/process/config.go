package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkerConfig describes how to launch a similarity worker process.
type WorkerConfig struct {
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
}

// ParseCommand splits a command line on whitespace into a WorkerConfig.
func ParseCommand(line string) (WorkerConfig, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return WorkerConfig{}, fmt.Errorf("empty worker command")
	}
	return WorkerConfig{Command: fields[0], Args: fields[1:]}, nil
}

// LoadWorkerConfig reads a worker definition file (YAML or JSON).
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("failed to read worker config: %w", err)
	}

	var cfg WorkerConfig
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return WorkerConfig{}, fmt.Errorf("failed to parse worker config: %w", err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return WorkerConfig{}, fmt.Errorf("failed to parse worker config: %w", err)
		}
	}

	if cfg.Command == "" {
		return WorkerConfig{}, fmt.Errorf("worker config %s: command is required", path)
	}
	return cfg, nil
}

// ResolveWorker accepts either a path to a worker definition file or a command line.
func ResolveWorker(worker string) (WorkerConfig, error) {
	switch strings.ToLower(filepath.Ext(worker)) {
	case ".yaml", ".yml", ".json":
		if _, err := os.Stat(worker); err == nil {
			return LoadWorkerConfig(worker)
		}
	}
	return ParseCommand(worker)
}
