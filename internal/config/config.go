package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the optional project configuration file.
const FileName = ".bbrun.yaml"

// Config holds project-level defaults for bbrun.
// Flags override these values; see LoadConfig for the full precedence.
type Config struct {
	// Template is the pipeline file, relative to the project root
	Template string `yaml:"template"`

	// Pipeline is the pipeline to run when --pipeline is not given
	Pipeline string `yaml:"pipeline"`

	// WorkDir is where the project is mounted inside the container
	WorkDir string `yaml:"work_dir"`

	// Runtime is the container runtime binary: "docker", "podman" or "auto"
	Runtime string `yaml:"runtime"`

	// InteractiveShell is the entrypoint for interactive sessions
	InteractiveShell string `yaml:"interactive_shell"`

	// ScriptShell runs the build script inside the container
	ScriptShell string `yaml:"script_shell"`

	// DefaultImage is used when neither the step nor the file declares one
	DefaultImage string `yaml:"default_image"`

	// NoRoot runs the container as the image's default user
	NoRoot bool `yaml:"no_root"`

	// IgnoreFolders are masked with an empty directory inside the container
	IgnoreFolders Folders `yaml:"ignore_folders"`

	// EnvFile is an optional dotenv file exported into every step
	EnvFile string `yaml:"env_file,omitempty"`
}

// Folders is a list of project-relative folders. In YAML it may be written
// as a single string or as a sequence.
type Folders []string

// UnmarshalYAML accepts either a scalar or a sequence of scalars.
func (f *Folders) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value == "" {
			*f = nil
			return nil
		}
		*f = Folders{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("ignore_folders: %w", err)
	}
	*f = list
	return nil
}

// LoadConfig loads configuration for the project at root.
// It applies defaults, then the optional .bbrun.yaml, then environment
// overrides, then validates.
func LoadConfig(root string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(root, FileName)
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Missing config file is not an error (use defaults)
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// TemplatePath resolves the pipeline file against the project root.
func (c *Config) TemplatePath(root string) string {
	if filepath.IsAbs(c.Template) {
		return c.Template
	}
	return filepath.Join(root, c.Template)
}

// EnvFilePath resolves the env file against the project root.
// Returns "" when no env file is configured.
func (c *Config) EnvFilePath(root string) string {
	if c.EnvFile == "" || filepath.IsAbs(c.EnvFile) {
		return c.EnvFile
	}
	return filepath.Join(root, c.EnvFile)
}
