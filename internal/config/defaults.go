package config

const (
	DefaultTemplate         = "bitbucket-pipelines.yml"
	DefaultPipeline         = "default"
	DefaultWorkDir          = "ws"
	DefaultRuntime          = "docker"
	DefaultInteractiveShell = "/bin/bash"
	DefaultScriptShell      = "sh"
	DefaultImage            = "atlassian/default-image:latest"
)

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		Template:         DefaultTemplate,
		Pipeline:         DefaultPipeline,
		WorkDir:          DefaultWorkDir,
		Runtime:          DefaultRuntime,
		InteractiveShell: DefaultInteractiveShell,
		ScriptShell:      DefaultScriptShell,
		DefaultImage:     DefaultImage,
	}
}
