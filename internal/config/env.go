package config

import "os"

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "BBRUN_TEMPLATE",
		apply: func(c *Config, v string) {
			c.Template = v
		},
	},
	{
		envVar: "BBRUN_PIPELINE",
		apply: func(c *Config, v string) {
			c.Pipeline = v
		},
	},
	{
		envVar: "BBRUN_WORK_DIR",
		apply: func(c *Config, v string) {
			c.WorkDir = v
		},
	},
	{
		envVar: "BBRUN_RUNTIME",
		apply: func(c *Config, v string) {
			c.Runtime = v
		},
	},
	{
		envVar: "BBRUN_SHELL",
		apply: func(c *Config, v string) {
			c.InteractiveShell = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
