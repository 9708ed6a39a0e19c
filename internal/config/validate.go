package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

var validRuntimes = map[string]bool{
	"docker": true,
	"podman": true,
	"auto":   true,
}

// Validate checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		field string
		value string
	}{
		{"template", c.Template},
		{"pipeline", c.Pipeline},
		{"work_dir", c.WorkDir},
		{"interactive_shell", c.InteractiveShell},
		{"script_shell", c.ScriptShell},
		{"default_image", c.DefaultImage},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, &ValidationError{
				Field:   r.field,
				Value:   r.value,
				Message: "must not be empty",
			})
		}
	}

	if !validRuntimes[c.Runtime] {
		errs = append(errs, &ValidationError{
			Field:   "runtime",
			Value:   c.Runtime,
			Message: "must be one of: docker, podman, auto",
		})
	}

	for i, folder := range c.IgnoreFolders {
		if err := ValidateFolder(folder); err != nil {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("ignore_folders[%d]", i),
				Value:   folder,
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateFolder checks that an ignored folder stays inside the work dir.
func ValidateFolder(folder string) error {
	if strings.TrimSpace(folder) == "" {
		return errors.New("must not be empty")
	}
	if path.IsAbs(folder) {
		return errors.New("must be relative to the project root")
	}
	for _, seg := range strings.Split(folder, "/") {
		if seg == ".." {
			return errors.New("must not contain '..'")
		}
	}
	if path.Clean(folder) == "." {
		return errors.New("must name a folder inside the project")
	}
	return nil
}
