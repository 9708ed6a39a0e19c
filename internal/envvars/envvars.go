// Package envvars turns --env flags and dotenv files into KEY=value entries
// for export inside the build script.
package envvars

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/RevCBH/bbrun/internal/container"
)

// Parse splits a comma-separated list such as "EDITOR=vim, USER=root".
// Values are kept verbatim so they may reference container variables.
func Parse(s string) ([]string, error) {
	var vars []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, _, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid environment variable %q: expected KEY=value", part)
		}
		if err := validateKey(key); err != nil {
			return nil, fmt.Errorf("invalid environment variable %q: %w", part, err)
		}
		vars = append(vars, part)
	}
	return vars, nil
}

// ParseAll parses each flag value in order.
func ParseAll(values []string) ([]string, error) {
	var vars []string
	for _, v := range values {
		parsed, err := Parse(v)
		if err != nil {
			return nil, err
		}
		vars = append(vars, parsed...)
	}
	return vars, nil
}

// LoadFile reads a dotenv file. Entries are sorted by key and values are
// shell-quoted, since dotenv values are literal.
func LoadFile(path string) ([]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return fromMap(values)
}

func fromMap(values map[string]string) ([]string, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if err := validateKey(k); err != nil {
			return nil, fmt.Errorf("invalid environment variable %q: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]string, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, k+"="+container.ShellQuote(values[k]))
	}
	return vars, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty name")
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("name %q is not a valid shell identifier", key)
		}
	}
	return nil
}
