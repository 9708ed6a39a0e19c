// Package pipeline reads Bitbucket Pipelines files and resolves the steps to run.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPipeline is the pipeline used when none is named.
const DefaultPipeline = "default"

var (
	// ErrPipelineNotFound is returned when the named pipeline does not exist.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrStepNotFound is returned when no step in the pipeline has the given name.
	ErrStepNotFound = errors.New("step not found")

	// ErrNoSteps is returned when a pipeline exists but declares no steps.
	ErrNoSteps = errors.New("pipeline has no steps")

	// ErrPipeUnsupported is returned when a selected step uses a pipe.
	ErrPipeUnsupported = errors.New("pipes are not supported, only shell commands")
)

// File is a parsed bitbucket-pipelines.yml.
type File struct {
	// Image is the file-wide default image (string or mapping with a name)
	Image any `yaml:"image"`

	Pipelines Pipelines `yaml:"pipelines"`
}

// Pipelines groups the pipeline sections of a file.
type Pipelines struct {
	Default      []Entry            `yaml:"default"`
	Branches     map[string][]Entry `yaml:"branches"`
	Tags         map[string][]Entry `yaml:"tags"`
	Bookmarks    map[string][]Entry `yaml:"bookmarks"`
	PullRequests map[string][]Entry `yaml:"pull-requests"`
	Custom       map[string][]Entry `yaml:"custom"`
}

// Entry is one item of a pipeline: a step, a parallel group or a stage.
type Entry struct {
	Step     *Step     `yaml:"step"`
	Parallel *Parallel `yaml:"parallel"`
	Stage    *Stage    `yaml:"stage"`
}

// Stage is a named group of sequential steps.
type Stage struct {
	Name  string  `yaml:"name"`
	Steps []Entry `yaml:"steps"`
}

// Parallel is a group of entries. Both the list form and the
// `steps:` mapping form are accepted.
type Parallel struct {
	Steps []Entry `yaml:"steps"`
}

// UnmarshalYAML decodes either `parallel: [...]` or `parallel: {steps: [...]}`.
func (p *Parallel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&p.Steps)
	}
	type plain Parallel
	return node.Decode((*plain)(p))
}

// Step is a single step declaration.
type Step struct {
	Name   string `yaml:"name"`
	Image  any    `yaml:"image"`
	Script Script `yaml:"script"`
}

// Script holds the items of a step script.
type Script []ScriptItem

// ScriptItem is one script entry. Pipe is set for `- pipe:` items, which
// cannot run locally; they only fail the step that is selected to run.
type ScriptItem struct {
	Command string
	Pipe    string
	Line    int

	invalid bool // neither a command nor a pipe
}

// UnmarshalYAML records every item and never fails, so one unsupported
// step does not make the rest of the file unusable.
func (s *Script) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		*s = Script{{Line: node.Line, invalid: true}}
		return nil
	}
	items := make(Script, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind == yaml.AliasNode {
			item = item.Alias
		}
		items = append(items, scriptItem(item))
	}
	*s = items
	return nil
}

func scriptItem(node *yaml.Node) ScriptItem {
	switch node.Kind {
	case yaml.ScalarNode:
		return ScriptItem{Command: node.Value, Line: node.Line}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "pipe" {
				return ScriptItem{Pipe: node.Content[i+1].Value, Line: node.Line}
			}
		}
	}
	return ScriptItem{Line: node.Line, invalid: true}
}

// Commands returns the shell lines of the script, or an error naming the
// first item that is not a shell command.
func (s Script) Commands() ([]string, error) {
	cmds := make([]string, 0, len(s))
	for _, item := range s {
		switch {
		case item.Pipe != "":
			return nil, fmt.Errorf("line %d: %w (pipe %s)", item.Line, ErrPipeUnsupported, item.Pipe)
		case item.invalid:
			return nil, fmt.Errorf("line %d: script must be a list of shell commands", item.Line)
		}
		cmds = append(cmds, item.Command)
	}
	return cmds, nil
}

// ResolvedStep is a step ready to run: a plain image and its script.
type ResolvedStep struct {
	Name   string
	Image  string
	Script []string
}

// Load reads and parses the pipeline file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes pipeline file contents.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Pipeline returns the flattened steps of the named pipeline. Names are
// "default" or "<section>:<name>", e.g. "branches:master".
func (f *File) Pipeline(name string) ([]Step, error) {
	entries, err := f.entries(name)
	if err != nil {
		return nil, err
	}
	steps := flatten(entries)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSteps, name)
	}
	return steps, nil
}

func (f *File) entries(name string) ([]Entry, error) {
	if name == "" || name == DefaultPipeline {
		if f.Pipelines.Default == nil {
			return nil, f.notFound(DefaultPipeline)
		}
		return f.Pipelines.Default, nil
	}

	section, key, ok := strings.Cut(name, ":")
	if !ok {
		return nil, fmt.Errorf("%w (use \"default\" or \"<section>:<name>\")", f.notFound(name))
	}

	var group map[string][]Entry
	switch section {
	case "branches":
		group = f.Pipelines.Branches
	case "tags":
		group = f.Pipelines.Tags
	case "bookmarks":
		group = f.Pipelines.Bookmarks
	case "pull-requests":
		group = f.Pipelines.PullRequests
	case "custom":
		group = f.Pipelines.Custom
	default:
		return nil, fmt.Errorf("unknown section %q: %w", section, f.notFound(name))
	}

	entries, ok := group[key]
	if !ok {
		return nil, f.notFound(name)
	}
	return entries, nil
}

func (f *File) notFound(name string) error {
	names := f.Names()
	if len(names) == 0 {
		return fmt.Errorf("%w: %s (file declares no pipelines)", ErrPipelineNotFound, name)
	}
	return fmt.Errorf("%w: %s (have: %s)", ErrPipelineNotFound, name, strings.Join(names, ", "))
}

func flatten(entries []Entry) []Step {
	var steps []Step
	for _, e := range entries {
		switch {
		case e.Step != nil:
			steps = append(steps, *e.Step)
		case e.Parallel != nil:
			steps = append(steps, flatten(e.Parallel.Steps)...)
		case e.Stage != nil:
			steps = append(steps, flatten(e.Stage.Steps)...)
		}
	}
	return steps
}

// Steps resolves the steps to run from a pipeline. An empty stepName selects
// every step in order. Images fall back to the file image, then defaultImage.
func (f *File) Steps(pipelineName, stepName, defaultImage string) ([]ResolvedStep, error) {
	steps, err := f.Pipeline(pipelineName)
	if err != nil {
		return nil, err
	}

	var resolved []ResolvedStep
	for _, s := range steps {
		if stepName != "" && s.Name != stepName {
			continue
		}
		image, err := f.imageFor(s, defaultImage)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		commands, err := s.Script.Commands()
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		resolved = append(resolved, ResolvedStep{
			Name:   s.Name,
			Image:  image,
			Script: commands,
		})
	}

	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: %q in pipeline %s (have: %s)",
			ErrStepNotFound, stepName, displayName(pipelineName), strings.Join(stepNames(steps), ", "))
	}
	return resolved, nil
}

func (f *File) imageFor(s Step, defaultImage string) (string, error) {
	switch {
	case s.Image != nil:
		return ExtractImageName(s.Image)
	case f.Image != nil:
		return ExtractImageName(f.Image)
	default:
		return defaultImage, nil
	}
}

func displayName(name string) string {
	if name == "" {
		return DefaultPipeline
	}
	return name
}

func stepNames(steps []Step) []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range steps {
		if s.Name == "" || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Names lists every pipeline in the file using "<section>:<name>" notation.
func (f *File) Names() []string {
	var names []string
	if f.Pipelines.Default != nil {
		names = append(names, DefaultPipeline)
	}
	sections := []struct {
		prefix string
		group  map[string][]Entry
	}{
		{"branches", f.Pipelines.Branches},
		{"tags", f.Pipelines.Tags},
		{"bookmarks", f.Pipelines.Bookmarks},
		{"pull-requests", f.Pipelines.PullRequests},
		{"custom", f.Pipelines.Custom},
	}
	for _, s := range sections {
		keys := make([]string, 0, len(s.group))
		for k := range s.group {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			names = append(names, s.prefix+":"+k)
		}
	}
	return names
}
