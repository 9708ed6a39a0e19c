package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/bbrun/internal/container"
	"github.com/RevCBH/bbrun/internal/pipeline"
	"github.com/RevCBH/bbrun/internal/testutil"
)

const testPipeline = `
pipelines:
  default:
    - step:
        name: Hello
        image: alpine
        script:
          - echo hi
    - step:
        name: Test
        image:
          name: node:18
        script:
          - npm test
  branches:
    master:
      - step:
          name: Deploy
          script:
            - ./deploy.sh
`

type testApp struct {
	*App
	root   string
	runner *testutil.StubRunner
	out    *bytes.Buffer
}

func newTestApp(t *testing.T, pipelineYAML string) *testApp {
	t.Helper()
	root := t.TempDir()
	if pipelineYAML != "" {
		writeProjectFile(t, root, "bitbucket-pipelines.yml", pipelineYAML)
	}

	runner := testutil.NewStubRunner()
	runner.StubDefault("docker -v", "Docker version 27.0.3", nil)

	out := new(bytes.Buffer)
	app := New()
	app.stdin = strings.NewReader("")
	app.stdout = out
	app.stderr = new(bytes.Buffer)
	app.runner = runner
	app.getwd = func() (string, error) { return root, nil }
	app.isTerminal = func(any) bool { return false }
	app.signals = make(chan os.Signal, 1)

	return &testApp{App: app, root: root, runner: runner, out: out}
}

func writeProjectFile(t *testing.T, root, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0644))
}

func (a *testApp) run(args ...string) error {
	a.SetArgs(args)
	return a.Execute()
}

func (a *testApp) entries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(a.root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_BatchStep(t *testing.T) {
	app := newTestApp(t, testPipeline)

	var script string
	app.runner.OnRun = func(p container.Process) error {
		data, err := os.ReadFile(filepath.Join(app.root, container.BuildScriptName))
		require.NoError(t, err)
		script = string(data)
		return nil
	}

	require.NoError(t, app.run("Hello"))

	runs := app.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "docker", runs[0].Name)
	assert.Equal(t,
		"run --rm -P -u root -v "+app.root+":ws -w ws alpine sh .bprun.sh",
		strings.Join(runs[0].Args, " "))
	assert.Equal(t, "#!/usr/bin/env sh\nset -e\necho hi\n", script)
	assert.NoFileExists(t, filepath.Join(app.root, container.BuildScriptName))
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
}

func TestRun_DryRun(t *testing.T) {
	app := newTestApp(t, testPipeline)

	require.NoError(t, app.run("Hello", "--dry-run"))

	assert.Empty(t, app.runner.Runs())
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
	out := app.out.String()
	assert.Contains(t, out, "docker run --rm -P -u root -v "+app.root+":ws -w ws alpine sh .bprun.sh")
	assert.Contains(t, out, "\techo hi")
}

func TestRun_AllStepsInOrder(t *testing.T) {
	app := newTestApp(t, testPipeline)

	require.NoError(t, app.run())

	runs := app.runner.Runs()
	require.Len(t, runs, 2)
	assert.Contains(t, runs[0].Args, "alpine")
	assert.Contains(t, runs[1].Args, "node:18")
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	app := newTestApp(t, testPipeline)
	app.runner.OnRun = func(p container.Process) error {
		return &container.ExitError{Code: 2}
	}

	err := app.run()

	var exitErr *container.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, err.Error(), `step "Hello"`)
	assert.Len(t, app.runner.Runs(), 1)
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
}

func TestRun_InterruptCleansUpAndStops(t *testing.T) {
	app := newTestApp(t, testPipeline)
	script := filepath.Join(app.root, container.BuildScriptName)
	app.runner.OnRun = func(p container.Process) error {
		require.FileExists(t, script)
		app.signals <- os.Interrupt
		require.Eventually(t, func() bool {
			_, err := os.Stat(script)
			return os.IsNotExist(err)
		}, time.Second, 5*time.Millisecond)
		return &container.ExitError{Code: 130}
	}

	err := app.run()

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Contains(t, err.Error(), `step "Hello"`)
	assert.Len(t, app.runner.Runs(), 1)
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
}

func TestRun_InterruptDuringDryRunKeepsFiles(t *testing.T) {
	app := newTestApp(t, testPipeline)
	writeProjectFile(t, app.root, container.BuildScriptName, "#!/usr/bin/env sh\necho stale\n")

	app.signals <- os.Interrupt
	app.isTerminal = func(any) bool {
		// Called while building the display, after the handler is listening.
		require.Eventually(t, func() bool { return len(app.signals) == 0 }, time.Second, 5*time.Millisecond)
		return false
	}

	_ = app.run("Hello", "--dry-run")

	assert.FileExists(t, filepath.Join(app.root, container.BuildScriptName))
	assert.Empty(t, app.runner.Runs())
}

func TestRun_PipeInOtherPipeline(t *testing.T) {
	app := newTestApp(t, testPipeline+`
    release:
      - step:
          name: Publish
          script:
            - pipe: atlassian/aws-s3-deploy:1.1.0
              variables:
                S3_BUCKET: site
`)

	require.NoError(t, app.run("Hello"))
	assert.Len(t, app.runner.Runs(), 1)

	err := app.run("--pipeline", "branches:release", "Publish")
	assert.ErrorIs(t, err, pipeline.ErrPipeUnsupported)
	assert.Len(t, app.runner.Runs(), 1)
}

func TestRun_StepNamedLikeSubcommand(t *testing.T) {
	app := newTestApp(t, `
pipelines:
  default:
    - step:
        name: version
        image: alpine
        script:
          - ./bump.sh
    - step:
        name: completion
        image: alpine
        script:
          - ./complete.sh
`)

	require.NoError(t, app.run("--dry-run", "--", "version"))
	assert.Contains(t, app.out.String(), "\t./bump.sh")

	require.NoError(t, app.run("completion", "--dry-run"))
	assert.Contains(t, app.out.String(), "\t./complete.sh")
}

func TestRun_PipelineFlag(t *testing.T) {
	app := newTestApp(t, testPipeline)

	require.NoError(t, app.run("--pipeline", "branches:master", "--dry-run"))

	assert.Contains(t, app.out.String(), "atlassian/default-image:latest sh .bprun.sh")
	assert.Contains(t, app.out.String(), "./deploy.sh")
}

func TestRun_EnvAndEnvFile(t *testing.T) {
	app := newTestApp(t, testPipeline)
	writeProjectFile(t, app.root, ".env", "FROM_FILE=hello world\n")

	require.NoError(t, app.run("Hello", "--dry-run", "--env-file", ".env",
		"-e", "EDITOR=vim, USER=root", "--env", "DEBUG=1"))

	out := app.out.String()
	fileIdx := strings.Index(out, "export FROM_FILE='hello world'")
	editorIdx := strings.Index(out, "export EDITOR=vim")
	userIdx := strings.Index(out, "export USER=root")
	debugIdx := strings.Index(out, "export DEBUG=1")
	setIdx := strings.Index(out, "set -e")
	scriptIdx := strings.Index(out, "echo hi")

	for _, idx := range []int{fileIdx, editorIdx, userIdx, debugIdx, setIdx, scriptIdx} {
		require.NotEqual(t, -1, idx, out)
	}
	assert.Less(t, fileIdx, editorIdx)
	assert.Less(t, editorIdx, userIdx)
	assert.Less(t, userIdx, debugIdx)
	assert.Less(t, debugIdx, setIdx)
	assert.Less(t, setIdx, scriptIdx)
}

func TestRun_InvalidEnv(t *testing.T) {
	app := newTestApp(t, testPipeline)

	err := app.run("Hello", "--env", "NOVALUE")

	assert.Error(t, err)
	assert.Empty(t, app.runner.Runs())
}

func TestRun_CamelCaseFlags(t *testing.T) {
	app := newTestApp(t, testPipeline)

	require.NoError(t, app.run("Hello", "--dryRun", "--workDir", "/app", "--ignoreFolder", "node_modules", "--noRoot"))

	out := app.out.String()
	assert.Contains(t, out, "-v "+app.root+":/app -w /app -v "+filepath.Join(app.root, container.StagingDirName)+":/app/node_modules alpine")
	assert.NotContains(t, out, "-u root")
}

func TestRun_IgnoreFoldersRepeatable(t *testing.T) {
	app := newTestApp(t, testPipeline)
	staging := filepath.Join(app.root, container.StagingDirName)
	app.runner.OnRun = func(p container.Process) error {
		assert.DirExists(t, staging)
		return nil
	}

	require.NoError(t, app.run("Hello", "-f", "node_modules", "-f", "vendor"))

	args := app.runner.Runs()[0].Args
	assert.Contains(t, args, staging+":ws/node_modules")
	assert.Contains(t, args, staging+":ws/vendor")
	assert.NoDirExists(t, staging)
}

func TestRun_RejectsEscapingIgnoreFolder(t *testing.T) {
	app := newTestApp(t, testPipeline)

	err := app.run("Hello", "-f", "../etc")

	assert.Error(t, err)
	assert.Empty(t, app.runner.Runs())
}

func TestRun_ProjectConfig(t *testing.T) {
	app := newTestApp(t, "")
	writeProjectFile(t, app.root, "ci.yml", testPipeline)
	writeProjectFile(t, app.root, ".bbrun.yaml", "template: ci.yml\nno_root: true\nignore_folders: node_modules\n")

	require.NoError(t, app.run("Hello", "--dry-run"))

	out := app.out.String()
	assert.NotContains(t, out, "-u root")
	assert.Contains(t, out, ":ws/node_modules")
}

func TestRun_FlagOverridesProjectConfig(t *testing.T) {
	app := newTestApp(t, testPipeline)
	writeProjectFile(t, app.root, ".bbrun.yaml", "work_dir: /from-config\n")

	require.NoError(t, app.run("Hello", "--dry-run", "-w", "/from-flag"))

	assert.Contains(t, app.out.String(), "-w /from-flag")
}

func TestRun_DryRunAndInteractiveRejected(t *testing.T) {
	app := newTestApp(t, testPipeline)

	err := app.run("Hello", "--dry-run", "--interactive")

	assert.ErrorIs(t, err, container.ErrInvalidMode)
	assert.Equal(t, 0, app.runner.CallsFor("docker -v"))
}

func TestRun_InteractiveRequiresTerminal(t *testing.T) {
	app := newTestApp(t, testPipeline)

	err := app.run("Hello", "-i")

	assert.ErrorIs(t, err, ErrNoTerminal)
	assert.Empty(t, app.runner.Runs())
}

func TestRun_Interactive(t *testing.T) {
	app := newTestApp(t, testPipeline)
	app.isTerminal = func(any) bool { return true }

	require.NoError(t, app.run("Hello", "-i"))

	runs := app.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t,
		"run --rm -P -u root -it --entrypoint=/bin/bash -v "+app.root+":ws -w ws alpine",
		strings.Join(runs[0].Args, " "))
	assert.Contains(t, app.out.String(), `opening shell for image "alpine"`)
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
}

func TestRun_MissingRuntime(t *testing.T) {
	app := newTestApp(t, testPipeline)
	app.runner.Stub("docker -v", "", errors.New(`exec: "docker": executable file not found in $PATH`))

	err := app.run("Hello")

	var envErr *container.EnvironmentError
	require.ErrorAs(t, err, &envErr)
	assert.Empty(t, app.runner.Runs())
	assert.Equal(t, []string{"bitbucket-pipelines.yml"}, app.entries(t))
}

func TestRun_InvalidImageBeforeRuntime(t *testing.T) {
	app := newTestApp(t, `
pipelines:
  default:
    - step:
        name: Bad
        image: 42
        script:
          - echo hi
`)

	err := app.run("Bad")

	var invalid *pipeline.InvalidImageFormatError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, app.runner.CallsFor("docker -v"))
}

func TestRun_StepNotFound(t *testing.T) {
	app := newTestApp(t, testPipeline)

	err := app.run("Nope")

	assert.ErrorIs(t, err, pipeline.ErrStepNotFound)
}

func TestRun_MissingTemplate(t *testing.T) {
	app := newTestApp(t, "")

	err := app.run("Hello")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_TooManyArgs(t *testing.T) {
	app := newTestApp(t, testPipeline)

	assert.Error(t, app.run("one", "two"))
}

func TestKebabCase(t *testing.T) {
	tests := map[string]string{
		"workDir":      "work-dir",
		"dryRun":       "dry-run",
		"ignoreFolder": "ignore-folder",
		"noRoot":       "no-root",
		"work-dir":     "work-dir",
		"template":     "template",
	}
	for in, want := range tests {
		if got := string(kebabCase(nil, in)); got != want {
			t.Errorf("kebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunOptions_Validate(t *testing.T) {
	assert.NoError(t, RunOptions{}.Validate())
	assert.ErrorIs(t, RunOptions{DryRun: true, Interactive: true}.Validate(), container.ErrInvalidMode)
	assert.Error(t, RunOptions{IgnoreFolders: []string{"/abs"}}.Validate())
}
