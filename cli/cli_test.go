package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "toolpack",
		SilenceUsage: true,
	}
	BindGlobalFlags(root)
	root.AddCommand(NewListCmd())
	root.AddCommand(NewInspectCmd())
	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewInstallCmd())
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewFilesCmd())
	root.AddCommand(NewSettingsCmd())
	root.AddCommand(NewLogCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// run executes args against a fresh root and fails the test on error.
func run(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := executeCommand(newTestRoot(), args...)
	if err != nil {
		t.Fatalf("%s error = %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

// wantExitCode executes args and checks the resulting exit code.
func wantExitCode(t *testing.T, code int, args ...string) {
	t.Helper()
	_, _, err := executeCommand(newTestRoot(), args...)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("%s error = %v, want *ExitError", strings.Join(args, " "), err)
	}
	if exitErr.Code != code {
		t.Fatalf("%s exit code = %d (%s), want %d", strings.Join(args, " "), exitErr.Code, exitErr.Message, code)
	}
}

// isolate points the toolpack home at a temp dir and moves into an empty
// working directory so no real settings leak in.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	home := filepath.Join(root, "home")
	for _, key := range []string{
		"TOOLPACK_CONFIG_FILE", "TOOLPACK_MANIFEST", "TOOLPACK_STORE_PATH",
		"TOOLPACK_PACKAGES_DIR", "TOOLPACK_HISTORY_PATH", "TOOLPACK_OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("TOOLPACK_HOME_DIR", home)
	t.Setenv("TOOLPACK_STORE", "file")
	work := filepath.Join(root, "work")
	if err := os.MkdirAll(work, 0o750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(work)
	return root
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// echoManifest describes a tool that re-runs the test binary as a helper
// printing its trailing arguments.
func echoManifest(t *testing.T) string {
	t.Helper()
	t.Setenv("GO_WANT_CLI_HELPER", "1")
	doc := fmt.Sprintf(`
- name: echo
  package: testpkg
  description: Echo the input path and a word
  command:
    - {kind: CONST, value: %q}
    - {kind: CONST, value: -test.run=TestCLIHelperProcess}
    - {kind: CONST, value: "--"}
    - {kind: VAR, varType: FILE, asInput: true, value: "[[files.testpkg.input]]"}
    - {kind: VAR, varType: VALUE, value: "[[word]]"}
  output: {type: VALUE, location: STDOUT}
  install: {tasks: []}
`, os.Args[0])
	return writeTestFile(t, "tools.yaml", doc)
}

func TestCLIHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_CLI_HELPER") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	fmt.Fprintf(os.Stdout, "%s\n\n", strings.Join(args, " "))
	os.Exit(0)
}

func TestListAndInspectBuiltin(t *testing.T) {
	isolate(t)

	stdout := run(t, "list")
	for _, want := range []string{"NAME", "PACKAGE", "eq-sim-ji", "eq-sim-ov", "urban-integration"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("list output missing %q: %q", want, stdout)
		}
	}

	stdout = run(t, "inspect", "eq-sim-ji", "--format", "json")
	if !strings.Contains(stdout, `"name": "eq-sim-ji"`) {
		t.Fatalf("inspect json output = %q", stdout)
	}
	stdout = run(t, "inspect", "eq-sim-ov")
	if !strings.Contains(stdout, "name: eq-sim-ov") {
		t.Fatalf("inspect yaml output = %q", stdout)
	}

	wantExitCode(t, exitNotFound, "inspect", "missing")
	wantExitCode(t, exitInputParse, "inspect", "eq-sim-ji", "--format", "toml")
}

func TestValidate(t *testing.T) {
	isolate(t)

	stdout := run(t, "validate")
	if !strings.Contains(stdout, "Valid! (2 tools)") {
		t.Fatalf("validate output = %q", stdout)
	}

	bad := writeTestFile(t, "bad.yaml", `
- name: dup
  package: p
  command: [{kind: CONST, value: x}]
  output: {type: VALUE, location: STDOUT}
  install: {tasks: []}
- name: dup
  package: p
  command: [{kind: CONST, value: x}]
  output: {type: VALUE, location: STDOUT}
  install: {tasks: []}
`)
	stdout, _, err := executeCommand(newTestRoot(), "validate", bad)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("validate(bad) error = %v, want exit %d", err, exitValidation)
	}
	if !strings.Contains(stdout, "DUPLICATE_NAME") {
		t.Fatalf("validate(bad) output = %q", stdout)
	}

	warn := writeTestFile(t, "warn.yaml", `
- name: w
  package: p
  command: [{kind: VAR, varType: VALUE, value: plain}]
  output: {type: VALUE, location: STDOUT}
  install: {tasks: []}
`)
	run(t, "validate", warn)
	wantExitCode(t, exitValidation, "validate", warn, "--strict")

	stdout = run(t, "validate", warn, "--format", "json")
	if !strings.Contains(stdout, `"NO_REFERENCE"`) {
		t.Fatalf("validate json output = %q", stdout)
	}

	wantExitCode(t, exitFileNotFound, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	wantExitCode(t, exitInputParse, "validate", writeTestFile(t, "broken.yaml", "- name: [unclosed"))
}

func TestFilesRegisterListRemove(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			isolate(t)

			stdout := run(t, "--store", driver, "files", "register", "urban-integration.column-term-index", "/data/idx.tsv")
			if !strings.Contains(stdout, "Registered file: urban-integration.column-term-index -> /data/idx.tsv") {
				t.Fatalf("register output = %q", stdout)
			}

			stdout = run(t, "--store", driver, "files", "list")
			if !strings.Contains(stdout, "urban-integration.column-term-index") || !strings.Contains(stdout, "/data/idx.tsv") {
				t.Fatalf("list output = %q", stdout)
			}

			run(t, "--store", driver, "files", "remove", "urban-integration.column-term-index")
			stdout = run(t, "--store", driver, "files", "list")
			if strings.Contains(stdout, "column-term-index") {
				t.Fatalf("alias still listed after remove: %q", stdout)
			}

			wantExitCode(t, exitNotFound, "--store", driver, "files", "remove", "urban-integration.column-term-index")
			wantExitCode(t, exitInputParse, "--store", driver, "files", "register", "nodot", "/x")
		})
	}
}

func TestSettingsLayers(t *testing.T) {
	isolate(t)

	run(t, "settings", "set", "eq1", "user")
	run(t, "settings", "set", "eq2", "user")
	if got := strings.TrimSpace(run(t, "settings", "get", "eq1")); got != "user" {
		t.Fatalf("settings get eq1 = %q, want user", got)
	}

	wantExitCode(t, exitValidation, "settings", "set", "--project", "eq1", "project")
	run(t, "settings", "init")
	run(t, "settings", "set", "--project", "eq1", "project")

	if got := strings.TrimSpace(run(t, "settings", "get", "eq1")); got != "project" {
		t.Fatalf("settings get eq1 = %q, want project", got)
	}
	if got := strings.TrimSpace(run(t, "settings", "get", "eq2")); got != "user" {
		t.Fatalf("settings get eq2 = %q, want user", got)
	}

	stdout := run(t, "settings", "show", "--project")
	if !strings.Contains(stdout, "eq1") || strings.Contains(stdout, "eq2") {
		t.Fatalf("settings show --project = %q", stdout)
	}

	run(t, "settings", "unset", "eq2")
	wantExitCode(t, exitNotFound, "settings", "get", "eq2")
}

func TestSettingsContexts(t *testing.T) {
	root := isolate(t)
	work := filepath.Join(root, "work")
	sub := filepath.Join(work, "sub")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	wantExitCode(t, exitValidation, "settings", "context", "create", "sub")
	run(t, "settings", "init")
	run(t, "settings", "set", "--project", "eq1", "project")
	wantExitCode(t, exitValidation, "settings", "context", "create")
	wantExitCode(t, exitValidation, "settings", "set", "--cascade", "eq1", "x")

	if stdout := run(t, "settings", "context", "create", "sub"); !strings.Contains(stdout, "Created context sub") {
		t.Fatalf("context create = %q", stdout)
	}
	wantExitCode(t, exitValidation, "settings", "context", "create", "sub")
	if stdout := run(t, "settings", "context", "list"); !strings.Contains(stdout, "sub") {
		t.Fatalf("context list = %q", stdout)
	}

	t.Chdir(sub)
	run(t, "settings", "set", "--project", "eq1", "context")
	if got := strings.TrimSpace(run(t, "settings", "get", "eq1")); got != "context" {
		t.Fatalf("settings get eq1 in sub = %q, want context", got)
	}
	run(t, "settings", "set", "--cascade", "eq2", "cascaded")
	if got := strings.TrimSpace(run(t, "settings", "get", "eq2")); got != "cascaded" {
		t.Fatalf("settings get eq2 in sub = %q, want cascaded", got)
	}

	t.Chdir(work)
	if got := strings.TrimSpace(run(t, "settings", "get", "eq1")); got != "project" {
		t.Fatalf("settings get eq1 in project root = %q, want project", got)
	}
}

func TestRunFindsInputAboveWorkingDirectory(t *testing.T) {
	root := isolate(t)
	manifestPath := echoManifest(t)
	work := filepath.Join(root, "work")
	sub := filepath.Join(work, "sub")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(work, "input.tsv")
	if err := os.WriteFile(input, []byte("a\tb\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	run(t, "settings", "init")
	t.Chdir(sub)

	stdout := run(t, "--manifest", manifestPath, "run", "echo",
		"--file", "testpkg.input=input.tsv", "--param", "word=hello")
	if want := input + " hello\n"; stdout != want {
		t.Fatalf("run output = %q, want %q", stdout, want)
	}
	wantExitCode(t, exitFileNotFound, "--manifest", manifestPath, "run", "echo",
		"--file", "testpkg.input=absent.tsv", "--param", "word=hello")
}

func TestRunDryRunBuiltin(t *testing.T) {
	isolate(t)

	run(t, "settings", "set", "pmngr.urban-integration.jarDir", "/opt/tools")
	run(t, "files", "register", "urban-integration.column-term-index", "/data/idx.tsv")

	stdout := run(t, "run", "eq-sim-ji", "--param", "eq1=A", "--param", "eq2=B", "--dry-run")
	want := "java -jar /opt/tools/EQSimilariyPrinter.jar /data/idx.tsv JI A B"
	if strings.TrimSpace(stdout) != want {
		t.Fatalf("dry run output = %q, want %q", stdout, want)
	}

	stdout = run(t, "run", "eq-sim-ji",
		"--file", "urban-integration.column-term-index=/other/idx.tsv",
		"--param", "eq1=A", "--param", "eq2=B", "--dry-run")
	if !strings.Contains(stdout, "/other/idx.tsv") {
		t.Fatalf("file override ignored: %q", stdout)
	}
}

func TestRunErrors(t *testing.T) {
	isolate(t)

	wantExitCode(t, exitNotFound, "run", "missing")
	wantExitCode(t, exitInputParse, "run", "eq-sim-ji", "--param", "novalue")
	wantExitCode(t, exitInputParse, "run", "eq-sim-ji", "--file", "nodot=/x")
	// No alias registered and no eq1/eq2 bound.
	wantExitCode(t, exitInputParse, "run", "eq-sim-ji", "--dry-run")
	wantExitCode(t, exitFileNotFound, "--manifest", filepath.Join(t.TempDir(), "missing.yaml"), "list")
}

func TestRunExecutesAndRecordsHistory(t *testing.T) {
	isolate(t)
	manifestPath := echoManifest(t)
	input := writeTestFile(t, "input.tsv", "a\tb\n")

	wantExitCode(t, exitFileNotFound, "--manifest", manifestPath, "run", "echo",
		"--file", "testpkg.input="+filepath.Join(t.TempDir(), "absent.tsv"),
		"--param", "word=hello")

	run(t, "--manifest", manifestPath, "files", "register", "testpkg.input", input)
	stdout := run(t, "--manifest", manifestPath, "run", "echo", "--param", "word=hello")
	if want := input + " hello\n"; stdout != want {
		t.Fatalf("run output = %q, want %q", stdout, want)
	}

	// Dry runs are not recorded.
	run(t, "--manifest", manifestPath, "run", "echo", "--param", "word=again", "--dry-run")

	stdout = run(t, "log", "--format", "commands")
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "hello") {
		t.Fatalf("log commands = %q", stdout)
	}

	stdout = run(t, "log")
	if !strings.Contains(stdout, "TOOL") || !strings.Contains(stdout, "echo") {
		t.Fatalf("log table = %q", stdout)
	}
	stdout = run(t, "log", "--format", "json")
	if !strings.Contains(stdout, `"tool": "echo"`) {
		t.Fatalf("log json = %q", stdout)
	}
}

func TestInstallArguments(t *testing.T) {
	isolate(t)

	wantExitCode(t, exitInputParse, "install")
	wantExitCode(t, exitInputParse, "install", "eq-sim-ji", "--all")
	wantExitCode(t, exitNotFound, "install", "missing")

	// A tool without install tasks installs nothing.
	manifestPath := echoManifest(t)
	stdout := run(t, "--manifest", manifestPath, "install", "--all")
	if stdout != "" {
		t.Fatalf("install output = %q, want empty", stdout)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments("--param", []string{"a=1", "b=x=y", "c="})
	if err != nil {
		t.Fatalf("parseAssignments() error = %v", err)
	}
	want := map[string]string{"a": "1", "b": "x=y", "c": ""}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("got[%s] = %q, want %q", k, got[k], v)
		}
	}
	if _, err := parseAssignments("--param", []string{"=v"}); err == nil {
		t.Fatal("parseAssignments(=v) error = nil")
	}
}

func TestParseSettingValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{raw: "true", want: true},
		{raw: "3", want: 3},
		{raw: "0.5", want: 0.5},
		{raw: "/opt/tools", want: "/opt/tools"},
		{raw: "[a, b]", want: "[a, b]"},
		{raw: "", want: ""},
	}
	for _, tt := range tests {
		if got := parseSettingValue(tt.raw); got != tt.want {
			t.Errorf("parseSettingValue(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}
