// Package oracle implements the expected-results test harness from spec §6:
// it compiles, assembles and runs each case named in an expected_results.json
// manifest and compares the produced exit status against the recorded
// return_code. Exposed as a subcommands.Command the way informatter-nilan
// exposes its run/repl modes (cmd_run.go), rather than as a third
// teris-io/cli verb, so both pack CLI idioms get exercised.
package oracle

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"its-hmny.dev/minic/internal/driver"
)

// Manifest is expected_results.json: relative source path -> expected case.
type Manifest map[string]Case

// Case is one entry in the manifest.
type Case struct {
	ReturnCode int `json:"return_code"`
}

// LoadManifest reads and parses an expected_results.json file.
func LoadManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}
	return m, nil
}

// Outcome reports a single test case's pass/fail verdict.
type Outcome struct {
	Path     string
	Expected int
	Got      int
	Err      error
}

func (o Outcome) Passed() bool { return o.Err == nil && o.Expected == o.Got }

// RunManifest compiles, assembles and runs every case in m, rooted at dir.
func RunManifest(dir string, m Manifest) []Outcome {
	outcomes := make([]Outcome, 0, len(m))
	for relPath, want := range m {
		srcPath := filepath.Join(dir, relPath)
		result, err := driver.Compile(srcPath, driver.StageRun)
		if err != nil {
			outcomes = append(outcomes, Outcome{Path: relPath, Expected: want.ReturnCode, Err: err})
			continue
		}
		outcomes = append(outcomes, Outcome{Path: relPath, Expected: want.ReturnCode, Got: result.ExitCode})
	}
	return outcomes
}

// Command is the `minic test` subcommand.
type Command struct {
	manifestPath string
}

func (*Command) Name() string     { return "test" }
func (*Command) Synopsis() string { return "Run the expected_results.json test suite against a directory of sources" }
func (*Command) Usage() string {
	return `test <dir>:
  Compile, assemble and run every source under <dir> and compare its exit
  status against dir/expected_results.json.
`
}

func (c *Command) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.manifestPath, "manifest", "expected_results.json", "path to the expected-results manifest, relative to <dir>")
}

func (c *Command) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "test: missing <dir> argument")
		return subcommands.ExitUsageError
	}
	dir := args[0]

	manifest, err := LoadManifest(filepath.Join(dir, c.manifestPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "test: %v\n", err)
		return subcommands.ExitFailure
	}

	outcomes := RunManifest(dir, manifest)
	failed := 0
	for _, o := range outcomes {
		if o.Passed() {
			fmt.Printf("PASS %s\n", o.Path)
			continue
		}
		failed++
		if o.Err != nil {
			fmt.Printf("FAIL %s: %v\n", o.Path, o.Err)
		} else {
			fmt.Printf("FAIL %s: expected return code %d, got %d\n", o.Path, o.Expected, o.Got)
		}
	}

	fmt.Printf("%d/%d passed\n", len(outcomes)-failed, len(outcomes))
	if failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
