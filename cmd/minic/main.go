// Command minic is the C-subset-to-x86-64 compiler driver. Its primary verb
// (compiling a single file, with the --stop-after staged-output flag from
// spec §6) is built on github.com/teris-io/cli, exactly as the teacher's
// cmd/jack_compiler and cmd/vm_translator are (see
// _examples/its-hmny-nand2tetris/code/cmd/jack_compiler/main.go). The `test`
// verb is dispatched separately through github.com/google/subcommands
// (informatter-nilan's CLI idiom) since expected_results.json test running
// has a genuinely different flag surface (a manifest path, a directory) than
// the single-file compile invocation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/teris-io/cli"

	"its-hmny.dev/minic/internal/driver"
	"its-hmny.dev/minic/internal/oracle"
	"its-hmny.dev/minic/internal/repl"
)

var description = strings.ReplaceAll(`
minic compiles a small subset of C (single translation unit, int-only,
no pointers/arrays/structs) down to AT&T-syntax x86-64 assembly following
the System V calling convention. Use --stop-after to inspect any
intermediate stage instead of producing a final executable.
`, "\n", " ")

var stages = "lex|parse|resolve|tacky|asm|codegen|assemble|run|repl"

var app = cli.New(description).
	WithArg(cli.NewArg("file", "The C source file to compile")).
	WithOption(cli.NewOption("stop-after", fmt.Sprintf("Stop the pipeline after one of: %s", stages)).
		WithType(cli.TypeString)).
	WithAction(handle)

func handle(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "minic: missing <file.c> argument, use --help")
		return 1
	}
	src := args[0]

	stage := driver.Stage(options["stop-after"])
	if stage == "" {
		stage = driver.StageRun
	}

	if stage == driver.StageRepl {
		if err := repl.Run(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "minic: repl: %v\n", err)
			return 1
		}
		return 0
	}

	result, err := driver.Compile(src, stage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "minic: %s\n", errors.Cause(err))
		return 1
	}

	if stage == driver.StageRun {
		return result.ExitCode
	}
	fmt.Println(driver.Describe(stage, result))
	return 0
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "test" {
		runTestSubcommand()
		return
	}
	os.Exit(app.Run(os.Args, os.Stdout))
}

func runTestSubcommand() {
	fs := flag.NewFlagSet("minic", flag.ExitOnError)
	commander := subcommands.NewCommander(fs, "minic")
	commander.Register(&oracle.Command{}, "")
	fs.Parse(os.Args[1:]) // keeps "test" as fs.Args()[0] so Commander can match the command name
	os.Exit(int(commander.Execute(context.Background())))
}
