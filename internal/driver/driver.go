// Package driver wires the compiler pipeline stages (pkg/lexer through
// pkg/x86) together behind the --stop-after flag from spec §6, and shells
// out to gcc for the assemble/link step the core compiler deliberately
// leaves out of scope. Structured the way the teacher's cmd/jack_compiler
// wires parser -> typechecker -> lowerer -> codegen -> file output
// (cmd/jack_compiler/main.go), but as a reusable package rather than
// inlined in main() so internal/oracle can reuse it. internal/repl runs its
// own lex-to-TAC pipeline and does not call this package.
package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"its-hmny.dev/minic/internal/diag"
	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/lexer"
	"its-hmny.dev/minic/pkg/names"
	"its-hmny.dev/minic/pkg/parser"
	"its-hmny.dev/minic/pkg/resolver"
	"its-hmny.dev/minic/pkg/tacky"
	"its-hmny.dev/minic/pkg/token"
	"its-hmny.dev/minic/pkg/types"
	"its-hmny.dev/minic/pkg/x86"
)

// Stage identifies how far through the pipeline a Run should go, per spec §6.
type Stage string

const (
	StageLex      Stage = "lex"
	StageParse    Stage = "parse"
	StageResolve  Stage = "resolve"
	StageTacky    Stage = "tacky"
	StageAsm      Stage = "asm"
	StageCodegen  Stage = "codegen"
	StageAssemble Stage = "assemble"
	StageRun      Stage = "run"
	StageTest     Stage = "test"
	StageRepl     Stage = "repl"
)

// Result carries whichever intermediate artifacts the requested Stage
// reached; fields beyond the requested stage are left zero.
type Result struct {
	Tokens       []token.Token
	Program      ast.Program
	Resolved     ast.Program
	SymbolTable  types.SymbolTable
	Tacky        tacky.Program
	Assembly     x86.Program
	AssemblyText string
	BinaryPath   string
	ExitCode     int
}

// Compile runs the pipeline on src's contents up to (and including) stage.
func Compile(src string, stage Stage) (Result, error) {
	var result Result

	content, err := os.ReadFile(src)
	if err != nil {
		return result, errors.Wrapf(err, "reading source file %q", src)
	}

	diag.Tracef("lexing %s", src)
	tokens, err := lexer.New(string(content)).Lex()
	if err != nil {
		return result, errors.Wrap(err, "lex")
	}
	result.Tokens = tokens
	if stage == StageLex {
		return result, nil
	}

	diag.Tracef("parsing %s", src)
	prog, err := parser.Parse(tokens)
	if err != nil {
		return result, errors.Wrap(err, "parse")
	}
	result.Program = prog
	if stage == StageParse {
		return result, nil
	}

	ctx := names.NewContext()
	diag.Tracef("resolving %s", src)
	resolved, err := resolver.Resolve(prog, ctx)
	if err != nil {
		return result, errors.Wrap(err, "resolve")
	}
	result.Resolved = resolved
	if stage == StageResolve {
		return result, nil
	}

	diag.Tracef("type-checking %s", src)
	table, err := types.Check(resolved)
	if err != nil {
		return result, errors.Wrap(err, "typecheck")
	}
	result.SymbolTable = table

	diag.Tracef("lowering to TAC %s", src)
	tac, err := tacky.Lower(resolved, table, ctx)
	if err != nil {
		return result, errors.Wrap(err, "tacky")
	}
	result.Tacky = tac
	if stage == StageTacky {
		return result, nil
	}

	diag.Tracef("lowering to assembly AST %s", src)
	asmProg, err := x86.Lower(tac)
	if err != nil {
		return result, errors.Wrap(err, "asm")
	}
	x86.ReplacePseudo(asmProg, table)
	x86.FixUp(asmProg)
	result.Assembly = asmProg
	if stage == StageAsm {
		return result, nil
	}

	diag.Tracef("emitting text %s", src)
	text, err := x86.Generate(asmProg)
	if err != nil {
		return result, errors.Wrap(err, "codegen")
	}
	result.AssemblyText = text
	if stage == StageCodegen {
		return result, nil
	}

	// assemble/run/test all need a .s file on disk and gcc.
	asmPath := strings.TrimSuffix(src, filepath.Ext(src)) + ".s"
	if err := os.WriteFile(asmPath, []byte(text), 0644); err != nil {
		return result, errors.Wrapf(err, "writing assembly to %q", asmPath)
	}

	binPath, err := assemble(src, asmPath)
	if err != nil {
		return result, err
	}
	result.BinaryPath = binPath
	if stage == StageAssemble {
		return result, nil
	}

	diag.Tracef("running %s", binPath)
	exitCode, err := run(binPath)
	if err != nil {
		return result, err
	}
	result.ExitCode = exitCode
	return result, nil
}

// assemble links asmPath (and, if present, a sibling <file>_client.c or
// <file>_client.s) into an executable with gcc, per spec §6.
func assemble(src, asmPath string) (string, error) {
	base := strings.TrimSuffix(src, filepath.Ext(src))
	binPath := base
	args := []string{asmPath, "-o", binPath}

	for _, ext := range []string{"_client.c", "_client.s"} {
		sibling := base + ext
		if _, err := os.Stat(sibling); err == nil {
			args = append(args, sibling)
			break
		}
	}

	cmd := exec.Command("gcc", args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "gcc assemble/link failed")
	}
	return binPath, nil
}

// run executes binPath and returns the process's exit status (mod 256, per
// spec §6), distinguishing a clean non-zero exit from a launch failure.
func run(binPath string) (int, error) {
	cmd := exec.Command(binPath)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 0, errors.Wrapf(err, "running %q", binPath)
	}
	return exitErr.ExitCode(), nil
}

// Describe renders a Result for the requested stage as human-readable text,
// used by cmd/minic's --stop-after output.
func Describe(stage Stage, r Result) string {
	switch stage {
	case StageLex:
		var sb strings.Builder
		for _, t := range r.Tokens {
			fmt.Fprintln(&sb, t.String())
		}
		return sb.String()
	case StageParse:
		return fmt.Sprintf("%+v", r.Program)
	case StageResolve:
		return fmt.Sprintf("%+v", r.Resolved)
	case StageTacky:
		return fmt.Sprintf("%+v", r.Tacky)
	case StageAsm:
		return fmt.Sprintf("%+v", r.Assembly)
	case StageCodegen:
		return r.AssemblyText
	case StageRun, StageTest:
		return fmt.Sprintf("exit code: %d", r.ExitCode)
	default:
		return ""
	}
}
