// Package repl implements the `--stop-after repl` debugging aid from the
// spec expansion: a line-at-a-time loop that re-runs lex/parse/resolve/tacky
// on each top-level declaration typed at the prompt and echoes the result.
// It is not a second execution engine — nothing here interprets C.
//
// informatter-nilan's go.mod pulls in github.com/chzyer/readline for its own
// interactive modes (cmd_repl.go, cmd_repl_compiled.go); this package is
// where minic actually exercises it, since neither of nilan's REPLs ends up
// using more than bufio.Scanner themselves.
package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"its-hmny.dev/minic/internal/diag"
	"its-hmny.dev/minic/pkg/lexer"
	"its-hmny.dev/minic/pkg/names"
	"its-hmny.dev/minic/pkg/parser"
	"its-hmny.dev/minic/pkg/resolver"
	"its-hmny.dev/minic/pkg/tacky"
	"its-hmny.dev/minic/pkg/types"
)

const prompt = "minic> "

// Run starts an interactive session on stdin/stdout. Each line is treated as
// a standalone translation unit: lexed, parsed, resolved, type-checked and
// lowered to TAC, with the result (or first error) printed before the next
// prompt. Every line gets its own fresh names.Context, so temporaries and
// mangled names restart at 1 each time — debugging output only, not
// something a correctness test should depend on (spec §4.8).
func Run(out io.Writer) error {
	rl, err := readline.New(prompt)
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(out, "minic debugging REPL — type a declaration, Ctrl-D to exit")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		evalLine(out, line)
	}
}

func evalLine(out io.Writer, line string) {
	diag.Tracef("repl input: %q", line)

	tokens, err := lexer.New(line).Lex()
	if err != nil {
		fmt.Fprintf(out, "lex error: %v\n", err)
		return
	}

	prog, err := parser.Parse(tokens)
	if err != nil {
		fmt.Fprintf(out, "parse error: %v\n", err)
		return
	}

	ctx := names.NewContext()
	resolved, err := resolver.Resolve(prog, ctx)
	if err != nil {
		fmt.Fprintf(out, "resolve error: %v\n", err)
		return
	}

	table, err := types.Check(resolved)
	if err != nil {
		fmt.Fprintf(out, "typecheck error: %v\n", err)
		return
	}

	tac, err := tacky.Lower(resolved, table, ctx)
	if err != nil {
		fmt.Fprintf(out, "tacky error: %v\n", err)
		return
	}

	for _, top := range tac.TopLevels {
		fmt.Fprintf(out, "%+v\n", top)
	}
}
