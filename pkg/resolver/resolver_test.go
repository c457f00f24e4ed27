package resolver_test

import (
	"strings"
	"testing"

	"its-hmny.dev/minic/pkg/ast"
	"its-hmny.dev/minic/pkg/lexer"
	"its-hmny.dev/minic/pkg/names"
	"its-hmny.dev/minic/pkg/parser"
	"its-hmny.dev/minic/pkg/resolver"
)

func resolveSrc(t *testing.T, src string) (ast.Program, error) {
	t.Helper()
	tokens, err := lexer.New(src).Lex()
	if err != nil {
		t.Fatalf("%q: lex error: %v", src, err)
	}
	prog, err := parser.Parse(tokens)
	if err != nil {
		t.Fatalf("%q: parse error: %v", src, err)
	}
	return resolver.Resolve(prog, names.NewContext())
}

func TestResolveManglesLocalVariables(t *testing.T) {
	prog, err := resolveSrc(t, "int main(void) { int x = 1; return x; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := prog.Decls[0].(ast.FuncDecl)
	decl := fn.Body.Items[0].(ast.VarDecl)
	if decl.Name == "x" || !strings.Contains(decl.Name, "x") {
		t.Errorf("got mangled name %q, want it distinct from and containing 'x'", decl.Name)
	}

	ret := fn.Body.Items[1].(ast.ReturnStmt)
	v := ret.Expr.(ast.VariableExpr)
	if v.Name != decl.Name {
		t.Errorf("use %q does not match declaration's mangled name %q", v.Name, decl.Name)
	}
}

func TestResolveUndefinedVariable(t *testing.T) {
	test := func(src, wantSubstr string) {
		t.Helper()
		_, err := resolveSrc(t, src)
		if err == nil {
			t.Fatalf("%q: expected an error", src)
		}
		if !strings.Contains(err.Error(), wantSubstr) {
			t.Errorf("%q: got error %q, want it to contain %q", src, err.Error(), wantSubstr)
		}
	}

	test("int main(void) { return y; }", "undefined variable")
	test("int main(void) { return missing(); }", "undefined function")
}

func TestResolveRedeclarationInSameScope(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { int x = 1; int x = 2; return x; }")
	if err == nil || !strings.Contains(err.Error(), "redeclared") {
		t.Fatalf("got %v, want a redeclaration error", err)
	}
}

func TestResolveShadowingInNestedBlockIsAllowed(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { int x = 1; { int x = 2; } return x; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResolveInvalidAssignmentTarget(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { 1 = 2; return 0; }")
	if err == nil || !strings.Contains(err.Error(), "invalid lvalue: Constant") {
		t.Fatalf("got %v, want an 'invalid lvalue: Constant' error", err)
	}
}

func TestResolveInvalidLvalueInIncrement(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { 1++; return 0; }")
	if err == nil || !strings.Contains(err.Error(), "invalid lvalue") {
		t.Fatalf("got %v, want an invalid-lvalue error", err)
	}
}

func TestResolveGotoToUndefinedLabel(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { goto nowhere; return 0; }")
	if err == nil || !strings.Contains(err.Error(), "goto undefined label") {
		t.Fatalf("got %v, want a goto-undefined-label error", err)
	}
}

func TestResolveDuplicateLabel(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { there: there: return 0; }")
	if err == nil || !strings.Contains(err.Error(), "redefined") {
		t.Fatalf("got %v, want a label-redefinition error", err)
	}
}

func TestResolveBreakOutsideLoop(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { break; return 0; }")
	if err == nil || !strings.Contains(err.Error(), "break outside of loop") {
		t.Fatalf("got %v, want a break-outside-loop error", err)
	}
}

func TestResolveContinueOutsideLoop(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { continue; return 0; }")
	if err == nil || !strings.Contains(err.Error(), "continue outside of loop") {
		t.Fatalf("got %v, want a continue-outside-loop error", err)
	}
}

func TestResolveLoopLabelsAreDistinctPerLoop(t *testing.T) {
	src := `int main(void) {
		while (1) { break; }
		while (1) { break; }
		return 0;
	}`
	prog, err := resolveSrc(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := prog.Decls[0].(ast.FuncDecl)
	first := fn.Body.Items[0].(ast.WhileStmt)
	second := fn.Body.Items[1].(ast.WhileStmt)
	if first.Label == "" || second.Label == "" {
		t.Fatalf("expected both loops to carry a label")
	}
	if first.Label == second.Label {
		t.Errorf("got identical labels %q for two distinct loops", first.Label)
	}
}

func TestResolveDuplicateParameterName(t *testing.T) {
	_, err := resolveSrc(t, "int add(int a, int a) { return a; }")
	if err == nil || !strings.Contains(err.Error(), "duplicate parameter") {
		t.Fatalf("got %v, want a duplicate-parameter error", err)
	}
}

func TestResolveNestedFunctionDefinitionRejected(t *testing.T) {
	_, err := resolveSrc(t, "int main(void) { int f(void) { return 0; } return 0; }")
	if err == nil || !strings.Contains(err.Error(), "nested function") {
		t.Fatalf("got %v, want a nested-function-definition error", err)
	}
}

func TestResolveExternInBlockScopeKeepsName(t *testing.T) {
	prog, err := resolveSrc(t, "int shared; int main(void) { extern int shared; return shared; }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fn := prog.Decls[1].(ast.FuncDecl)
	decl := fn.Body.Items[0].(ast.VarDecl)
	if decl.Name != "shared" {
		t.Errorf("got mangled name %q for an extern declaration, want it untouched", decl.Name)
	}
}
