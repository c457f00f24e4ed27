// Package names generates the unique temporary, variable and label names the
// pipeline relies on downstream of pkg/resolver.
//
// Spec §9's own DESIGN NOTES flag the original implementation's three
// process-global counters as "a teardown hazard for repeat runs in a test
// harness" and suggest threading a single context value through the pipeline
// instead; Context is that value. It owns no other state, so a single
// compilation's Context can be created once in the driver and passed down to
// the resolver and the TAC lowerer; pkg/x86 generates no names and takes no
// Context.
package names

import "fmt"

// Context holds the three monotonic counters used across one compilation.
// It is not safe for concurrent use; spec §5 only requires one counter
// triple per translation unit compiled serially.
type Context struct {
	tempCounter  int
	varCounter   int
	labelCounter int
}

// NewContext returns a fresh, zeroed Context.
func NewContext() *Context { return &Context{} }

// Temp returns a new unique temporary variable name: ".tmpvar.<n>".
func (c *Context) Temp() string {
	c.tempCounter++
	return fmt.Sprintf(".tmpvar.%d", c.tempCounter)
}

// Var returns a new unique mangled variable name for orig: ".var.<orig>.<n>".
func (c *Context) Var(orig string) string {
	c.varCounter++
	return fmt.Sprintf(".var.%s.%d", orig, c.varCounter)
}

// Label returns a new unique label name for tag: ".label.<tag>.<n>".
func (c *Context) Label(tag string) string {
	c.labelCounter++
	return fmt.Sprintf(".label.%s.%d", tag, c.labelCounter)
}
