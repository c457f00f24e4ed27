// Package diag provides the one env-gated trace toggle shared by every
// pipeline stage, promoted out of the teacher's per-package os.Getenv checks
// (pkg/jack/parsing.go's PARSEC_DEBUG/EXPORT_AST/PRINT_AST) into a single
// place so cmd/minic and internal/driver don't each reinvent it.
package diag

import (
	"log"
	"os"
)

const envVar = "MINIC_DEBUG"

// Enabled reports whether MINIC_DEBUG is set to a non-empty value.
func Enabled() bool { return os.Getenv(envVar) != "" }

// Tracef logs a diagnostic line, prefixed and a no-op unless Enabled().
func Tracef(format string, args ...interface{}) {
	if !Enabled() {
		return
	}
	log.Printf("[minic] "+format, args...)
}
