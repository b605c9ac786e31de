package train

import (
	"fmt"
	"strings"
)

// An Extension runs against the Trainer on a schedule.
type Extension interface {
	// Invoke runs the extension after an iteration whose
	// trigger fired.
	Invoke(tr *Trainer) error
}

// ExtensionFunc adapts a plain function to the Extension
// interface.
type ExtensionFunc func(tr *Trainer) error

func (f ExtensionFunc) Invoke(tr *Trainer) error {
	return f(tr)
}

// Extension priorities order invocation within one iteration.
// Writers report fresh observations, editors rewrite them, and
// readers consume the finished set.
const (
	PriorityWriter = 300
	PriorityEditor = 200
	PriorityReader = 100
)

type extensionEntry struct {
	name     string
	ext      Extension
	trigger  Trigger
	priority int
	order    int
}

// An ExtendOption configures a registered extension.
type ExtendOption func(*extensionEntry)

// WithTrigger sets when the extension fires. The default is
// every iteration.
func WithTrigger(t Trigger) ExtendOption {
	return func(e *extensionEntry) {
		e.trigger = t
	}
}

// WithPriority sets the extension's priority. The default is
// PriorityReader.
func WithPriority(p int) ExtendOption {
	return func(e *extensionEntry) {
		e.priority = p
	}
}

// WithName sets the name used in logs and error messages. The
// default is derived from the extension's type.
func WithName(name string) ExtendOption {
	return func(e *extensionEntry) {
		e.name = name
	}
}

func defaultName(ext Extension) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", ext), "*")
}
