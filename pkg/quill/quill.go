// Package quill is the embedding facade: new_vm/free_vm/interpret from
// spec.md §7, wired up from package compiler and package vm the way the
// teacher's cmd/luxrepl and cmd/luxc call lux.Compile + vm.NewVM(...).Run()
// directly from main — lifted into its own package so every caller (the
// REPL, the standalone compiler/runner, tests) shares one code path instead
// of repeating the BOM-skip-then-compile-then-run sequence.
package quill

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rmay/quillvm/pkg/compiler"
	"github.com/rmay/quillvm/pkg/table"
	"github.com/rmay/quillvm/pkg/value"
	"github.com/rmay/quillvm/pkg/vm"
)

// bom is the UTF-8 byte order mark the original design strips before
// the parser ever sees the source, so a BOM-prefixed file compiles
// identically to one without it.
const bom = "\xEF\xBB\xBF"

// Status mirrors the embedding API's three-way interpret() result.
type Status = vm.Status

const (
	StatusSuccess      = vm.StatusSuccess
	StatusCompileError = vm.StatusCompileError
	StatusRuntimeError = vm.StatusRuntimeError
)

// VM wraps a heap and a bytecode interpreter, presenting the embedding
// API's new_vm/free_vm/interpret lifecycle as idiomatic Go.
type VM struct {
	heap *value.Heap
	vm   *vm.VM
	log  logrus.FieldLogger
}

// config collects option settings before the underlying vm.VM is built,
// so WithTrace and WithStdout (and any future vm.Option) compose
// regardless of the order they're passed in, instead of each rebuilding
// the VM and discarding whatever an earlier option configured.
type config struct {
	log    logrus.FieldLogger
	trace  bool
	stdout func(string)
}

// Option configures a VM.
type Option func(*config)

// WithLogger plumbs one logger down into both the compiler and the VM, so
// a caller gets one consistent trace stream instead of configuring each
// layer separately.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// WithTrace enables the VM's per-instruction trace logging.
func WithTrace(enabled bool) Option {
	return func(c *config) { c.trace = enabled }
}

// WithStdout overrides where OP_DEBUG writes its rendered value.
func WithStdout(w func(string)) Option {
	return func(c *config) { c.stdout = w }
}

// New returns a VM, matching the embedding API's new_vm(). Its heap and
// global table persist across every call to Interpret, so a REPL session
// can define a global on one line and read it back on the next.
func New(opts ...Option) *VM {
	c := &config{log: logrus.New().WithField("component", "quill")}
	for _, opt := range opts {
		opt(c)
	}

	vmOpts := []vm.Option{vm.WithLogger(c.log), vm.WithTrace(c.trace)}
	if c.stdout != nil {
		vmOpts = append(vmOpts, vm.WithStdout(c.stdout))
	}

	heap := &value.Heap{}
	return &VM{heap: heap, vm: vm.New(heap, vmOpts...), log: c.log}
}

// Free releases the VM's heap, matching the embedding API's free_vm(vm).
func (v *VM) Free() { v.vm.Free() }

// Interpret compiles source and, on success, runs it against this VM's
// persistent heap and globals. Matches interpret(vm, source) from the
// embedding API: SUCCESS, COMPILE_ERROR, or RUNTIME_ERROR, with err
// carrying the aggregated diagnostics for a compile error or the single
// failing operation's message for a runtime error.
func (v *VM) Interpret(source string) (Status, error) {
	source = strings.TrimPrefix(source, bom)
	fn, err := compiler.Compile(source, v.heap, compiler.WithLogger(v.log))
	if err != nil {
		return StatusCompileError, err
	}
	return v.vm.RunFunction(fn)
}

// Globals exposes the underlying VM's global table, for a REPL's
// introspection commands.
func (v *VM) Globals() *table.Table { return v.vm.Globals() }
