// Package vm implements the bytecode interpreter for Quill: a fixed-size
// value stack, a fixed-size call-frame stack, and a dispatch loop that
// walks a chunk.Chunk's opcodes one at a time.
package vm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rmay/quillvm/pkg/chunk"
	"github.com/rmay/quillvm/pkg/table"
	"github.com/rmay/quillvm/pkg/value"
)

// StackMax and FramesMax are the fixed sizes of the value stack and call
// frame stack, mirroring the original design's STACK_MAX/FRAMES_MAX (both
// 256) rather than growing either dynamically.
const (
	StackMax  = 256
	FramesMax = 256
)

// Status is the three-way outcome Interpret reports, matching the
// embedding API's InterpretResult contract.
type Status int

const (
	StatusSuccess Status = iota
	StatusCompileError
	StatusRuntimeError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusCompileError:
		return "COMPILE_ERROR"
	case StatusRuntimeError:
		return "RUNTIME_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CallFrame is one activation record: the function being executed, its
// instruction pointer into that function's Chunk, and the base index into
// the shared value stack where its locals begin.
type CallFrame struct {
	function *chunk.Function
	ip       int
	slots    int // stack index where this frame's local slot 0 lives
	base     int // stack index to truncate back to on return
}

// VM executes compiled chunk.Function bytecode against a shared value
// stack, a call-frame stack, and a table of global bindings.
type VM struct {
	stack   []value.Value
	frames  []CallFrame
	globals *table.Table
	heap    *value.Heap
	running bool
	trace   bool
	log     logrus.FieldLogger
	stdout  func(string)
}

// Option configures a VM.
type Option func(*VM)

// WithLogger overrides the default logger used for trace output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithTrace enables per-instruction trace logging, generalizing the
// teacher's variadic trace-bool constructor parameter into a functional
// option.
func WithTrace(enabled bool) Option {
	return func(vm *VM) { vm.trace = enabled }
}

// WithStdout overrides where OP_DEBUG writes its rendered value. Defaults
// to fmt.Println, matching a script's normal terminal output.
func WithStdout(w func(string)) Option {
	return func(vm *VM) { vm.stdout = w }
}

// New returns a VM sharing the given heap and an empty global table, ready
// to Interpret one or more chunks in sequence (globals persist across
// calls, matching a REPL's expectation that a later line can see an
// earlier line's "let").
func New(heap *value.Heap, opts ...Option) *VM {
	vm := &VM{
		stack:   make([]value.Value, 0, StackMax),
		frames:  make([]CallFrame, 0, FramesMax),
		globals: table.New(),
		heap:    heap,
		log:     logrus.New().WithField("component", "vm"),
		stdout:  func(s string) { fmt.Println(s) },
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Free drops the VM's references to its stack, frames and heap. Matches
// the embedding API's free_vm(vm): this VM's garbage is reclaimed by Go's
// collector once nothing holds a reference, there is no manual free to
// perform, but the call exists so callers following the embedding API's C
// heritage have a symmetrical teardown step to call.
func (vm *VM) Free() {
	vm.stack = nil
	vm.frames = nil
	vm.heap.Free()
}

// Stack returns a copy of the current value stack, for debugging/testing.
func (vm *VM) Stack() []value.Value { return append([]value.Value{}, vm.stack...) }

// Globals exposes the VM's global table, for tests and the REPL's
// "what got defined" inspection.
func (vm *VM) Globals() *table.Table { return vm.globals }

func (vm *VM) push(v value.Value) error {
	if len(vm.stack) >= StackMax {
		return fmt.Errorf("stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if len(vm.stack) == 0 {
		return value.Nil, fmt.Errorf("stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) peek(distance int) (value.Value, error) {
	idx := len(vm.stack) - 1 - distance
	if idx < 0 {
		return value.Nil, fmt.Errorf("stack underflow")
	}
	return vm.stack[idx], nil
}

// call pushes a new CallFrame for fn. slots is the stack index of the
// frame's local slot 0; base is where the stack gets truncated back to
// when the frame returns (the index the callee value itself occupied, or
// the current stack length for the implicit top-level call, which has no
// callee value on the stack to discard).
func (vm *VM) call(fn *chunk.Function, slots, base int) error {
	if len(vm.frames) >= FramesMax {
		return fmt.Errorf("call stack overflow")
	}
	vm.frames = append(vm.frames, CallFrame{function: fn, ip: 0, slots: slots, base: base})
	return nil
}

// Interpret compiles and runs source against this VM's persistent heap and
// globals. Matches the embedding API's interpret(vm, source): compile
// failures return StatusCompileError without touching the VM's stack or
// globals; runtime failures return StatusRuntimeError after whatever
// side effects already ran.
func (vm *VM) Interpret(source string, compile func(string, *value.Heap) (*chunk.Function, error)) (Status, error) {
	fn, err := compile(source, vm.heap)
	if err != nil {
		return StatusCompileError, err
	}
	return vm.RunFunction(fn)
}

// RunFunction calls fn as the implicit top-level activation and runs the
// VM's dispatch loop to completion. Exposed directly (rather than only
// reachable through Interpret) so tests can exercise opcodes the compiler
// never emits — OP_SET_LOCAL, OP_JUMP_IF_NOT_MATCH, OP_SWAP_STACK_TOP —
// against hand-built chunk.Chunk values.
func (vm *VM) RunFunction(fn *chunk.Function) (Status, error) {
	// OP_EXIT and runtime errors leave the previous run's frames in place;
	// drop them so repeated runs do not accumulate toward FramesMax.
	vm.frames = vm.frames[:0]
	if err := vm.call(fn, len(vm.stack), len(vm.stack)); err != nil {
		return StatusRuntimeError, err
	}
	vm.running = true
	if err := vm.run(); err != nil {
		vm.running = false
		return StatusRuntimeError, err
	}
	return StatusSuccess, nil
}

func (vm *VM) frame() *CallFrame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := f.function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	hi := vm.readByte()
	lo := vm.readByte()
	return chunk.DecodeShort(hi, lo)
}

func (vm *VM) readConstant() value.Value {
	f := vm.frame()
	return f.function.Chunk.Constants[vm.readByte()]
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	f := vm.frame()
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("runtime error at ip=%d in %s: %s", f.ip, f.function.String(), msg)
}

// run is the dispatch loop: fetch an opcode from the current frame, step
// its ip past any operands, execute it, repeat until OP_EXIT or an error.
func (vm *VM) run() error {
	for vm.running {
		f := vm.frame()
		if f.ip >= len(f.function.Chunk.Code) {
			return vm.runtimeError("fell off the end of the chunk")
		}
		op := chunk.OpCode(vm.readByte())

		if vm.trace {
			vm.log.WithFields(logrus.Fields{
				"ip":    f.ip - 1,
				"op":    chunk.OpcodeName(op),
				"stack": fmt.Sprint(vm.stack),
			}).Info("step")
		}

		if err := vm.dispatch(op); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) dispatch(op chunk.OpCode) error {
	switch op {
	case chunk.OpConstant:
		return vm.push(vm.readConstant())
	case chunk.OpTrue:
		return vm.push(value.Bool(true))
	case chunk.OpFalse:
		return vm.push(value.Bool(false))
	case chunk.OpAdd:
		return vm.binaryArith(op)
	case chunk.OpMinus, chunk.OpMultiply, chunk.OpDivide:
		return vm.binaryArith(op)
	case chunk.OpNot:
		return vm.unaryNot()
	case chunk.OpGt, chunk.OpLt, chunk.OpGte, chunk.OpLte:
		return vm.binaryCompare(op)
	case chunk.OpEq, chunk.OpNeq:
		return vm.binaryEquality(op)
	case chunk.OpJump:
		offset := vm.readShort()
		vm.frame().ip += int(offset)
		return nil
	case chunk.OpJumpIfFalse:
		return vm.jumpIf(false)
	case chunk.OpJumpIfTrue:
		return vm.jumpIf(true)
	case chunk.OpJumpIfNotMatch:
		return vm.jumpIfNotMatch()
	case chunk.OpLoop:
		offset := vm.readShort()
		vm.frame().ip -= int(offset)
		return nil
	case chunk.OpDefineGlobal:
		name := vm.readConstant().AsObj().(*value.ObjString)
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals.Set(name, v)
		return nil
	case chunk.OpGetGlobal:
		name := vm.readConstant().AsObj().(*value.ObjString)
		v, ok := vm.globals.Get(name)
		if !ok {
			return vm.runtimeError("Undefined variable: %s", name.Chars)
		}
		return vm.push(v)
	case chunk.OpSetLocal:
		slot := vm.readByte()
		v, err := vm.peek(0)
		if err != nil {
			return err
		}
		f := vm.frame()
		vm.stack[f.slots+int(slot)] = v
		return nil
	case chunk.OpGetLocal:
		slot := vm.readByte()
		f := vm.frame()
		return vm.push(vm.stack[f.slots+int(slot)])
	case chunk.OpSwapStackTop:
		n := len(vm.stack)
		if n < 2 {
			return vm.runtimeError("stack underflow for SWAP_STACK_TOP")
		}
		vm.stack[n-1], vm.stack[n-2] = vm.stack[n-2], vm.stack[n-1]
		return nil
	case chunk.OpCall:
		return vm.opCall()
	case chunk.OpReturn:
		return vm.opReturn()
	case chunk.OpPop:
		_, err := vm.pop()
		return err
	case chunk.OpDebug:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.stdout("DEBUG: " + value.Print(v))
		return nil
	case chunk.OpExit:
		vm.running = false
		return nil
	default:
		return vm.runtimeError("unknown opcode 0x%02X", byte(op))
	}
}

func (vm *VM) jumpIf(onTrue bool) error {
	offset := vm.readShort()
	cond, err := vm.peek(0)
	if err != nil {
		return err
	}
	if cond.Truthy() == onTrue {
		vm.frame().ip += int(offset)
	}
	return nil
}

// jumpIfNotMatch pops the match target, peeks the subject left on the
// stack (so a chain of these can test one subject against several
// patterns without re-pushing it), and jumps past the body if they are
// not equal.
func (vm *VM) jumpIfNotMatch() error {
	offset := vm.readShort()
	target, err := vm.pop()
	if err != nil {
		return err
	}
	subject, err := vm.peek(0)
	if err != nil {
		return err
	}
	if !value.Equal(target, subject) {
		vm.frame().ip += int(offset)
	}
	return nil
}

// binaryArith backs OP_ADD/OP_MINUS/OP_MULTIPLY/OP_DIVIDE. Per the fixed
// defect described in spec.md §9: string concatenation only ever happens
// for OP_ADD. The original design's bug made string + / - / * / even
// comparisons fall into one shared "treat both as strings if either looks
// like one" path; here OP_MINUS/OP_MULTIPLY/OP_DIVIDE on a string operand
// is a type error like any other language would report.
func (vm *VM) binaryArith(op chunk.OpCode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}

	if op == chunk.OpAdd && a.IsString() && b.IsString() {
		concatenated := value.NewObjString(vm.heap, a.AsString()+b.AsString())
		return vm.push(value.FromObj(concatenated))
	}

	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operand to %s must be a number", chunk.OpcodeName(op))
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case chunk.OpAdd:
		return vm.push(value.Number(x + y))
	case chunk.OpMinus:
		return vm.push(value.Number(x - y))
	case chunk.OpMultiply:
		return vm.push(value.Number(x * y))
	case chunk.OpDivide:
		if y == 0 {
			return vm.runtimeError("division by zero")
		}
		return vm.push(value.Number(x / y))
	}
	return vm.runtimeError("unreachable arithmetic opcode %s", chunk.OpcodeName(op))
}

func (vm *VM) binaryCompare(op chunk.OpCode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands to %s must be numbers", chunk.OpcodeName(op))
	}
	x, y := a.AsNumber(), b.AsNumber()
	var result bool
	switch op {
	case chunk.OpGt:
		result = x > y
	case chunk.OpLt:
		result = x < y
	case chunk.OpGte:
		result = x >= y
	case chunk.OpLte:
		result = x <= y
	}
	return vm.push(value.Bool(result))
}

func (vm *VM) binaryEquality(op chunk.OpCode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	eq := value.Equal(a, b)
	if op == chunk.OpNeq {
		eq = !eq
	}
	return vm.push(value.Bool(eq))
}

func (vm *VM) unaryNot() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(value.Bool(!v.Truthy()))
}

// opCall implements OP_CALL: the byte operand is the argument count, so
// the callee sits argc slots below the stack top. Per the call convention
// (clox's layout: `slots = stackTop - argc - 1`), the callee itself
// occupies local slot 0 of the new frame, with its arguments starting at
// slot 1 — OP_GET_LOCAL/OP_SET_LOCAL operands are offset accordingly by
// whatever compiles a call with parameters. This snapshot only ever calls
// an *chunk.Function directly — closures exist in the data model but the
// compiler never produces a call through one, so there is no
// upvalue-closing step here.
func (vm *VM) opCall() error {
	argc := int(vm.readByte())
	calleeIdx := len(vm.stack) - argc - 1
	if calleeIdx < 0 {
		return vm.runtimeError("stack underflow for CALL")
	}
	callee := vm.stack[calleeIdx]
	if !callee.IsObj() {
		return vm.runtimeError("can only call a function")
	}
	fn, ok := callee.AsObj().(*chunk.Function)
	if !ok {
		return vm.runtimeError("can only call a function")
	}
	if argc != fn.Arity {
		return vm.runtimeError("expected %d arguments but got %d", fn.Arity, argc)
	}
	return vm.call(fn, calleeIdx, calleeIdx)
}

// opReturn pops the result, discards the returning frame along with
// everything it put on the stack (including the callee slot itself, for a
// non-top-level frame), and pushes the result back. Returning from the
// outermost (implicit top-level) frame also stops the VM, but still
// leaves the result on the stack rather than discarding it, so an
// embedder or REPL can inspect the value of the last thing the script did.
func (vm *VM) opReturn() error {
	result, err := vm.pop()
	if err != nil {
		return err
	}
	f := vm.frame()
	base := f.base
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stack = vm.stack[:base]
	if err := vm.push(result); err != nil {
		return err
	}
	if len(vm.frames) == 0 {
		vm.running = false
	}
	return nil
}
