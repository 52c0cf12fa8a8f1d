package compiler

import (
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/rmay/quillvm/pkg/value"
	"github.com/rmay/quillvm/pkg/vm"
)

// compileAndRun compiles source and runs it to completion, returning the
// final value stack for inspection — mirroring the teacher's
// compile-then-run-then-inspect-stack test shape.
func compileAndRun(t *testing.T, source string) []value.Value {
	t.Helper()
	heap := &value.Heap{}
	fn, err := Compile(source, heap)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	machine := vm.New(heap)
	status, err := machine.RunFunction(fn)
	if status != vm.StatusSuccess {
		t.Fatalf("Run error: %v", err)
	}
	return machine.Stack()
}

func expectCompileError(t *testing.T, source string) {
	t.Helper()
	heap := &value.Heap{}
	_, err := Compile(source, heap)
	if err == nil {
		t.Fatalf("expected a compile error for %q, got none", source)
	}
}

// ==========================================
// BASIC COMPILATION
// ==========================================

func TestCompileEmptyProgram(t *testing.T) {
	stack := compileAndRun(t, "")
	if len(stack) != 0 {
		t.Errorf("expected empty stack, got %v", stack)
	}
}

func TestCompileWhitespaceOnly(t *testing.T) {
	stack := compileAndRun(t, "  \n\t \n ")
	if len(stack) != 0 {
		t.Errorf("expected empty stack, got %v", stack)
	}
}

func TestBareExpressionStatementLeavesItsResultOnTheStack(t *testing.T) {
	stack := compileAndRun(t, "42")
	if len(stack) != 1 || stack[0].AsNumber() != 42 {
		t.Fatalf("expected [42], got %v", stack)
	}
}

// ==========================================
// ARITHMETIC / PRECEDENCE
// ==========================================

func TestProductBindsTighterThanSum(t *testing.T) {
	stack := compileAndRun(t, "2 + 3 * 4")
	if len(stack) != 1 || stack[0].AsNumber() != 14 {
		t.Fatalf("expected [14], got %v", stack)
	}
}

func TestSameLevelOperatorsAreLeftAssociative(t *testing.T) {
	stack := compileAndRun(t, "10 - 3 - 2")
	if len(stack) != 1 || stack[0].AsNumber() != 5 {
		t.Fatalf("expected [5], got %v", stack)
	}
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	stack := compileAndRun(t, "(2 + 3) * 4")
	if len(stack) != 1 || stack[0].AsNumber() != 20 {
		t.Fatalf("expected [20], got %v", stack)
	}
}

func TestComparisonAndEqualitySharePrecCond(t *testing.T) {
	// "1 < 2 == true" parses as "(1 < 2) == true" only if < and == sit at
	// the same precedence tier with left-to-right evaluation; splitting
	// them into separate tiers would change what this expression means.
	stack := compileAndRun(t, "1 < 2 == true")
	if len(stack) != 1 || !stack[0].AsBool() {
		t.Fatalf("expected [true], got %v", stack)
	}
}

func TestNewlineAfterOperatorIsLegal(t *testing.T) {
	stack := compileAndRun(t, "1 +\n2")
	if len(stack) != 1 || stack[0].AsNumber() != 3 {
		t.Fatalf("expected [3], got %v", stack)
	}
}

func TestNotOperator(t *testing.T) {
	stack := compileAndRun(t, "!false")
	if len(stack) != 1 || !stack[0].AsBool() {
		t.Fatalf("expected [true], got %v", stack)
	}
}

// ==========================================
// STRINGS
// ==========================================

func TestStringLiteralExcludesQuotes(t *testing.T) {
	stack := compileAndRun(t, `"hello"`)
	if len(stack) != 1 || stack[0].AsString() != "hello" {
		t.Fatalf(`expected ["hello"], got %v`, stack)
	}
}

func TestStringConcatenation(t *testing.T) {
	stack := compileAndRun(t, `"foo" + "bar"`)
	if len(stack) != 1 || stack[0].AsString() != "foobar" {
		t.Fatalf(`expected ["foobar"], got %v`, stack)
	}
}

// ==========================================
// LET / GLOBALS / LOCALS / SCOPING
// ==========================================

func TestLetDefinesAGlobalReadableLater(t *testing.T) {
	stack := compileAndRun(t, "let x = 10\ndebug x")
	if len(stack) != 0 {
		t.Fatalf("expected debug to leave nothing on the stack, got %v", stack)
	}
}

func TestLetInitializerCannotSeeItsOwnName(t *testing.T) {
	// No such global exists yet when the initializer compiles, so this is
	// an undefined-global runtime error, not a self-referential binding.
	heap := &value.Heap{}
	fn, err := Compile("let x = x + 1", heap)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	machine := vm.New(heap)
	status, _ := machine.RunFunction(fn)
	if status != vm.StatusRuntimeError {
		t.Fatalf("expected a runtime error for a self-referential initializer, got %s", status)
	}
}

func TestBlockScopesShadowOuterLet(t *testing.T) {
	heap := &value.Heap{}
	fn, err := Compile("let x = 1\n{\nlet x = 2\ndebug x\n}\ndebug x", heap)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	var printed []string
	machine := vm.New(heap, vm.WithStdout(func(s string) { printed = append(printed, s) }))
	if status, err := machine.RunFunction(fn); status != vm.StatusSuccess {
		t.Fatalf("Run error: %v", err)
	}
	if len(printed) != 2 || printed[0] != "DEBUG: 2" || printed[1] != "DEBUG: 1" {
		t.Fatalf("expected the block's debug to see the inner x and the trailing debug to see the outer x, got %v", printed)
	}
}

func TestBlockExitPopsItsLocals(t *testing.T) {
	stack := compileAndRun(t, "{\nlet a = 1\nlet b = 2\n}\n99")
	if len(stack) != 1 || stack[0].AsNumber() != 99 {
		t.Fatalf("expected locals a and b to be popped on block exit, leaving just [99], got %v", stack)
	}
}

func TestEmptyBlockIsACompileError(t *testing.T) {
	expectCompileError(t, "{}")
}

// ==========================================
// ERRORS
// ==========================================

func TestAssignmentExpressionIsRejectedWithAPreciseMessage(t *testing.T) {
	heap := &value.Heap{}
	_, err := Compile("let x = 1\nx = 2", heap)
	if err == nil {
		t.Fatalf("expected a compile error for a bare assignment expression")
	}
	if !strings.Contains(err.Error(), "assignment expressions are not supported") {
		t.Errorf("expected the assignment-specific diagnostic, got %v", err)
	}
}

func TestUnexpectedCharacterIsReportedAsACompileError(t *testing.T) {
	expectCompileError(t, "let x = @")
}

func TestMissingClosingParenIsACompileError(t *testing.T) {
	expectCompileError(t, "(1 + 2")
}

func TestMultipleDiagnosticsAccumulateRatherThanStoppingAtTheFirst(t *testing.T) {
	heap := &value.Heap{}
	_, err := Compile("let = 1\nlet y = )", heap)
	if err == nil {
		t.Fatalf("expected compile errors")
	}
	merr, ok := err.(*multierror.Error)
	if !ok || len(merr.Errors) < 2 {
		t.Fatalf("expected more than one accumulated diagnostic, got %v", err)
	}
}
