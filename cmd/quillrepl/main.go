// Command quillrepl is an interactive Quill shell: each line is compiled
// and run against one persistent VM, so a `let` on one line is visible to
// the next, the way the teacher's luxrepl kept one running stack across
// commands.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rmay/quillvm/pkg/quill"
)

type REPL struct {
	scanner *bufio.Scanner
	vm      *quill.VM
	trace   bool
}

func NewREPL() *REPL {
	return &REPL{
		scanner: bufio.NewScanner(os.Stdin),
		vm:      quill.New(),
	}
}

func (r *REPL) Run() {
	r.printBanner()

	for {
		fmt.Print("quill> ")

		if !r.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if r.handleCommand(line) {
			continue
		}

		r.evaluate(line)
	}
}

func (r *REPL) printBanner() {
	fmt.Println("╔═══════════════════════════════╗")
	fmt.Println("║          QUILL REPL           ║")
	fmt.Println("╚═══════════════════════════════╝")
	fmt.Println()
	fmt.Println("Type 'help' for commands, 'exit' to quit")
	fmt.Println()
}

func (r *REPL) handleCommand(line string) bool {
	switch line {
	case "exit", "quit", "q":
		fmt.Println("Goodbye!")
		os.Exit(0)
		return true

	case "help", "?":
		r.printHelp()
		return true

	case "reset":
		r.vm.Free()
		r.vm = quill.New(quill.WithTrace(r.trace))
		fmt.Println("VM reset")
		return true

	case "trace on":
		r.trace = true
		r.vm = quill.New(quill.WithTrace(true))
		fmt.Println("Trace enabled (VM reset)")
		return true

	case "trace off":
		r.trace = false
		r.vm = quill.New()
		fmt.Println("Trace disabled (VM reset)")
		return true

	case "globals":
		r.printGlobals()
		return true
	}

	return false
}

func (r *REPL) printGlobals() {
	g := r.vm.Globals()
	if g.Count() == 0 {
		fmt.Println("No globals defined")
		return
	}
	fmt.Printf("%d global(s) defined\n", g.Count())
}

func (r *REPL) evaluate(line string) {
	status, err := r.vm.Interpret(line)
	switch status {
	case quill.StatusCompileError:
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
	case quill.StatusRuntimeError:
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
	}
}

func (r *REPL) printHelp() {
	fmt.Println("\n═══ Quill REPL Commands ═══")
	fmt.Println("  help, ?          - Show this help")
	fmt.Println("  exit, quit, q    - Exit REPL")
	fmt.Println("  reset            - Discard all globals and start a fresh VM")
	fmt.Println("  trace on/off     - Toggle per-instruction trace logging")
	fmt.Println("  globals          - Show how many globals are defined")
	fmt.Println()
	fmt.Println("═══ Examples ═══")
	fmt.Println("  quill> let x = 5")
	fmt.Println("  quill> let y = x + 10")
	fmt.Println("  quill> debug y")
	fmt.Println()
}

func main() {
	repl := NewREPL()
	repl.Run()
}
