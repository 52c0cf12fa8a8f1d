// Command quillc compiles a .ql source file and runs it, the way the
// teacher's luxc compiled a .lux file to bytecode — except Quill has no
// standalone bytecode file format, so quillc runs the compiled chunk
// immediately rather than writing a .bin alongside it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rmay/quillvm/pkg/quill"
)

var (
	traceFlag = flag.Bool("trace", false, "show per-instruction execution trace")
	quietFlag = flag.Bool("quiet", false, "suppress logging output below warnings")
)

func main() {
	flag.Parse()

	if len(flag.Args()) < 1 {
		fmt.Println("Usage: quillc [options] <file.ql>")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	filename := flag.Args()[0]
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	if *quietFlag {
		log.SetLevel(logrus.WarnLevel)
	}

	vm := quill.New(
		quill.WithLogger(log.WithField("component", "quillc")),
		quill.WithTrace(*traceFlag),
	)
	defer vm.Free()

	status, err := vm.Interpret(string(source))
	switch status {
	case quill.StatusCompileError:
		fmt.Fprintf(os.Stderr, "compile error: %v\n", err)
		os.Exit(1)
	case quill.StatusRuntimeError:
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
}
