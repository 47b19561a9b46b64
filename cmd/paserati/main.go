package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"escargo/pkg/activation"
	"escargo/pkg/compiler"
	"escargo/pkg/lexer"
	"escargo/pkg/parser"
	"escargo/pkg/runtime"
)

func main() {
	exprFlag := flag.String("e", "", "Run the given expression and exit")
	bytecodeFlag := flag.Bool("bytecode", false, "Dump compiled bytecode before execution (only when ESCARGO_DUMP_BYTECODE is set)")

	flag.Parse()

	switch {
	case *exprFlag != "":
		run(*exprFlag, *bytecodeFlag)
	case flag.NArg() > 1:
		fmt.Fprintf(os.Stderr, "Usage: escargo [script] or escargo -e \"expression\"\n")
		os.Exit(64)
	case flag.NArg() == 1:
		runFile(flag.Arg(0), *bytecodeFlag)
	default:
		repl(*bytecodeFlag)
	}
}

// run compiles and executes a single source string against a fresh
// Runtime, draining the job queue afterward so a script that only
// schedules a Promise reaction still observes it run.
func run(source string, dumpBytecode bool) bool {
	prog, parseErrs := parseSource(source)
	if len(parseErrs) > 0 {
		reportErrors(source, parseErrs)
		return false
	}

	result := compiler.CompileProgram(prog)
	if dumpBytecode {
		result.CodeBlock.Block.MaybeDumpToStderr("<global>")
	}

	rt := runtime.NewRuntime()
	ip := activation.NewInterpreter(rt)
	cc := &compiler.CompiledClosure{CodeBlock: result.CodeBlock}

	value, err := activation.Run(ip, cc)
	rt.DrainJobs()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Uncaught %s\n", err.Error())
		return false
	}
	if !value.IsUndefined() {
		fmt.Println(value.ToString())
	}
	return true
}

func runFile(filename string, dumpBytecode bool) {
	sourceBytes, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", filename, err.Error())
		os.Exit(70)
	}
	if !run(string(sourceBytes), dumpBytecode) {
		os.Exit(70)
	}
}

func repl(dumpBytecode bool) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("escargo (Ctrl+D to exit)")
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			return
		}
		if line == "\n" {
			continue
		}
		run(line, dumpBytecode)
	}
}

func parseSource(source string) (*parser.Program, []error) {
	l := lexer.NewLexer(source)
	p := parser.NewParser(l)
	prog, errs := p.ParseProgram()
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return prog, out
}

func reportErrors(source string, errs []error) {
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e.Error())
	}
}
