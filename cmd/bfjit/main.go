// bfjit CLI - compiles and runs Brainfuck programs
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/bfjit/compiler"
	"github.com/chazu/bfjit/config"
	"github.com/chazu/bfjit/jit"
	"github.com/chazu/bfjit/pkg/bytecode"
)

func main() {
	inline := flag.String("e", "", "Run the given program text instead of a file")
	noOpt := flag.Bool("no-opt", false, "Disable the optimizer")
	tapeSize := flag.Int("tape", 0, "Tape size in cells (0 uses the configured size)")
	eofMode := flag.String("eof", "", "EOF policy: keep, zero, or minus-one")
	bounds := flag.Bool("bounds", false, "Catch tape overruns with a diagnostic instead of crashing")
	stats := flag.Bool("stats", false, "Print execution statistics after the run")
	dumpIR := flag.Bool("dump-ir", false, "Print the compiler's instruction stream and exit")
	disasm := flag.Bool("disasm", false, "Print disassembled bytecode and exit")
	emitPath := flag.String("emit-bytecode", "", "Write the compiled chunk to the given .bfc file and exit")
	noCache := flag.Bool("no-cache", false, "Skip the compiled-chunk cache")
	configDir := flag.String("config", "", "Directory containing bfjit.toml (default: search upward from cwd)")
	trace := flag.Bool("trace", false, "Print every instruction as it executes")
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start interactive REPL")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bfjit [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a Brainfuck program. The file may be source (.b, .bf)\n")
		fmt.Fprintf(os.Stderr, "or a precompiled chunk (.bfc).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  bfjit hello.b                           # Compile and run\n")
		fmt.Fprintf(os.Stderr, "  bfjit -e '++++++++[>++++++++<-]>.'      # Run inline program text\n")
		fmt.Fprintf(os.Stderr, "  bfjit -i                                # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  bfjit -disasm hello.b                   # Show compiled bytecode\n")
		fmt.Fprintf(os.Stderr, "  bfjit -emit-bytecode hello.bfc hello.b  # Precompile to a chunk file\n")
		fmt.Fprintf(os.Stderr, "  bfjit hello.bfc                         # Run a precompiled chunk\n")
		fmt.Fprintf(os.Stderr, "  bfjit -stats -no-opt mandelbrot.b       # Compare against the optimizer\n")
	}
	flag.Parse()

	if *verbose {
		commonlog.Configure(2, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		if cfg.Dir != "" {
			fmt.Printf("Loaded config from %s\n", filepath.Join(cfg.Dir, "bfjit.toml"))
		} else {
			fmt.Println("Using default config")
		}
	}

	// Flags override the config file
	if *noOpt {
		cfg.Runtime.Optimize = false
	}
	if *tapeSize > 0 {
		cfg.Runtime.TapeSize = *tapeSize
	}
	if *eofMode != "" {
		cfg.Runtime.EOF = *eofMode
	}
	if *bounds {
		cfg.Runtime.CheckBounds = true
	}

	eof, err := bytecode.ParseEOFPolicy(cfg.Runtime.EOF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := jit.Options{
		Optimize:    cfg.Runtime.Optimize,
		TapeSize:    cfg.Runtime.TapeSize,
		EOF:         eof,
		CheckBounds: cfg.Runtime.CheckBounds,
		Stats:       *stats,
		Trace:       *trace,
		Debug:       *emitPath != "" || *disasm,
	}

	var cache *jit.Cache
	if cfg.Cache.Enabled && !*noCache {
		cache = openCache(cfg, *verbose)
		if cache != nil {
			defer cache.Close()
		}
	}

	args := flag.Args()
	if *inline != "" && len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Error: -e and a file argument are mutually exclusive")
		os.Exit(1)
	}

	// Start REPL if requested or if there is nothing to run
	if *interactive || (*inline == "" && len(args) == 0) {
		runREPL(opts, cache)
		return
	}

	// Resolve program source or precompiled chunk
	var source string
	var chunk *bytecode.Chunk
	name := "inline"

	switch {
	case *inline != "":
		source = *inline
	case len(args) == 1:
		path := args[0]
		name = filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if filepath.Ext(path) == ".bfc" {
			chunk, err = bytecode.Deserialize(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		} else {
			source = string(data)
		}
	default:
		flag.Usage()
		os.Exit(1)
	}

	eng := jit.New(opts)
	eng.SetCache(cache)

	if *dumpIR {
		if chunk != nil {
			fmt.Fprintln(os.Stderr, "Error: cannot dump IR for a precompiled chunk")
			os.Exit(1)
		}
		prog, err := compiler.Parse(source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if opts.Optimize {
			prog = compiler.Optimize(prog)
		}
		prog.Dump(os.Stdout)
		return
	}

	if chunk == nil && (*disasm || *emitPath != "") {
		chunk, err = eng.Compile(source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *disasm {
		fmt.Print(chunk.DisassembleWithName(name))
	}
	if *emitPath != "" {
		data, err := chunk.Serialize()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*emitPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Printf("Wrote %d bytes to %s\n", len(data), *emitPath)
		}
	}
	if *disasm || *emitPath != "" {
		return
	}

	var report *jit.RunReport
	if chunk != nil {
		report, err = eng.RunChunk(chunk, os.Stdin, os.Stdout)
	} else {
		report, err = eng.Run(source, os.Stdin, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *stats {
		printStats(report)
	}
}

// loadConfig loads bfjit.toml from the given directory, or searches upward
// from the working directory when none is given. Missing config is not an
// error; defaults apply.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return config.Default(), nil
	}
	cfg, err := config.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

// openCache opens the configured chunk cache. Cache trouble degrades to
// running without one.
func openCache(cfg *config.Config, verbose bool) *jit.Cache {
	var cache *jit.Cache
	var err error
	if path := cfg.CachePath(); path != "" {
		cache, err = jit.NewCache(path)
	} else {
		cache, err = jit.NewCacheDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cache unavailable: %v\n", err)
		return nil
	}
	if verbose {
		fmt.Printf("Using chunk cache %s\n", cache.Path())
	}
	return cache
}

// printStats reports timing and instruction counts on stderr, keeping
// stdout clean for program output.
func printStats(report *jit.RunReport) {
	fmt.Fprintf(os.Stderr, "\nInstructions executed: %d\n", report.Stats.Executed)
	if report.CompileTime > 0 {
		fmt.Fprintf(os.Stderr, "Compile time: %s (cache hit: %v)\n", report.CompileTime, report.CacheHit)
	}
	fmt.Fprintf(os.Stderr, "Execution time: %s\n", report.ExecuteTime)
	fmt.Fprintf(os.Stderr, "I/O: %d bytes in, %d bytes out\n", report.Stats.InputBytes, report.Stats.OutputBytes)

	type opCount struct {
		op    bytecode.Opcode
		count uint64
	}
	var counts []opCount
	for op, n := range report.Stats.PerOp {
		if n > 0 {
			counts = append(counts, opCount{bytecode.Opcode(op), n})
		}
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].count > counts[j].count })

	fmt.Fprintln(os.Stderr, "Per-opcode counts:")
	for _, c := range counts {
		fmt.Fprintf(os.Stderr, "  %-13s %12d\n", c.op, c.count)
	}
}

// runREPL starts an interactive read-eval-print loop. Each line runs as a
// complete program on a fresh tape. Programs read no input in REPL mode.
func runREPL(opts jit.Options, cache *jit.Cache) {
	fmt.Println("bfjit REPL (type 'exit' to quit, ':help' for commands)")
	if opts.Optimize {
		fmt.Println("Optimizer: on")
	} else {
		fmt.Println("Optimizer: off")
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(">> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		// Handle REPL commands (start with ':')
		if strings.HasPrefix(line, ":") {
			opts = handleREPLCommand(opts, line)
			continue
		}

		eng := jit.New(opts)
		eng.SetCache(cache)

		report, err := eng.Run(line, nil, os.Stdout)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println()
		if opts.Stats {
			printStats(report)
		}
	}

	fmt.Println()
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(opts jit.Options, cmd string) jit.Options {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Println("REPL Commands:")
		fmt.Println("  :help, :h, :?     Show this help")
		fmt.Println("  :opt              Show whether the optimizer is on")
		fmt.Println("  :opt on|off       Toggle the optimizer")
		fmt.Println("  exit, quit        Exit REPL")
	case ":opt":
		if opts.Optimize {
			fmt.Println("Optimizer: on")
		} else {
			fmt.Println("Optimizer: off")
		}
	case ":opt on":
		opts.Optimize = true
		fmt.Println("Optimizer on")
	case ":opt off":
		opts.Optimize = false
		fmt.Println("Optimizer off")
	default:
		fmt.Printf("Unknown command: %s (type :help for commands)\n", cmd)
	}
	return opts
}
