// svm runs SVM programs, either assembly text (.svm) or images (.svmb).
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/svmLang/svm/pkg/asm"
	"github.com/svmLang/svm/pkg/config"
	"github.com/svmLang/svm/pkg/image"
	"github.com/svmLang/svm/pkg/logging"
	"github.com/svmLang/svm/pkg/svm"
	"github.com/svmLang/svm/pkg/trace"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var f *svm.Fault
		if errors.As(err, &f) {
			fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("svm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mem := fs.Int("mem", config.DefaultMemSize, "Arena size in cells")
	traceMode := fs.String("trace", "off", "Dump mode: off, summary or verbose")
	disasm := fs.Bool("disasm", false, "Disassemble instead of run")
	traceDB := fs.String("trace-db", "", "Record the run in this SQLite database")
	configDir := fs.String("config", "", "Directory holding svm.toml (default: search upward from cwd)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: svm [flags] <file.svm|file.svmb>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one program file")
	}

	// Config file, then environment, then explicit flags.
	var (
		cfg *config.Config
		err error
	)
	if *configDir != "" {
		cfg, err = config.Load(*configDir)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	memSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mem":
			cfg.MemSize = *mem
			memSet = true
		case "trace":
			cfg.Trace = *traceMode
		case "trace-db":
			cfg.TraceDB = *traceDB
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	imgSize, code, err := load(fs.Arg(0))
	if err != nil {
		return err
	}
	memSize := cfg.MemSize
	if imgSize > 0 && !memSet {
		memSize = imgSize
	}

	if *disasm {
		fmt.Fprint(stdout, asm.Disassemble(code))
		return nil
	}

	mode, _ := cfg.TraceMode()
	vm := svm.New(memSize, code)
	vm.Output = stdout
	vm.Diag = stderr
	vm.Trace = mode
	vm.Logger = logger.With(zap.String("program", fs.Arg(0)))

	var rec *trace.Recorder
	if cfg.TraceDB != "" {
		store, err := trace.Open(cfg.TraceDB)
		if err != nil {
			return err
		}
		defer store.Close()
		rec = store.Recorder()
		vm.Tracer = trace.Multi(rec, trace.NewLog(logger))
	} else {
		vm.Tracer = trace.NewLog(logger)
	}

	runErr := vm.Run()
	if rec != nil && rec.Err() != nil {
		logger.Error("trace store", zap.Error(rec.Err()))
	}
	return runErr
}

// load reads a program. For images it also returns the arena size stored in
// the image; -mem overrides it.
func load(path string) (int, []svm.Instruction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}

	if isBytecode(data) {
		img, err := image.Unmarshal(data)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: %w", path, err)
		}
		return img.MemSize, img.Instructions(), nil
	}

	prog, err := asm.ParseNamed(path, string(data))
	if err != nil {
		return 0, nil, err
	}
	code, err := prog.Resolve()
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", path, err)
	}
	return 0, code, nil
}

func isBytecode(data []byte) bool {
	// Heuristic: if starts with printable text, it's assembly
	for i := 0; i < len(data) && i < 10; i++ {
		c := data[i]
		if c == '\n' || c == '\r' || c == '\t' || c == ' ' {
			continue
		}
		if c >= 0x20 && c <= 0x7E {
			continue
		}
		return true
	}
	return false
}
