// compile_svm assembles .svm programs into .svmb images.
//
// Usage: go run ./tools/compile_svm -o build testdata/programs/factorial.svm
//
// Each input produces <name>.svmb in the output directory. The image records
// the arena size given by -mem.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/svmLang/svm/pkg/asm"
	"github.com/svmLang/svm/pkg/config"
	"github.com/svmLang/svm/pkg/image"
)

func main() {
	outDir := flag.String("o", "build", "Output directory")
	mem := flag.Int("mem", config.DefaultMemSize, "Arena size stored in the image")
	disasm := flag.Bool("disasm", false, "Print disassembly")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: compile_svm [-o outdir] [-mem N] [-disasm] <file.svm>...")
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, path := range flag.Args() {
		out, err := compileFile(path, *outDir, *mem, *disasm)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error compiling %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s\n", path, out)
	}
}

func compileFile(path, outDir string, mem int, showDisasm bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	prog, err := asm.ParseNamed(path, string(data))
	if err != nil {
		return "", err
	}
	code, err := prog.Resolve()
	if err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if showDisasm {
		fmt.Printf("=== %s: %d instructions ===\n", baseName, len(code))
		fmt.Print(asm.Disassemble(code))
	}

	out := filepath.Join(outDir, baseName+image.Ext)
	if err := image.WriteFile(out, image.New(mem, code)); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return out, nil
}
