package svm

import (
	"fmt"
	"io"
	"strings"
)

// TraceMode selects the built-in diagnostic dumps.
type TraceMode uint8

const (
	// TraceOff disables dumps.
	TraceOff TraceMode = iota
	// TraceSummary dumps once, on halt or fault.
	TraceSummary
	// TraceVerbose also dumps after every executed instruction.
	TraceVerbose
)

var traceNames = [...]string{"off", "summary", "verbose"}

func (m TraceMode) String() string {
	if int(m) < len(traceNames) {
		return traceNames[m]
	}
	return fmt.Sprintf("TraceMode(%d)", uint8(m))
}

// ParseTraceMode parses "off", "summary" or "verbose".
func ParseTraceMode(s string) (TraceMode, error) {
	for i, n := range traceNames {
		if strings.EqualFold(s, n) {
			return TraceMode(i), nil
		}
	}
	return TraceOff, fmt.Errorf("unknown trace mode %q", s)
}

// Dump writes the registers followed by every arena cell. Field order is
// stable: PC, SP, CL, FP, RA, AL, A0, T1, HP.
func (vm *VM) Dump(w io.Writer) {
	r := &vm.regs
	fmt.Fprintln(w, "| Registers |")
	fmt.Fprintf(w, "| PC: %d | SP: %s | CL: %s | FP: %s | RA: %s | AL: %s | A0: %s | T1: %s | HP: %s |\n",
		vm.pc, r[SP], r[CL], r[FP], r[RA], r[AL], r[A0], r[T1], r[HP])
	fmt.Fprintln(w, "| Memory |")
	for i, c := range vm.mem.cells {
		fmt.Fprintf(w, "%d: %s\n", i, c)
	}
}
