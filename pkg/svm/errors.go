package svm

import (
	"errors"
	"fmt"
)

// FaultKind classifies a fault.
type FaultKind uint8

// Fault kinds.
const (
	NoFault FaultKind = iota

	UninitializedRead     // register or cell read before being written, or after del
	OutOfRange            // arena index outside [0, size)
	MemoryAccessFault     // heap/stack collision, or a failed lw/sw/del arena access
	DivisionByZero        // div or divi with a zero divisor
	MalformedImmediate    // unparsable literal or target operand
	UnknownOpcode         // opcode outside the instruction set
	InvalidOperand        // missing operand or unknown register name
	InstructionOutOfRange // program counter outside the program
)

var kindNames = [...]string{
	NoFault:               "NoFault",
	UninitializedRead:     "UninitializedRead",
	OutOfRange:            "OutOfRange",
	MemoryAccessFault:     "MemoryAccessFault",
	DivisionByZero:        "DivisionByZero",
	MalformedImmediate:    "MalformedImmediate",
	UnknownOpcode:         "UnknownOpcode",
	InvalidOperand:        "InvalidOperand",
	InstructionOutOfRange: "InstructionOutOfRange",
}

func (k FaultKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("FaultKind(%d)", uint8(k))
}

// Sentinel errors, one per kind. Faults and memory errors match them with
// errors.Is.
var (
	ErrUninitializedRead     = errors.New("uninitialized read")
	ErrOutOfRange            = errors.New("address out of range")
	ErrMemoryAccess          = errors.New("memory access fault")
	ErrCollision             = errors.New("heap and stack collided")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrMalformedImmediate    = errors.New("malformed immediate")
	ErrUnknownOpcode         = errors.New("unknown opcode")
	ErrInvalidOperand        = errors.New("invalid operand")
	ErrInstructionOutOfRange = errors.New("instruction index out of range")
)

func (k FaultKind) sentinel() error {
	switch k {
	case UninitializedRead:
		return ErrUninitializedRead
	case OutOfRange:
		return ErrOutOfRange
	case MemoryAccessFault:
		return ErrMemoryAccess
	case DivisionByZero:
		return ErrDivisionByZero
	case MalformedImmediate:
		return ErrMalformedImmediate
	case UnknownOpcode:
		return ErrUnknownOpcode
	case InvalidOperand:
		return ErrInvalidOperand
	case InstructionOutOfRange:
		return ErrInstructionOutOfRange
	}
	return nil
}

// MemoryError is an arena access failure. Kind is UninitializedRead or
// OutOfRange.
type MemoryError struct {
	Kind  FaultKind
	Index int
	Size  int
}

func (e *MemoryError) Error() string {
	if e.Kind == OutOfRange {
		return fmt.Sprintf("address %d out of range [0,%d)", e.Index, e.Size)
	}
	return fmt.Sprintf("uninitialized read at address %d", e.Index)
}

func (e *MemoryError) Unwrap() error { return e.Kind.sentinel() }

// Fault is a terminal execution error.
//
// Kind is the instruction-level classification. For lw, sw and del it is
// MemoryAccessFault, and Err keeps the arena-level *MemoryError, so callers
// can recover the finer kind with errors.As or errors.Is.
type Fault struct {
	Kind  FaultKind
	PC    int         // index of the faulting instruction, or of the next fetch for collisions
	Instr Instruction // zero when no instruction was fetched
	Err   error
}

func (f *Fault) Error() string {
	where := fmt.Sprintf("pc %d", f.PC)
	if f.Instr.Op != OpInvalid {
		where += fmt.Sprintf(" (%s)", f.Instr)
	}
	if f.Err == nil {
		return fmt.Sprintf("%s at %s", f.Kind, where)
	}
	return fmt.Sprintf("%s at %s: %v", f.Kind, where, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Is matches the sentinel of the fault's own kind.
func (f *Fault) Is(target error) bool {
	s := f.Kind.sentinel()
	return s != nil && s == target
}

func fault(kind FaultKind, err error) *Fault {
	return &Fault{Kind: kind, Err: err}
}
