package svm

import (
	"fmt"
	"strconv"
	"strings"
)

// Word is an optional integer. The zero Word holds no value. Immediates and
// arithmetic results are 32-bit, so V always fits in an int32 unless it came
// from an arena size.
type Word struct {
	V   int
	Set bool
}

// Int returns a Word holding n.
func Int(n int) Word { return Word{V: n, Set: true} }

// Equal reports whether both words are absent or both hold the same value.
func (w Word) Equal(o Word) bool {
	if w.Set != o.Set {
		return false
	}
	return !w.Set || w.V == o.V
}

func (w Word) String() string {
	if !w.Set {
		return "null"
	}
	return strconv.Itoa(w.V)
}

// Register names one slot of the register bank.
type Register uint8

// Registers of the bank.
const (
	SP Register = iota // stack top; lower means more items
	CL                 // call link, base of the current frame
	FP                 // frame pointer
	HP                 // heap cursor, compared against SP before every fetch
	RA                 // return address
	AL                 // access link
	A0                 // accumulator; heap allocation writes the new address here
	T1                 // scratch

	NumRegisters
)

var regNames = [NumRegisters]string{"$sp", "$cl", "$fp", "$hp", "$ra", "$al", "$a0", "$t1"}

func (r Register) String() string {
	if r < NumRegisters {
		return regNames[r]
	}
	return fmt.Sprintf("$r%d", uint8(r))
}

// ParseRegister resolves a register token. Both "$t1" and "t1" are accepted.
func ParseRegister(tok string) (Register, bool) {
	name := "$" + strings.TrimPrefix(tok, "$")
	for r, n := range regNames {
		if n == name {
			return Register(r), true
		}
	}
	return 0, false
}

// Registers is the register bank.
type Registers [NumRegisters]Word

// NewRegisters returns the bank initialized for an arena of the given size.
func NewRegisters(size int) Registers {
	var rs Registers
	rs[SP] = Int(size)
	rs[CL] = Int(size)
	rs[FP] = Int(size - 1)
	rs[HP] = Int(0)
	return rs
}

// Get returns the possibly absent content of r.
func (rs *Registers) Get(r Register) Word { return rs[r] }

// Set stores w into r.
func (rs *Registers) Set(r Register, w Word) { rs[r] = w }

// Value returns the integer held by r, or an error wrapping
// ErrUninitializedRead when r holds no value.
func (rs *Registers) Value(r Register) (int, error) {
	w := rs[r]
	if !w.Set {
		return 0, fmt.Errorf("%w: register %s", ErrUninitializedRead, r)
	}
	return w.V, nil
}
