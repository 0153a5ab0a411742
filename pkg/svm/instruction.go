package svm

import (
	"strconv"
	"strings"
)

// Instruction is one resolved SVM instruction.
//
// Args holds operand tokens: register names ("$t1"), base-10 immediates, or
// absolute instruction indices, depending on the opcode. Offset is only used by
// lw and sw, where Args[1] is the base register.
type Instruction struct {
	Op     Opcode
	Args   [3]string
	Offset int
}

// Instr builds an instruction from an opcode and up to three operands.
func Instr(op Opcode, args ...string) Instruction {
	in := Instruction{Op: op}
	copy(in.Args[:], args)
	return in
}

// Mem builds a lw or sw instruction addressing off(base).
func Mem(op Opcode, reg string, off int, base string) Instruction {
	return Instruction{Op: op, Args: [3]string{reg, base}, Offset: off}
}

// String renders the instruction in assembly form.
func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	if in.Op == OpLw || in.Op == OpSw {
		sb.WriteByte(' ')
		sb.WriteString(in.Args[0])
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(in.Offset))
		sb.WriteByte('(')
		sb.WriteString(in.Args[1])
		sb.WriteByte(')')
		return sb.String()
	}
	for _, arg := range in.Args {
		if arg == "" {
			break
		}
		sb.WriteByte(' ')
		sb.WriteString(arg)
	}
	return sb.String()
}
