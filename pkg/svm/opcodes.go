// Package svm implements the SVM register-transfer virtual machine.
//
// A VM owns one fixed-size memory arena. The heap grows upward from index 0
// and the stack grows downward from the arena size; nothing partitions the
// two, so before every fetch the VM checks that they have not met.
//
// Programs are linear sequences of Instructions whose branch and call targets
// are already resolved to absolute instruction indices (see package asm).
package svm

import "fmt"

// Opcode identifies an instruction.
type Opcode uint8

// Opcodes. OpInvalid is the zero value and never executes.
const (
	OpInvalid Opcode = iota

	// stack
	OpPush // push r
	OpPop  // pop

	// load/store
	OpLw // lw rd off(rs)
	OpSw // sw rs off(rd); off($hp) allocates

	// immediate/move
	OpLi // li r imm
	OpMv // mv rd rs

	// arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAddi
	OpSubi
	OpMuli
	OpDivi

	// logic
	OpAnd
	OpOr
	OpNot

	// memory lifecycle
	OpDel // del r

	// I/O
	OpPrint
	OpPrintChar

	// control transfer
	OpBeq  // beq r1 r2 target
	OpBleq // bleq r1 r2 target
	OpB    // b target
	OpJal  // jal target
	OpJr   // jr r

	OpHalt

	numOpcodes
)

var opNames = [numOpcodes]string{
	OpInvalid:   "invalid",
	OpPush:      "push",
	OpPop:       "pop",
	OpLw:        "lw",
	OpSw:        "sw",
	OpLi:        "li",
	OpMv:        "mv",
	OpAdd:       "add",
	OpSub:       "sub",
	OpMul:       "mul",
	OpDiv:       "div",
	OpAddi:      "addi",
	OpSubi:      "subi",
	OpMuli:      "muli",
	OpDivi:      "divi",
	OpAnd:       "and",
	OpOr:        "or",
	OpNot:       "not",
	OpDel:       "del",
	OpPrint:     "print",
	OpPrintChar: "printchar",
	OpBeq:       "beq",
	OpBleq:      "bleq",
	OpB:         "b",
	OpJal:       "jal",
	OpJr:        "jr",
	OpHalt:      "halt",
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := OpInvalid + 1; op < numOpcodes; op++ {
		m[opNames[op]] = op
	}
	return m
}()

// ParseOpcode returns the opcode for a mnemonic, or OpInvalid.
func ParseOpcode(name string) Opcode {
	return opByName[name]
}

// Valid reports whether op is an executable opcode.
func (op Opcode) Valid() bool {
	return op > OpInvalid && op < numOpcodes
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Mnemonics returns every valid mnemonic in opcode order.
func Mnemonics() []string {
	names := make([]string, 0, numOpcodes-1)
	for op := OpInvalid + 1; op < numOpcodes; op++ {
		names = append(names, opNames[op])
	}
	return names
}
