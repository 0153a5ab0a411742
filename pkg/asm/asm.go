package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/svmLang/svm/pkg/svm"
)

type operandKind uint8

const (
	kindReg    operandKind = iota // $t1
	kindAddr                      // off($reg)
	kindImm                       // base-10 literal
	kindTarget                    // label or absolute instruction index
)

func (k operandKind) String() string {
	return [...]string{"register", "off($reg)", "integer", "label or index"}[k]
}

// shapes gives the operand kinds of each opcode
var shapes = map[svm.Opcode][]operandKind{
	svm.OpPush:      {kindReg},
	svm.OpPop:       {},
	svm.OpLw:        {kindReg, kindAddr},
	svm.OpSw:        {kindReg, kindAddr},
	svm.OpLi:        {kindReg, kindImm},
	svm.OpMv:        {kindReg, kindReg},
	svm.OpAdd:       {kindReg, kindReg, kindReg},
	svm.OpSub:       {kindReg, kindReg, kindReg},
	svm.OpMul:       {kindReg, kindReg, kindReg},
	svm.OpDiv:       {kindReg, kindReg, kindReg},
	svm.OpAddi:      {kindReg, kindReg, kindImm},
	svm.OpSubi:      {kindReg, kindReg, kindImm},
	svm.OpMuli:      {kindReg, kindReg, kindImm},
	svm.OpDivi:      {kindReg, kindReg, kindImm},
	svm.OpAnd:       {kindReg, kindReg, kindReg},
	svm.OpOr:        {kindReg, kindReg, kindReg},
	svm.OpNot:       {kindReg, kindReg},
	svm.OpDel:       {kindReg},
	svm.OpPrint:     {kindReg},
	svm.OpPrintChar: {kindReg},
	svm.OpBeq:       {kindReg, kindReg, kindTarget},
	svm.OpBleq:      {kindReg, kindReg, kindTarget},
	svm.OpB:         {kindTarget},
	svm.OpJal:       {kindTarget},
	svm.OpJr:        {kindReg},
	svm.OpHalt:      {},
}

// Assemble converts assembly text to resolved instructions
func Assemble(source string) ([]svm.Instruction, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return prog.Resolve()
}

// Labels maps every label to the index of the instruction that follows it
func (p *Program) Labels() (map[string]int, error) {
	labels := make(map[string]int)
	idx := 0
	for _, line := range p.Lines {
		if line.Label != nil {
			if _, dup := labels[line.Label.Name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", line.Pos.Line, line.Label.Name)
			}
			labels[line.Label.Name] = idx
			continue
		}
		idx++
	}
	return labels, nil
}

// Resolve checks every statement and replaces labels with instruction indices
func (p *Program) Resolve() ([]svm.Instruction, error) {
	labels, err := p.Labels()
	if err != nil {
		return nil, err
	}

	code := make([]svm.Instruction, 0, len(p.Lines))
	for _, line := range p.Lines {
		if line.Statement == nil {
			continue
		}
		in, err := line.Statement.resolve(labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line.Statement.Pos.Line, err)
		}
		code = append(code, in)
	}
	return code, nil
}

func (s *Statement) resolve(labels map[string]int) (svm.Instruction, error) {
	op := svm.ParseOpcode(strings.ToLower(s.Mnemonic))
	if !op.Valid() {
		return svm.Instruction{}, fmt.Errorf("unknown mnemonic: %s", s.Mnemonic)
	}
	shape := shapes[op]
	if len(s.Operands) != len(shape) {
		return svm.Instruction{}, fmt.Errorf("%s takes %d operands, got %d", op, len(shape), len(s.Operands))
	}

	in := svm.Instruction{Op: op}
	for i, kind := range shape {
		o := s.Operands[i]
		switch kind {
		case kindReg:
			if o.Register == nil {
				return in, fmt.Errorf("%s operand %d: expected %s", op, i+1, kind)
			}
			r, err := register(*o.Register)
			if err != nil {
				return in, err
			}
			in.Args[i] = r

		case kindAddr:
			if o.Address == nil {
				return in, fmt.Errorf("%s operand %d: expected %s", op, i+1, kind)
			}
			r, err := register(o.Address.Base)
			if err != nil {
				return in, err
			}
			off := 0
			if o.Address.Offset != nil {
				if off, err = integer(*o.Address.Offset); err != nil {
					return in, err
				}
			}
			in.Args[i] = r
			in.Offset = off

		case kindImm:
			if o.Int == nil {
				return in, fmt.Errorf("%s operand %d: expected %s", op, i+1, kind)
			}
			n, err := integer(*o.Int)
			if err != nil {
				return in, err
			}
			in.Args[i] = strconv.Itoa(n)

		case kindTarget:
			switch {
			case o.Int != nil:
				n, err := integer(*o.Int)
				if err != nil {
					return in, err
				}
				in.Args[i] = strconv.Itoa(n)
			case o.Label != nil:
				addr, ok := labels[*o.Label]
				if !ok {
					return in, fmt.Errorf("undefined label: %s", *o.Label)
				}
				in.Args[i] = strconv.Itoa(addr)
			default:
				return in, fmt.Errorf("%s operand %d: expected %s", op, i+1, kind)
			}
		}
	}
	return in, nil
}

func register(tok string) (string, error) {
	r, ok := svm.ParseRegister(tok)
	if !ok {
		return "", fmt.Errorf("unknown register: %s", tok)
	}
	return r.String(), nil
}

func integer(tok string) (int, error) {
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", tok)
	}
	return int(n), nil
}

// Format renders instructions as assembly text that Assemble accepts
func Format(code []svm.Instruction) string {
	var sb strings.Builder
	for _, in := range code {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Disassemble lists instructions with their indices
func Disassemble(code []svm.Instruction) string {
	var sb strings.Builder
	for i, in := range code {
		sb.WriteString(fmt.Sprintf("%04d: %s\n", i, in))
	}
	return sb.String()
}
