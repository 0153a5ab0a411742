package asm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmLang/svm/pkg/svm"
)

const factorial = `
; fact(n) with n in $a0, result in $a0
    li $a0 5
    jal fact
    print $a0
    halt

fact:
    push $ra
    push $a0
    li $t1 1
    bleq $a0 $t1 base
    subi $a0 $a0 1
    jal fact
    lw $t1 0($sp)      ; n
    mul $a0 $a0 $t1
    b done
base: li $a0 1
done:
    pop
    lw $ra 0($sp)
    pop
    jr $ra
`

func TestAssembleResolvesLabels(t *testing.T) {
	code, err := Assemble(factorial)
	require.NoError(t, err)
	require.Len(t, code, 18)

	assert.Equal(t, svm.Instr(svm.OpJal, "4"), code[1])
	assert.Equal(t, svm.Instr(svm.OpBleq, "$a0", "$t1", "13"), code[7])
	assert.Equal(t, svm.Instr(svm.OpJal, "4"), code[9])
	assert.Equal(t, svm.Mem(svm.OpLw, "$t1", 0, "$sp"), code[10])
	assert.Equal(t, svm.Instr(svm.OpB, "14"), code[12])
	assert.Equal(t, svm.Instr(svm.OpLi, "$a0", "1"), code[13])
	assert.Equal(t, svm.Instr(svm.OpJr, "$ra"), code[17])
}

func TestAssembledFactorialRuns(t *testing.T) {
	code, err := Assemble(factorial)
	require.NoError(t, err)

	vm := svm.New(64, code)
	var out bytes.Buffer
	vm.Output = &out
	require.NoError(t, vm.Run())
	assert.Equal(t, "120\n", out.String())
}

func TestAssembleOperands(t *testing.T) {
	tests := []struct {
		src  string
		want svm.Instruction
	}{
		{"sw $a0 0($hp)", svm.Mem(svm.OpSw, "$a0", 0, "$hp")},
		{"lw $al -2($cl)", svm.Mem(svm.OpLw, "$al", -2, "$cl")},
		{"lw $al ($fp)", svm.Mem(svm.OpLw, "$al", 0, "$fp")},
		{"li $t1 +7", svm.Instr(svm.OpLi, "$t1", "7")},
		{"addi $t1, $t1, -1", svm.Instr(svm.OpAddi, "$t1", "$t1", "-1")},
		{"mv $fp $sp", svm.Instr(svm.OpMv, "$fp", "$sp")},
		{"ADD $a0 $t1 $al", svm.Instr(svm.OpAdd, "$a0", "$t1", "$al")},
		{"beq $a0 $t1 12", svm.Instr(svm.OpBeq, "$a0", "$t1", "12")},
		{"jal 10", svm.Instr(svm.OpJal, "10")},
		{"printchar $t1", svm.Instr(svm.OpPrintChar, "$t1")},
		{"pop", svm.Instr(svm.OpPop)},
		{"halt # done", svm.Instr(svm.OpHalt)},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			code, err := Assemble(tt.src)
			require.NoError(t, err)
			require.Len(t, code, 1)
			assert.Equal(t, tt.want, code[0])
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  string
	}{
		{"unknown mnemonic", "nop", "line 1: unknown mnemonic: nop"},
		{"too few operands", "li $t1", "line 1: li takes 2 operands, got 1"},
		{"too many operands", "halt\npop $t1", "line 2: pop takes 0 operands, got 1"},
		{"undefined label", "b nowhere", "line 1: undefined label: nowhere"},
		{"duplicate label", "a:\nhalt\na:\nhalt", `line 3: duplicate label "a"`},
		{"unknown register", "push $zz", "line 1: unknown register: $zz"},
		{"register expected", "push 3", "line 1: push operand 1: expected register"},
		{"address expected", "lw $t1 $sp", "line 1: lw operand 2: expected off($reg)"},
		{"immediate expected", "li $t1 $a0", "line 1: li operand 2: expected integer"},
		{"target expected", "b $ra", "line 1: b operand 1: expected label or index"},
		{"number overflow", "li $t1 99999999999999999999", "line 1: invalid number: 99999999999999999999"},
		{"number beyond 32 bits", "li $t1 3000000000", "line 1: invalid number: 3000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			require.Error(t, err)
			assert.EqualError(t, err, tt.err)
		})
	}
}

func TestParseError(t *testing.T) {
	_, err := Assemble("li $t1 5)")
	assert.Error(t, err)
}

func TestLabelAtEnd(t *testing.T) {
	code, err := Assemble("b end\nhalt\nend:")
	require.NoError(t, err)
	assert.Equal(t, svm.Instr(svm.OpB, "2"), code[0])
}

func TestFormatRoundTrip(t *testing.T) {
	code, err := Assemble(factorial)
	require.NoError(t, err)

	again, err := Assemble(Format(code))
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestDisassemble(t *testing.T) {
	code := []svm.Instruction{
		svm.Instr(svm.OpLi, "$t1", "5"),
		svm.Mem(svm.OpSw, "$t1", 0, "$hp"),
		svm.Instr(svm.OpHalt),
	}
	want := "0000: li $t1 5\n" +
		"0001: sw $t1 0($hp)\n" +
		"0002: halt\n"
	assert.Equal(t, want, Disassemble(code))
}
