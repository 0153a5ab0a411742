package svm

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the execution state of a VM.
type State uint8

// VM states. Halted and Faulted are terminal.
const (
	Running State = iota
	Halted
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// VM is the SVM execution engine. A VM runs one program once and is not
// safe for concurrent use; run another program on another VM.
type VM struct {
	// Output receives print and printchar (default: os.Stdout)
	Output io.Writer

	// Diag receives diagnostic dumps (default: os.Stderr)
	Diag io.Writer

	// Trace selects the built-in dumps
	Trace TraceMode

	// Tracer, if set, observes every step
	Tracer Tracer

	// Logger records run start and outcome (default: no-op)
	Logger *zap.Logger

	id    uuid.UUID
	code  []Instruction
	mem   *Memory
	regs  Registers
	pc    int
	heap  int          // highest address still allocated, -1 when none
	live  map[int]bool // addresses handed out by allocation and not yet freed
	steps int
	state State
	begun bool
	err   *Fault
}

// New creates a VM with an arena of memSize cells loaded with code. The
// arena must hold the program's combined heap and stack; undersizing shows
// up as a MemoryAccessFault when the two collide.
func New(memSize int, code []Instruction) *VM {
	return &VM{
		Output: os.Stdout,
		Diag:   os.Stderr,
		id:     uuid.New(),
		code:   append([]Instruction(nil), code...),
		mem:    NewMemory(memSize),
		regs:   NewRegisters(memSize),
		heap:   -1,
		live:   make(map[int]bool),
	}
}

// ID identifies this run in logs and trace stores.
func (vm *VM) ID() uuid.UUID { return vm.id }

// PC returns the index of the next instruction to fetch.
func (vm *VM) PC() int { return vm.pc }

// Steps returns the number of instructions fetched so far.
func (vm *VM) Steps() int { return vm.steps }

// State returns the execution state.
func (vm *VM) State() State { return vm.state }

// Code returns the loaded program. Callers must not modify it.
func (vm *VM) Code() []Instruction { return vm.code }

// MemSize returns the arena size.
func (vm *VM) MemSize() int { return vm.mem.Size() }

// Reg returns the content of register r.
func (vm *VM) Reg(r Register) Word { return vm.regs.Get(r) }

// Cell returns a copy of arena cell i.
func (vm *VM) Cell(i int) (Cell, error) { return vm.mem.Cell(i) }

// Err returns the fault that stopped the VM, or nil.
func (vm *VM) Err() error {
	if vm.err == nil {
		return nil
	}
	return vm.err
}

// Run executes until halt or fault. It returns nil on halt and a *Fault
// otherwise.
func (vm *VM) Run() error {
	for vm.state == Running {
		if err := vm.Step(); err != nil {
			return err
		}
	}
	return vm.Err()
}

// Step checks the heap/stack invariant, then fetches and executes one
// instruction. Once the VM is halted or faulted, Step does nothing and
// returns the terminal result.
func (vm *VM) Step() error {
	if vm.state != Running {
		return vm.Err()
	}
	vm.begin()

	if f := vm.checkCollision(); f != nil {
		f.PC = vm.pc
		return vm.fail(f)
	}

	pc := vm.pc
	if pc < 0 || pc >= len(vm.code) {
		return vm.fail(&Fault{
			Kind: InstructionOutOfRange,
			PC:   pc,
			Err:  fmt.Errorf("%w: %d not in [0,%d)", ErrInstructionOutOfRange, pc, len(vm.code)),
		})
	}
	in := vm.code[pc]
	if vm.Tracer != nil {
		vm.Tracer.Before(vm, pc, in)
	}
	vm.pc++
	vm.steps++

	if f := vm.exec(in); f != nil {
		f.PC, f.Instr = pc, in
		return vm.fail(f)
	}
	if vm.Tracer != nil {
		vm.Tracer.After(vm, pc, in)
	}

	if in.Op == OpHalt {
		vm.halt()
		return nil
	}
	if vm.Trace == TraceVerbose {
		fmt.Fprintf(vm.diag(), "\nInstruction: %s\n", in)
		vm.Dump(vm.diag())
	}
	return nil
}

// checkCollision enforces hp+1 < sp. The highest live allocation counts as
// hp, since allocation never moves the register itself.
func (vm *VM) checkCollision() *Fault {
	hp, err := vm.regs.Value(HP)
	if err != nil {
		return fault(UninitializedRead, err)
	}
	sp, err := vm.regs.Value(SP)
	if err != nil {
		return fault(UninitializedRead, err)
	}
	top := hp
	if vm.heap > top {
		top = vm.heap
	}
	if top+1 >= sp {
		return fault(MemoryAccessFault, fmt.Errorf("%w: hp=%d heap=%d sp=%d", ErrCollision, hp, vm.heap, sp))
	}
	return nil
}

func (vm *VM) logger() *zap.Logger {
	if vm.Logger == nil {
		vm.Logger = zap.NewNop()
	}
	return vm.Logger
}

func (vm *VM) out() io.Writer {
	if vm.Output == nil {
		return io.Discard
	}
	return vm.Output
}

func (vm *VM) diag() io.Writer {
	if vm.Diag == nil {
		return io.Discard
	}
	return vm.Diag
}

func (vm *VM) begin() {
	if vm.begun {
		return
	}
	vm.begun = true
	vm.logger().Info("run started",
		zap.Stringer("run", vm.id),
		zap.Int("mem", vm.mem.Size()),
		zap.Int("code", len(vm.code)))
	if vm.Tracer != nil {
		vm.Tracer.Begin(vm)
	}
}

func (vm *VM) halt() {
	vm.state = Halted
	if vm.Trace != TraceOff {
		vm.Dump(vm.diag())
	}
	vm.logger().Info("run halted",
		zap.Stringer("run", vm.id),
		zap.Int("steps", vm.steps))
	if vm.Tracer != nil {
		vm.Tracer.End(vm, nil)
	}
}

func (vm *VM) fail(f *Fault) error {
	vm.state = Faulted
	vm.err = f
	if vm.Trace != TraceOff {
		vm.Dump(vm.diag())
	}
	vm.logger().Warn("run faulted",
		zap.Stringer("run", vm.id),
		zap.Int("steps", vm.steps),
		zap.Stringer("kind", f.Kind),
		zap.Int("pc", f.PC),
		zap.Error(f.Err))
	if vm.Tracer != nil {
		vm.Tracer.End(vm, f)
	}
	return f
}

// === Operand decoding ===

func (vm *VM) reg(in Instruction, i int) (Register, *Fault) {
	tok := in.Args[i]
	if tok == "" {
		return 0, fault(InvalidOperand, fmt.Errorf("%w: missing operand %d", ErrInvalidOperand, i+1))
	}
	r, ok := ParseRegister(tok)
	if !ok {
		return 0, fault(InvalidOperand, fmt.Errorf("%w: unknown register %q", ErrInvalidOperand, tok))
	}
	return r, nil
}

func (vm *VM) value(in Instruction, i int) (int, *Fault) {
	r, f := vm.reg(in, i)
	if f != nil {
		return 0, f
	}
	v, err := vm.regs.Value(r)
	if err != nil {
		return 0, fault(UninitializedRead, err)
	}
	return v, nil
}

// imm parses a base-10 literal; branch targets are parsed the same way.
func imm(in Instruction, i int) (int, *Fault) {
	tok := in.Args[i]
	if tok == "" {
		return 0, fault(InvalidOperand, fmt.Errorf("%w: missing operand %d", ErrInvalidOperand, i+1))
	}
	n, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, fault(MalformedImmediate, fmt.Errorf("%w: %q", ErrMalformedImmediate, tok))
	}
	return int(n), nil
}

func memFault(err error) *Fault {
	return fault(MemoryAccessFault, err)
}

// === Execution ===

func (vm *VM) exec(in Instruction) *Fault {
	switch in.Op {
	case OpPush:
		r, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		sp, err := vm.regs.Value(SP)
		if err != nil {
			return fault(UninitializedRead, err)
		}
		sp--
		vm.regs.Set(SP, Int(sp))
		if err := vm.mem.Write(sp, vm.regs.Get(r)); err != nil {
			return memFault(err)
		}

	case OpPop:
		sp, err := vm.regs.Value(SP)
		if err != nil {
			return fault(UninitializedRead, err)
		}
		vm.regs.Set(SP, Int(sp+1))

	case OpLw:
		rd, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		base, f := vm.value(in, 1)
		if f != nil {
			return f
		}
		v, err := vm.mem.Read(base + in.Offset)
		if err != nil {
			return memFault(err)
		}
		vm.regs.Set(rd, Int(v))

	case OpSw:
		rs, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		rd, f := vm.reg(in, 1)
		if f != nil {
			return f
		}
		if rd == HP {
			return vm.alloc(vm.regs.Get(rs))
		}
		base, f := vm.value(in, 1)
		if f != nil {
			return f
		}
		if err := vm.mem.Write(base+in.Offset, vm.regs.Get(rs)); err != nil {
			return memFault(err)
		}

	case OpLi:
		rd, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		n, f := imm(in, 1)
		if f != nil {
			return f
		}
		vm.regs.Set(rd, Int(n))

	case OpMv:
		rd, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		rs, f := vm.reg(in, 1)
		if f != nil {
			return f
		}
		vm.regs.Set(rd, vm.regs.Get(rs))

	case OpAdd, OpSub, OpMul, OpDiv:
		return vm.arith(in, false)

	case OpAddi, OpSubi, OpMuli, OpDivi:
		return vm.arith(in, true)

	case OpAnd, OpOr:
		rd, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		a, f := vm.truth(in, 1)
		if f != nil {
			return f
		}
		b, f := vm.truth(in, 2)
		if f != nil {
			return f
		}
		ok := a && b
		if in.Op == OpOr {
			ok = a || b
		}
		// false is stored as an absent value, not 0
		if ok {
			vm.regs.Set(rd, Int(1))
		} else {
			vm.regs.Set(rd, Word{})
		}

	case OpNot:
		rd, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		a, f := vm.truth(in, 1)
		if f != nil {
			return f
		}
		if a {
			vm.regs.Set(rd, Int(0))
		} else {
			vm.regs.Set(rd, Int(1))
		}

	case OpDel:
		addr, f := vm.value(in, 0)
		if f != nil {
			return f
		}
		if err := vm.mem.Free(addr); err != nil {
			return memFault(err)
		}
		vm.release(addr)

	case OpPrint:
		v, f := vm.value(in, 0)
		if f != nil {
			return f
		}
		fmt.Fprintf(vm.out(), "%d\n", v)

	case OpPrintChar:
		v, f := vm.value(in, 0)
		if f != nil {
			return f
		}
		if !utf8.ValidRune(rune(v)) || v != int(rune(v)) {
			return fault(InvalidOperand, fmt.Errorf("%w: %d is not a character", ErrInvalidOperand, v))
		}
		fmt.Fprintf(vm.out(), "%c\n", rune(v))

	case OpBeq:
		a, f := vm.reg(in, 0)
		if f != nil {
			return f
		}
		b, f := vm.reg(in, 1)
		if f != nil {
			return f
		}
		t, f := imm(in, 2)
		if f != nil {
			return f
		}
		if vm.regs.Get(a).Equal(vm.regs.Get(b)) {
			vm.pc = t
		}

	case OpBleq:
		a, f := vm.value(in, 0)
		if f != nil {
			return f
		}
		b, f := vm.value(in, 1)
		if f != nil {
			return f
		}
		t, f := imm(in, 2)
		if f != nil {
			return f
		}
		if a <= b {
			vm.pc = t
		}

	case OpB:
		t, f := imm(in, 0)
		if f != nil {
			return f
		}
		vm.pc = t

	case OpJal:
		t, f := imm(in, 0)
		if f != nil {
			return f
		}
		vm.regs.Set(RA, Int(vm.pc))
		vm.pc = t

	case OpJr:
		t, f := vm.value(in, 0)
		if f != nil {
			return f
		}
		vm.pc = t

	case OpHalt:
		// handled by Step

	default:
		return fault(UnknownOpcode, fmt.Errorf("%w: %s", ErrUnknownOpcode, in.Op))
	}
	return nil
}

// alloc stores w in the lowest free cell and leaves its index in $a0. The
// cell must stay below the stack by the same margin the fetch check demands.
func (vm *VM) alloc(w Word) *Fault {
	sp, err := vm.regs.Value(SP)
	if err != nil {
		return fault(UninitializedRead, err)
	}
	i, err := vm.mem.FirstFree()
	if err != nil {
		return memFault(err)
	}
	if i+1 >= sp {
		return memFault(fmt.Errorf("%w: allocation at %d, sp=%d", ErrCollision, i, sp))
	}
	if err := vm.mem.Write(i, w); err != nil {
		return memFault(err)
	}
	vm.live[i] = true
	if i > vm.heap {
		vm.heap = i
	}
	vm.regs.Set(A0, Int(i))
	return nil
}

// release forgets an allocated address after del and lowers the heap
// frontier to the highest address still allocated.
func (vm *VM) release(addr int) {
	if !vm.live[addr] {
		return
	}
	delete(vm.live, addr)
	if addr != vm.heap {
		return
	}
	vm.heap = -1
	for a := range vm.live {
		if a > vm.heap {
			vm.heap = a
		}
	}
}

func (vm *VM) arith(in Instruction, immediate bool) *Fault {
	rd, f := vm.reg(in, 0)
	if f != nil {
		return f
	}
	a, f := vm.value(in, 1)
	if f != nil {
		return f
	}
	var b int
	if immediate {
		b, f = imm(in, 2)
	} else {
		b, f = vm.value(in, 2)
	}
	if f != nil {
		return f
	}

	// registers hold 32-bit values; results wrap
	var v int32
	x, y := int32(a), int32(b)
	switch in.Op {
	case OpAdd, OpAddi:
		v = x + y
	case OpSub, OpSubi:
		v = x - y
	case OpMul, OpMuli:
		v = x * y
	case OpDiv, OpDivi:
		if b == 0 {
			return fault(DivisionByZero, ErrDivisionByZero)
		}
		v = x / y
	}
	vm.regs.Set(rd, Int(int(v)))
	return nil
}

// truth reports whether the register operand holds exactly 1. An absent
// value is false, since and/or store false as absent.
func (vm *VM) truth(in Instruction, i int) (bool, *Fault) {
	r, f := vm.reg(in, i)
	if f != nil {
		return false, f
	}
	w := vm.regs.Get(r)
	return w.Set && w.V == 1, nil
}
