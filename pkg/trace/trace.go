// Package trace provides svm.Tracer implementations: a fan-out, a zap step
// logger, and a SQLite store that records runs for later inspection.
package trace

import (
	"go.uber.org/zap"

	"github.com/svmLang/svm/pkg/svm"
)

type multi []svm.Tracer

// Multi returns a tracer that forwards every hook to each non-nil tracer in
// order.
func Multi(ts ...svm.Tracer) svm.Tracer {
	var m multi
	for _, t := range ts {
		if t != nil {
			m = append(m, t)
		}
	}
	return m
}

func (m multi) Begin(vm *svm.VM) {
	for _, t := range m {
		t.Begin(vm)
	}
}

func (m multi) Before(vm *svm.VM, pc int, in svm.Instruction) {
	for _, t := range m {
		t.Before(vm, pc, in)
	}
}

func (m multi) After(vm *svm.VM, pc int, in svm.Instruction) {
	for _, t := range m {
		t.After(vm, pc, in)
	}
}

func (m multi) End(vm *svm.VM, err error) {
	for _, t := range m {
		t.End(vm, err)
	}
}

// Log writes one debug line per executed instruction.
type Log struct {
	log *zap.Logger
}

// NewLog returns a Log writing to logger.
func NewLog(logger *zap.Logger) *Log {
	return &Log{log: logger}
}

func (l *Log) Begin(*svm.VM) {}

func (l *Log) Before(*svm.VM, int, svm.Instruction) {}

func (l *Log) After(vm *svm.VM, pc int, in svm.Instruction) {
	l.log.Debug("step",
		zap.Stringer("run", vm.ID()),
		zap.Int("pc", pc),
		zap.Stringer("instr", in),
		zap.Stringer("sp", vm.Reg(svm.SP)),
		zap.Stringer("hp", vm.Reg(svm.HP)),
		zap.Stringer("a0", vm.Reg(svm.A0)))
}

func (l *Log) End(*svm.VM, error) {}
