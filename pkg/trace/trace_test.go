package trace

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/svmLang/svm/pkg/svm"
)

func newVM(size int, code ...svm.Instruction) *svm.VM {
	vm := svm.New(size, code)
	vm.Output = &bytes.Buffer{}
	vm.Diag = &bytes.Buffer{}
	return vm
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type counter struct{ begin, before, after, end int }

func (c *counter) Begin(*svm.VM) { c.begin++ }
func (c *counter) Before(*svm.VM, int, svm.Instruction) { c.before++ }
func (c *counter) After(*svm.VM, int, svm.Instruction) { c.after++ }
func (c *counter) End(*svm.VM, error) { c.end++ }

func TestMulti(t *testing.T) {
	a, b := &counter{}, &counter{}
	vm := newVM(8,
		svm.Instr(svm.OpLi, "$t1", "1"),
		svm.Instr(svm.OpHalt))
	vm.Tracer = Multi(a, nil, b)
	require.NoError(t, vm.Run())

	for _, c := range []*counter{a, b} {
		assert.Equal(t, counter{begin: 1, before: 2, after: 2, end: 1}, *c)
	}
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	vm := newVM(8,
		svm.Instr(svm.OpLi, "$a0", "7"),
		svm.Instr(svm.OpHalt))
	vm.Tracer = NewLog(zap.New(core))
	require.NoError(t, vm.Run())

	steps := logs.FilterMessage("step").All()
	require.Len(t, steps, 2)
	ctx := steps[0].ContextMap()
	assert.Equal(t, int64(0), ctx["pc"])
	assert.Equal(t, "li $a0 7", ctx["instr"])
	assert.Equal(t, "7", ctx["a0"])
	assert.Equal(t, vm.ID().String(), ctx["run"])
}

func TestRecorderHalted(t *testing.T) {
	s := openStore(t)
	vm := newVM(16,
		svm.Instr(svm.OpLi, "$t1", "5"),
		svm.Instr(svm.OpPush, "$t1"),
		svm.Mem(svm.OpSw, "$t1", 0, "$hp"),
		svm.Instr(svm.OpHalt))
	rec := s.Recorder()
	vm.Tracer = rec
	require.NoError(t, vm.Run())
	require.NoError(t, rec.Err())

	run, err := s.Run(vm.ID())
	require.NoError(t, err)
	assert.Equal(t, OutcomeHalted, run.Outcome)
	assert.Empty(t, run.FaultKind)
	assert.Equal(t, 16, run.MemSize)
	assert.Equal(t, 4, run.CodeLen)
	assert.Equal(t, 4, run.Steps)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	steps, err := s.Steps(vm.ID())
	require.NoError(t, err)
	require.Len(t, steps, 4)
	assert.Equal(t, StepRecord{Seq: 0, PC: 0, Op: "li", SP: svm.Int(16), HP: svm.Int(0), A0: svm.Word{}}, steps[0])
	assert.Equal(t, svm.Int(15), steps[1].SP)
	assert.Equal(t, "sw", steps[2].Op)
	assert.Equal(t, svm.Int(0), steps[2].A0)
	assert.Equal(t, "halt", steps[3].Op)
}

func TestRecorderFaulted(t *testing.T) {
	s := openStore(t)
	vm := newVM(8,
		svm.Instr(svm.OpLi, "$t1", "1"),
		svm.Instr(svm.OpDivi, "$t1", "$t1", "0"),
		svm.Instr(svm.OpHalt))
	rec := s.Recorder()
	vm.Tracer = rec
	require.ErrorIs(t, vm.Run(), svm.ErrDivisionByZero)
	require.NoError(t, rec.Err())

	run, err := s.Run(vm.ID())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFaulted, run.Outcome)
	assert.Equal(t, "DivisionByZero", run.FaultKind)
	assert.Equal(t, 2, run.Steps)

	steps, err := s.Steps(vm.ID())
	require.NoError(t, err)
	assert.Len(t, steps, 1, "the faulting instruction is not recorded as a step")
}

func TestStoreKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := Open(path)
	require.NoError(t, err)

	vm := newVM(8, svm.Instr(svm.OpHalt))
	vm.Tracer = s.Recorder()
	require.NoError(t, vm.Run())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	run, err := s.Run(vm.ID())
	require.NoError(t, err)
	assert.Equal(t, OutcomeHalted, run.Outcome)
}

func TestRunNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Run(uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)

	steps, err := s.Steps(uuid.New())
	require.NoError(t, err)
	assert.Empty(t, steps)
}
