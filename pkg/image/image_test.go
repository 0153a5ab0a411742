package image

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmLang/svm/pkg/svm"
)

var program = []svm.Instruction{
	svm.Instr(svm.OpLi, "$t1", "72"),
	svm.Instr(svm.OpPrintChar, "$t1"),
	svm.Mem(svm.OpSw, "$t1", 0, "$hp"),
	svm.Mem(svm.OpLw, "$a0", -1, "$sp"),
	svm.Instr(svm.OpBeq, "$a0", "$t1", "0"),
	svm.Instr(svm.OpHalt),
}

func TestImageKeepsProgram(t *testing.T) {
	data, err := Marshal(New(128, program))
	require.NoError(t, err)

	img, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, 128, img.MemSize)
	assert.Equal(t, program, img.Instructions())
}

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := Marshal(New(64, program))
	require.NoError(t, err)
	b, err := Marshal(New(64, program))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b))
}

func TestUnmarshalRejects(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := Unmarshal([]byte("li $t1 5\n"))
		assert.Error(t, err)
	})

	t.Run("wrong magic", func(t *testing.T) {
		img := New(8, program)
		img.Magic = "ELF"
		data, err := Marshal(img)
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorIs(t, err, ErrNotImage)
	})

	t.Run("future version", func(t *testing.T) {
		img := New(8, program)
		img.Version = Version + 1
		data, err := Marshal(img)
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorContains(t, err, "unsupported version")
	})

	t.Run("too many operands", func(t *testing.T) {
		img := New(8, program)
		img.Code[0].Args = []string{"a", "b", "c", "d"}
		data, err := cbor.Marshal(img)
		require.NoError(t, err)
		_, err = Unmarshal(data)
		assert.ErrorContains(t, err, "4 operands")
	})
}

func TestUnknownMnemonicFaultsAtRun(t *testing.T) {
	img := New(8, []svm.Instruction{svm.Instr(svm.OpHalt)})
	img.Code = append([]Instr{{Op: "frobnicate"}}, img.Code...)
	data, err := Marshal(img)
	require.NoError(t, err)

	loaded, err := Unmarshal(data)
	require.NoError(t, err)
	vm := svm.New(loaded.MemSize, loaded.Instructions())
	assert.ErrorIs(t, vm.Run(), svm.ErrUnknownOpcode)
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog"+Ext)
	require.NoError(t, WriteFile(path, New(32, program)))

	img, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, program, img.Instructions())

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"+Ext))
	assert.Error(t, err)
}
