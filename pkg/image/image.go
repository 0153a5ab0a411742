// Package image reads and writes SVM program images (.svmb files).
//
// An image is the CBOR encoding, in canonical mode, of an arena size and a
// resolved instruction sequence. Opcodes are stored by mnemonic so that
// images survive renumbering of the opcode table.
package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/svmLang/svm/pkg/svm"
)

const (
	// Magic identifies an SVM image.
	Magic = "SVMB"
	// Version is the current image format version.
	Version = 1
	// Ext is the conventional image file extension.
	Ext = ".svmb"
)

// ErrNotImage is returned for data without the SVM image magic.
var ErrNotImage = errors.New("not an SVM image")

// Image is a loadable program.
type Image struct {
	Magic   string  `cbor:"1,keyasint"`
	Version int     `cbor:"2,keyasint"`
	MemSize int     `cbor:"3,keyasint"`
	Code    []Instr `cbor:"4,keyasint"`
}

// Instr is the stored form of one instruction.
type Instr struct {
	Op     string   `cbor:"1,keyasint"`
	Args   []string `cbor:"2,keyasint,omitempty"`
	Offset int      `cbor:"3,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// New builds an image for code with the given arena size.
func New(memSize int, code []svm.Instruction) *Image {
	img := &Image{
		Magic:   Magic,
		Version: Version,
		MemSize: memSize,
		Code:    make([]Instr, len(code)),
	}
	for i, in := range code {
		n := len(in.Args)
		for n > 0 && in.Args[n-1] == "" {
			n--
		}
		img.Code[i] = Instr{
			Op:     in.Op.String(),
			Args:   append([]string(nil), in.Args[:n]...),
			Offset: in.Offset,
		}
	}
	return img
}

// Instructions returns the program. A mnemonic the VM does not know decodes
// as svm.OpInvalid and faults with UnknownOpcode if it is ever executed.
func (img *Image) Instructions() []svm.Instruction {
	code := make([]svm.Instruction, len(img.Code))
	for i, c := range img.Code {
		in := svm.Instruction{Op: svm.ParseOpcode(c.Op), Offset: c.Offset}
		copy(in.Args[:], c.Args)
		code[i] = in
	}
	return code
}

// Marshal serializes an image to CBOR bytes.
func Marshal(img *Image) ([]byte, error) {
	return encMode.Marshal(img)
}

// Unmarshal deserializes an image and checks its magic and version.
func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrNotImage
	}
	if img.Version != Version {
		return nil, fmt.Errorf("image: unsupported version %d", img.Version)
	}
	for i, c := range img.Code {
		if len(c.Args) > 3 {
			return nil, fmt.Errorf("image: instruction %d has %d operands", i, len(c.Args))
		}
	}
	return &img, nil
}

// ReadFile loads an image from path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// WriteFile stores an image at path.
func WriteFile(path string, img *Image) error {
	data, err := Marshal(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
