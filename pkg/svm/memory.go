package svm

// Cell is one arena slot. A cell that is not Live is free; its Value is
// whatever was last written there.
type Cell struct {
	Value Word
	Live  bool
}

func (c Cell) String() string {
	pad := ""
	if c.Value.Set && c.Value.V >= 0 {
		pad = " "
	}
	return "| " + pad + c.Value.String() + "\t|"
}

// Memory is the fixed-size arena shared by the heap and the stack.
type Memory struct {
	cells []Cell
}

// NewMemory returns an arena of size free cells.
func NewMemory(size int) *Memory {
	if size < 0 {
		size = 0
	}
	return &Memory{cells: make([]Cell, size)}
}

// Size returns the number of cells.
func (m *Memory) Size() int { return len(m.cells) }

func (m *Memory) check(i int) error {
	if i < 0 || i >= len(m.cells) {
		return &MemoryError{Kind: OutOfRange, Index: i, Size: len(m.cells)}
	}
	return nil
}

// Cell returns a copy of the cell at i.
func (m *Memory) Cell(i int) (Cell, error) {
	if err := m.check(i); err != nil {
		return Cell{}, err
	}
	return m.cells[i], nil
}

// Read returns the value at i. Reading a free cell, or a live cell that was
// written with an absent value, is an UninitializedRead.
func (m *Memory) Read(i int) (int, error) {
	if err := m.check(i); err != nil {
		return 0, err
	}
	c := m.cells[i]
	if !c.Live || !c.Value.Set {
		return 0, &MemoryError{Kind: UninitializedRead, Index: i, Size: len(m.cells)}
	}
	return c.Value.V, nil
}

// Write stores w at i and marks the cell live.
func (m *Memory) Write(i int, w Word) error {
	if err := m.check(i); err != nil {
		return err
	}
	m.cells[i] = Cell{Value: w, Live: true}
	return nil
}

// Free marks the cell at i free. The stored value is left in place.
func (m *Memory) Free(i int) error {
	if err := m.check(i); err != nil {
		return err
	}
	m.cells[i].Live = false
	return nil
}

// FirstFree returns the lowest index whose cell is free.
func (m *Memory) FirstFree() (int, error) {
	for i, c := range m.cells {
		if !c.Live {
			return i, nil
		}
	}
	return 0, &MemoryError{Kind: OutOfRange, Index: len(m.cells), Size: len(m.cells)}
}
