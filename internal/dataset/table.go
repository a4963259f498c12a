package dataset

// Table is the working dataset: ordered rows under a caller-owned column
// schema. The engine only touches the columns named in its Schema; everything
// else rides along untouched.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col); short rows read as empty cells.
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}

// SetCell writes a single cell, padding the row if the dataset came from a
// source with ragged rows.
func (t *Table) SetCell(row, col int, val string) {
	r := t.Rows[row]
	for len(r) <= col {
		r = append(r, "")
	}
	r[col] = val
	t.Rows[row] = r
}

// EnsureColumn returns the index of the named column, appending it (and
// padding existing rows) when absent.
func (t *Table) EnsureColumn(name string) int {
	if i := t.ColumnIndex(name); i >= 0 {
		return i
	}
	t.Columns = append(t.Columns, name)
	return len(t.Columns) - 1
}

// Clone returns a deep copy. Checkpoint snapshots encode the copy so the
// working dataset is never mutated while being persisted.
func (t *Table) Clone() *Table {
	cp := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		cp.Rows[i] = append([]string(nil), r...)
	}
	return cp
}
