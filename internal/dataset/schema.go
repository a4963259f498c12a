package dataset

import (
	"github.com/rotisserie/eris"
)

// ErrInvalidState is returned when the dataset is missing the processed-flag
// column the engine tracks completion with.
var ErrInvalidState = eris.New("dataset: processed-flag column missing")

// SchemaConfig names the columns the engine needs in the caller's dataset.
type SchemaConfig struct {
	IdentifierColumn    string
	NameColumn          string
	ParentColumn        string
	ProcessedColumn     string
	ProcessedDateColumn string
	ContentColumns      []string
}

// Schema holds resolved column positions. Parent is -1 when the dataset has
// no parent-reference column; every record then falls in the Standard group.
type Schema struct {
	Identifier   int
	Name         int
	Parent       int
	Processed    int
	ProcessedAt  int
	Content      []int
	ContentNames []string
}

// Resolve maps the configured column names onto the table. The processed-flag
// column is mandatory; identifier, name, processed-date and all content
// columns must exist as well.
func Resolve(t *Table, cfg SchemaConfig) (*Schema, error) {
	s := &Schema{
		Identifier:  t.ColumnIndex(cfg.IdentifierColumn),
		Name:        t.ColumnIndex(cfg.NameColumn),
		Parent:      t.ColumnIndex(cfg.ParentColumn),
		Processed:   t.ColumnIndex(cfg.ProcessedColumn),
		ProcessedAt: t.ColumnIndex(cfg.ProcessedDateColumn),
	}

	if s.Processed < 0 {
		return nil, eris.Wrapf(ErrInvalidState, "column %q", cfg.ProcessedColumn)
	}
	if s.Identifier < 0 {
		return nil, eris.Errorf("dataset: identifier column %q missing", cfg.IdentifierColumn)
	}
	if s.Name < 0 {
		return nil, eris.Errorf("dataset: name column %q missing", cfg.NameColumn)
	}
	if s.ProcessedAt < 0 {
		return nil, eris.Errorf("dataset: processed-date column %q missing", cfg.ProcessedDateColumn)
	}

	for _, name := range cfg.ContentColumns {
		idx := t.ColumnIndex(name)
		if idx < 0 {
			return nil, eris.Errorf("dataset: content column %q missing", name)
		}
		s.Content = append(s.Content, idx)
		s.ContentNames = append(s.ContentNames, name)
	}

	return s, nil
}

// EnsureTrackingColumns appends the processed-flag and processed-date columns
// when a freshly loaded catalog has never been through an enhancement run.
func EnsureTrackingColumns(t *Table, cfg SchemaConfig) {
	t.EnsureColumn(cfg.ProcessedColumn)
	t.EnsureColumn(cfg.ProcessedDateColumn)
}
