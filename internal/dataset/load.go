package dataset

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Supported CSV encodings. Windows-1250 is what the shop system's legacy
// tooling reads and writes.
const (
	EncodingWindows1250 = "windows-1250"
	EncodingUTF8        = "utf-8"
)

// Load reads a catalog file, picking the parser by extension.
func Load(path, csvEncoding string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(path)
	case ".csv":
		return ReadCSV(path, csvEncoding)
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// Save writes a catalog file, picking the encoder by extension. CSV output
// uses the Windows-1250-first fallback of the checkpoint writer.
func Save(path string, t *Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return WriteXLSX(path, t)
	case ".csv":
		data, _, err := encodeCSVWithFallback(t)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return eris.Wrap(err, "dataset: write csv")
		}
		return nil
	default:
		return eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadXLSX reads the first sheet of an XLSX workbook; the first row is the
// column header.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("dataset: xlsx has no sheets")
	}
	sheet := f.Sheets[0]

	t := &Table{}
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			t.Columns = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}
	if len(t.Columns) == 0 {
		return nil, eris.New("dataset: xlsx header row missing")
	}
	return t, nil
}

// WriteXLSX writes the table to a single-sheet XLSX workbook.
func WriteXLSX(path string, t *Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("catalog")
	if err != nil {
		return eris.Wrap(err, "dataset: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, c := range t.Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range t.Rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "dataset: save xlsx")
	}
	return nil
}

// ReadCSV reads a semicolon-separated catalog in the given encoding; the
// first row is the column header.
func ReadCSV(path, encoding string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close()

	var src io.Reader = f
	if encoding == EncodingWindows1250 {
		src = transform.NewReader(f, charmap.Windows1250.NewDecoder())
	}

	r := csv.NewReader(src)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: parse csv")
	}
	if len(records) == 0 {
		return nil, eris.New("dataset: csv header row missing")
	}

	return &Table{Columns: records[0], Rows: records[1:]}, nil
}

// encodeCSV renders the table as semicolon-separated CSV through the given
// encoder. A nil encoder writes UTF-8. Strict encoding: an unrepresentable
// character fails the encode rather than being silently replaced.
func encodeCSV(t *Table, enc transform.Transformer) ([]byte, error) {
	var buf bytes.Buffer
	var out io.Writer = &buf
	var tw *transform.Writer
	if enc != nil {
		tw = transform.NewWriter(&buf, enc)
		out = tw
	}

	w := csv.NewWriter(out)
	w.Comma = ';'
	if err := w.Write(t.Columns); err != nil {
		return nil, err
	}
	for _, r := range t.Rows {
		row := r
		for len(row) < len(t.Columns) {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// encodeCSVWithFallback encodes Windows-1250 first and falls back to UTF-8
// when the table contains characters outside the legacy code page. Returns
// the encoding actually used.
func encodeCSVWithFallback(t *Table) ([]byte, string, error) {
	data, err := encodeCSV(t, charmap.Windows1250.NewEncoder())
	if err == nil {
		return data, EncodingWindows1250, nil
	}

	data, uerr := encodeCSV(t, nil)
	if uerr != nil {
		return nil, "", eris.Wrap(uerr, "dataset: encode csv")
	}
	return data, EncodingUTF8, nil
}
