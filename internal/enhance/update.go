package enhance

import (
	"time"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/model"
)

const processedTimeFormat = "2006-01-02 15:04:05"

// ApplyResult writes a matched result into its dataset row cell by cell.
// Only the schema's content columns are written; keys the service invented
// are ignored, and content columns the service omitted keep their old value.
// The processed flag and date are set last, after all content writes.
func ApplyResult(t *dataset.Table, s *dataset.Schema, row int, res model.EnhancementResult, now time.Time) {
	for i, col := range s.Content {
		if val, ok := res.Content[s.ContentNames[i]]; ok {
			t.SetCell(row, col, val)
		}
	}
	t.SetCell(row, s.Processed, "1")
	t.SetCell(row, s.ProcessedAt, now.Format(processedTimeFormat))
}
