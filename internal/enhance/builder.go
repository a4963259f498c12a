package enhance

import (
	"strings"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/model"
)

// BuildBatches partitions the eligible rows by policy group and slices each
// group into batches of at most batchSize records, preserving dataset order
// within a group. A record is a variant when it references a parent catalog
// number or is referenced as a parent by any record in the dataset.
func BuildBatches(t *dataset.Table, s *dataset.Schema, eligible []int, batchSize int) []model.Batch {
	if batchSize < 1 {
		batchSize = 1
	}

	// Parent references are collected from the whole table, not just the
	// eligible rows: a parent that was already processed still tags its
	// unprocessed siblings as variants.
	parentRefs := map[string]bool{}
	if s.Parent >= 0 {
		for i := range t.Rows {
			if p := strings.TrimSpace(t.Cell(i, s.Parent)); p != "" {
				parentRefs[p] = true
			}
		}
	}

	var variant, standard []int
	for _, row := range eligible {
		if isVariant(t, s, row, parentRefs) {
			variant = append(variant, row)
		} else {
			standard = append(standard, row)
		}
	}

	var batches []model.Batch
	seq := 0
	for _, group := range []struct {
		rows []int
		tag  model.GroupTag
	}{
		{variant, model.GroupVariant},
		{standard, model.GroupStandard},
	} {
		for start := 0; start < len(group.rows); start += batchSize {
			end := start + batchSize
			if end > len(group.rows) {
				end = len(group.rows)
			}
			scope := group.rows[start:end]

			items := make([]model.Item, 0, len(scope))
			for _, row := range scope {
				items = append(items, buildItem(t, s, row))
			}

			batches = append(batches, model.Batch{
				Seq:     seq,
				Items:   items,
				Scope:   append([]int(nil), scope...),
				Profile: model.ProfileFor(group.tag),
			})
			seq++
		}
	}
	return batches
}

func isVariant(t *dataset.Table, s *dataset.Schema, row int, parentRefs map[string]bool) bool {
	if s.Parent < 0 {
		return false
	}
	if strings.TrimSpace(t.Cell(row, s.Parent)) != "" {
		return true
	}
	id := strings.TrimSpace(t.Cell(row, s.Identifier))
	return id != "" && parentRefs[id]
}

func buildItem(t *dataset.Table, s *dataset.Schema, row int) model.Item {
	content := make(map[string]string, len(s.Content))
	for i, col := range s.Content {
		content[s.ContentNames[i]] = t.Cell(row, col)
	}
	return model.Item{
		Identifier: strings.TrimSpace(t.Cell(row, s.Identifier)),
		Name:       t.Cell(row, s.Name),
		Content:    content,
	}
}
