package enhance

import (
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/gastroline/catalog-cli/internal/dataset"
	"github.com/gastroline/catalog-cli/internal/model"
)

// Match pairs one service result with the dataset row it belongs to.
type Match struct {
	Row    int
	Result model.EnhancementResult
}

// ReconcileOutcome reports which scope rows matched a result and which did
// not. Unmatched rows keep their processed flag clear and stay eligible for
// a future run.
type ReconcileOutcome struct {
	Matches       []Match
	UnmatchedRows []int
}

// Reconciler maps untrusted service results back onto dataset rows. Matching
// is restricted to the batch's own scope; a result can never touch a row
// outside the batch it came from, and each row is claimed at most once.
type Reconciler struct {
	threshold float64 // 0..100 similarity percentage
}

// NewReconciler creates a Reconciler with the given fuzzy-match threshold.
func NewReconciler(threshold float64) *Reconciler {
	if threshold <= 0 {
		threshold = 85
	}
	return &Reconciler{threshold: threshold}
}

// Reconcile matches results to scope rows in three tiers: exact identifier,
// fuzzy identifier, then fuzzy product name. Results that match nothing are
// dropped with a warning.
func (r *Reconciler) Reconcile(t *dataset.Table, s *dataset.Schema, batch model.Batch, results []model.EnhancementResult) ReconcileOutcome {
	log := zap.L().With(zap.Int("batch", batch.Seq))

	claimed := make(map[int]bool, len(batch.Scope))

	var matches []Match
	for _, res := range results {
		row, ok := r.matchRow(t, s, batch.Scope, claimed, res, log)
		if !ok {
			log.Warn("result matched no record in batch scope",
				zap.String("identifier", res.Identifier),
				zap.String("name", res.Name),
			)
			continue
		}
		claimed[row] = true
		matches = append(matches, Match{Row: row, Result: res})
	}

	var unmatched []int
	for _, row := range batch.Scope {
		if !claimed[row] {
			unmatched = append(unmatched, row)
		}
	}

	return ReconcileOutcome{Matches: matches, UnmatchedRows: unmatched}
}

func (r *Reconciler) matchRow(t *dataset.Table, s *dataset.Schema, scope []int, claimed map[int]bool, res model.EnhancementResult, log *zap.Logger) (int, bool) {
	// Tier 1: exact identifier. Duplicates within the scope resolve to the
	// first row in original dataset order.
	first := -1
	dupes := 0
	for _, row := range scope {
		if claimed[row] {
			continue
		}
		if strings.TrimSpace(t.Cell(row, s.Identifier)) == res.Identifier && res.Identifier != "" {
			if first < 0 {
				first = row
			}
			dupes++
		}
	}
	if first >= 0 {
		if dupes > 1 {
			log.Warn("duplicate identifiers in batch scope, matching first occurrence",
				zap.String("identifier", res.Identifier),
				zap.Int("occurrences", dupes),
			)
		}
		return first, true
	}

	// Tier 2: fuzzy identifier.
	if row, ok := r.bestFuzzy(scope, claimed, res.Identifier, func(row int) string {
		return t.Cell(row, s.Identifier)
	}, "identifier", log); ok {
		return row, true
	}

	// Tier 3: fuzzy product name.
	return r.bestFuzzy(scope, claimed, res.Name, func(row int) string {
		return t.Cell(row, s.Name)
	}, "name", log)
}

// bestFuzzy finds the unclaimed scope row whose field is most similar to
// want. Ties resolve to the earliest row. A close runner-up is logged since
// it usually means the batch contains near-identical records.
func (r *Reconciler) bestFuzzy(scope []int, claimed map[int]bool, want string, field func(int) string, fieldName string, log *zap.Logger) (int, bool) {
	if strings.TrimSpace(want) == "" {
		return 0, false
	}

	best, bestRow := -1.0, -1
	runnerUp := -1.0
	for _, row := range scope {
		if claimed[row] {
			continue
		}
		score := similarity(want, field(row))
		if score > best {
			runnerUp = best
			best, bestRow = score, row
		} else if score > runnerUp {
			runnerUp = score
		}
	}

	if bestRow < 0 || best < r.threshold {
		return 0, false
	}
	if runnerUp >= 0 && best-runnerUp < 5 {
		log.Warn("ambiguous fuzzy match",
			zap.String("field", fieldName),
			zap.String("wanted", want),
			zap.Float64("best", best),
			zap.Float64("runner_up", runnerUp),
		)
	}
	return bestRow, true
}

func similarity(a, b string) float64 {
	return levenshtein.Similarity(strings.ToLower(a), strings.ToLower(b), nil) * 100
}
