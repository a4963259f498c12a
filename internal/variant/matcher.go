package variant

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"

	"github.com/gastroline/catalog-cli/internal/dataset"
)

// Config controls variant detection.
type Config struct {
	IdentifierColumn     string
	NameColumn           string
	ParentColumn         string
	ManufacturerColumn   string
	ExcludeManufacturers []string
	SimilarityThreshold  float64 // 0..1, default 0.98
	MinBaseLength        int     // shortest base name considered, default 8
}

// Member is one record inside a variant group.
type Member struct {
	Index      int
	Identifier string
	Name       string
	BaseName   string
	IsParent   bool
}

// Group is a set of records identified as size/dimension variants of one
// product. Parent is the naturally-lowest catalog number in the group.
type Group struct {
	Parent  string
	Members []Member
}

// Matcher identifies product variants by base-name similarity and assigns
// parent catalog numbers so downstream enhancement can treat variant records
// with the dimension-free prompt profile.
type Matcher struct {
	cfg Config
}

// NewMatcher creates a Matcher, applying defaults for unset thresholds.
func NewMatcher(cfg Config) *Matcher {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.98
	}
	if cfg.MinBaseLength <= 0 {
		cfg.MinBaseLength = 8
	}
	return &Matcher{cfg: cfg}
}

var (
	dimsMid    = regexp.MustCompile(`\s+\d+(?:[xX×]\d+)+(?:\s*mm)?(?:\s*cm)?(?:\s*l)?(\s|$)`)
	dimsDash   = regexp.MustCompile(`\s*[-–]\s*\d+(?:[xX×]\d+)*(?:\s*mm)?(?:\s*cm)?(?:\s*l)?`)
	sizeTail   = regexp.MustCompile(`\s*[-–]?\s*\d+(?:[/-]\d+)?(?:\s*[a-zA-Z]+)?(\s|$)`)
	dimsParen  = regexp.MustCompile(`\s*\(\d+(?:[xX×]\d+)*(?:\s*mm)?(?:\s*cm)?(?:\s*l)?\)`)
	multiSpace = regexp.MustCompile(`\s+`)
)

// ExtractBaseName strips dimensions and size designations from a product
// name, leaving the shared base that variants of one product agree on.
func ExtractBaseName(name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		return ""
	}
	base = dimsMid.ReplaceAllString(base, " ")
	base = dimsParen.ReplaceAllString(base, "")
	base = dimsDash.ReplaceAllString(base, "")
	base = sizeTail.ReplaceAllString(base, " ")
	base = multiSpace.ReplaceAllString(base, " ")
	return strings.TrimSpace(base)
}

// Identify finds variant groups among records without a parent reference and
// writes the chosen parent catalog number into the parent column. Records
// already referenced as parents and excluded manufacturers are skipped.
func (m *Matcher) Identify(t *dataset.Table) ([]Group, error) {
	log := zap.L()

	idCol := t.ColumnIndex(m.cfg.IdentifierColumn)
	nameCol := t.ColumnIndex(m.cfg.NameColumn)
	if idCol < 0 || nameCol < 0 {
		log.Warn("variant: identifier or name column missing, skipping detection")
		return nil, nil
	}
	parentCol := t.EnsureColumn(m.cfg.ParentColumn)
	mfrCol := -1
	if m.cfg.ManufacturerColumn != "" {
		mfrCol = t.ColumnIndex(m.cfg.ManufacturerColumn)
	}

	// Catalog numbers already used as parents stay out of new groups to
	// avoid circular references.
	usedAsParent := map[string]bool{}
	for i := range t.Rows {
		if p := strings.TrimSpace(t.Cell(i, parentCol)); p != "" {
			usedAsParent[p] = true
		}
	}

	type candidate struct {
		idx  int
		id   string
		name string
		base string
	}
	var cands []candidate
	for i := range t.Rows {
		if strings.TrimSpace(t.Cell(i, parentCol)) != "" {
			continue
		}
		id := strings.TrimSpace(t.Cell(i, idCol))
		if id == "" || usedAsParent[id] {
			continue
		}
		if mfrCol >= 0 && m.excludedManufacturer(t.Cell(i, mfrCol)) {
			continue
		}
		base := ExtractBaseName(t.Cell(i, nameCol))
		if len([]rune(base)) < m.cfg.MinBaseLength {
			continue
		}
		cands = append(cands, candidate{idx: i, id: id, name: t.Cell(i, nameCol), base: base})
	}

	log.Info("variant: analyzing products", zap.Int("candidates", len(cands)))

	grouped := make([]bool, len(cands))
	var groups []Group

	for i := range cands {
		if grouped[i] {
			continue
		}
		members := []Member{{
			Index:      cands[i].idx,
			Identifier: cands[i].id,
			Name:       cands[i].name,
			BaseName:   cands[i].base,
		}}
		grouped[i] = true

		for j := i + 1; j < len(cands); j++ {
			if grouped[j] {
				continue
			}
			if !lengthsComparable(cands[i].base, cands[j].base) {
				continue
			}
			sim := levenshtein.Similarity(cands[i].base, cands[j].base, nil)
			if sim > m.cfg.SimilarityThreshold {
				members = append(members, Member{
					Index:      cands[j].idx,
					Identifier: cands[j].id,
					Name:       cands[j].name,
					BaseName:   cands[j].base,
				})
				grouped[j] = true
			}
		}

		if len(members) < 2 {
			continue
		}

		parent := members[0].Identifier
		for _, mem := range members[1:] {
			if naturalLess(mem.Identifier, parent) {
				parent = mem.Identifier
			}
		}
		for k := range members {
			members[k].IsParent = members[k].Identifier == parent
			t.SetCell(members[k].Index, parentCol, parent)
		}

		groups = append(groups, Group{Parent: parent, Members: members})
	}

	variants := 0
	for _, g := range groups {
		variants += len(g.Members)
	}
	log.Info("variant: detection complete",
		zap.Int("groups", len(groups)),
		zap.Int("variants", variants),
	)

	return groups, nil
}

func (m *Matcher) excludedManufacturer(mfr string) bool {
	for _, ex := range m.cfg.ExcludeManufacturers {
		if strings.Contains(strings.ToLower(mfr), strings.ToLower(ex)) {
			return true
		}
	}
	return false
}

// lengthsComparable rejects pairs whose base names differ in length by more
// than half; they cannot be variants of the same product.
func lengthsComparable(a, b string) bool {
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return false
	}
	shorter, longer := la, lb
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	return float64(shorter)/float64(longer) >= 0.5
}

// naturalLess compares catalog numbers so that "A2" sorts before "A10".
func naturalLess(a, b string) bool {
	ta, tb := splitNatural(a), splitNatural(b)
	for i := 0; i < len(ta) && i < len(tb); i++ {
		if ta[i] == tb[i] {
			continue
		}
		na, aerr := strconv.Atoi(ta[i])
		nb, berr := strconv.Atoi(tb[i])
		if aerr == nil && berr == nil {
			return na < nb
		}
		return ta[i] < tb[i]
	}
	return len(ta) < len(tb)
}

var naturalSplit = regexp.MustCompile(`\d+|\D+`)

func splitNatural(s string) []string {
	return naturalSplit.FindAllString(strings.ToLower(s), -1)
}
