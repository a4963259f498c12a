package variant

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// WriteReport writes a human-readable summary of the detected variant groups.
func WriteReport(path string, groups []Group) error {
	var b strings.Builder

	b.WriteString("PRODUCT VARIANT REPORT\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Groups found: %d\n\n", len(groups))

	for i, g := range groups {
		fmt.Fprintf(&b, "Group %d (parent %s, %d variants)\n", i+1, g.Parent, len(g.Members))
		for _, m := range g.Members {
			marker := "  "
			if m.IsParent {
				marker = "* "
			}
			fmt.Fprintf(&b, "  %s%s | %s\n", marker, m.Identifier, m.Name)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return eris.Wrap(err, "variant: write report")
	}
	return nil
}
