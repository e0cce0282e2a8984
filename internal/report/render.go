package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"PageviewsETL/internal/domain"
)

const ruleWidth = 60

// Render writes the ranked list for one hour followed by the highest entry.
func Render(w io.Writer, r domain.Report) error {
	rule := strings.Repeat("=", ruleWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nWIKIPEDIA PAGEVIEWS ANALYSIS\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Target hour: %s\n\n", r.Hour.UTC().Format("January 2, 2006 at 15:04 UTC"))

	for i, row := range r.Ranking {
		fmt.Fprintf(&b, "%d. %s: %s views (%s)\n", i+1, row.Company, humanize.Comma(row.ViewCount), row.PageTitle)
	}

	if top, ok := r.Highest(); ok {
		fmt.Fprintf(&b, "\n%s\n HIGHEST PAGEVIEWS: %s with %s views\n%s\n", rule, top.Company, humanize.Comma(top.ViewCount), rule)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
