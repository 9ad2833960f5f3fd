package composer

import (
	"fmt"
	"sort"
	"strings"

	planx "github.com/wiroonsak/accountiq/agent/plan"
)

const (
	noDataMessage          = "No data found for this query."
	noRelationshipsMessage = "No relationships or documents found."
)

type Config struct {
	MaxRows int `envconfig:"MAX_ROWS" split_words:"true" default:"10"`
}

// Composer renders completed step results into a natural-language answer
// with citations. It never fails; malformed sections degrade to an
// explanatory sentence.
type Composer struct {
	maxRows int
}

func New(cfg Config) *Composer {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 10
	}
	return &Composer{maxRows: maxRows}
}

// Compose merges the completed results for one plan. For hybrid plans both
// sections appear under separate headings and the citation lists are
// concatenated, so hybrid citation count equals the sum of the parts.
func (c *Composer) Compose(planType planx.Type, results []planx.Result) (string, []planx.Citation) {
	var sections []string
	var citations []planx.Citation

	hybrid := planType == planx.TypeHybrid

	for _, res := range results {
		switch r := res.(type) {
		case *planx.StructuredResult:
			text, cits := c.composeStructured(r)
			if hybrid {
				text = "## Business Data\n" + text
			}
			sections = append(sections, text)
			citations = append(citations, cits...)
		case *planx.RelationshipResult:
			text, cits := c.composeRelationship(r)
			if hybrid {
				text = "## Relationships & Documents\n" + text
			}
			sections = append(sections, text)
			citations = append(citations, cits...)
		case *planx.ResolutionResult:
			if r != nil && r.DisplayName != "" {
				sections = append(sections, fmt.Sprintf("Resolved account: %s.", r.DisplayName))
			}
		case *planx.ComposedResult:
			if r != nil && r.Text != "" {
				sections = append(sections, r.Text)
				citations = append(citations, r.Citations...)
			}
		default:
			// Unknown result shapes are omitted rather than raised.
		}
	}

	if len(sections) == 0 {
		return "I wasn't able to find any data for that request.", citations
	}
	return strings.Join(sections, "\n\n"), citations
}

func (c *Composer) composeStructured(r *planx.StructuredResult) (string, []planx.Citation) {
	if r == nil || len(r.Rows) == 0 {
		return noDataMessage, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d record(s):\n", len(r.Rows))
	shown := len(r.Rows)
	if shown > c.maxRows {
		shown = c.maxRows
	}
	for _, row := range r.Rows[:shown] {
		b.WriteString("- ")
		b.WriteString(renderRow(row))
		b.WriteString("\n")
	}
	if remaining := len(r.Rows) - shown; remaining > 0 {
		fmt.Fprintf(&b, "(%d more row(s) not shown)\n", remaining)
	}

	source := r.QueryUsed
	if source == "" {
		source = "structured data query"
	}
	cit := planx.Citation{
		Kind:   "table",
		Source: source,
		Detail: strings.Join(r.Tables, ", "),
	}
	return strings.TrimRight(b.String(), "\n"), []planx.Citation{cit}
}

func (c *Composer) composeRelationship(r *planx.RelationshipResult) (string, []planx.Citation) {
	if r == nil || (len(r.Relationships) == 0 && len(r.Documents) == 0) {
		return noRelationshipsMessage, nil
	}

	var b strings.Builder
	var citations []planx.Citation

	if len(r.Relationships) > 0 {
		fmt.Fprintf(&b, "Found %d relationship(s):\n", len(r.Relationships))
		for _, rel := range r.Relationships {
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", rel.From, rel.Kind, rel.To)
			source := rel.Source
			if source == "" {
				source = r.QueryUsed
			}
			citations = append(citations, planx.Citation{
				Kind:   "relationship",
				Source: source,
				Detail: fmt.Sprintf("%s %s %s", rel.From, rel.Kind, rel.To),
			})
		}
	}
	if len(r.Documents) > 0 {
		fmt.Fprintf(&b, "Referenced %d document(s):\n", len(r.Documents))
		for _, doc := range r.Documents {
			fmt.Fprintf(&b, "- %s\n", doc.Title)
			citations = append(citations, planx.Citation{
				Kind:   "document",
				Source: doc.ID,
				Detail: doc.Title,
			})
		}
	}

	return strings.TrimRight(b.String(), "\n"), citations
}

func renderRow(row map[string]any) string {
	if len(row) == 0 {
		return "(empty row)"
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}
