package plan

// Result is the tagged union of step outputs. The composer type-switches
// over the concrete kinds instead of probing loosely-typed maps.
type Result interface {
	resultKind() string
}

// StructuredResult is the output of the structured-data agent.
type StructuredResult struct {
	Rows      []map[string]any `json:"rows,omitempty"`
	QueryUsed string           `json:"query_used,omitempty"`
	Tables    []string         `json:"tables,omitempty"`
}

func (*StructuredResult) resultKind() string { return "structured" }

// RelationshipResult is the output of the relationship-graph agent.
type RelationshipResult struct {
	Relationships []Relationship `json:"relationships,omitempty"`
	Documents     []Document     `json:"documents,omitempty"`
	QueryUsed     string         `json:"query_used,omitempty"`
}

func (*RelationshipResult) resultKind() string { return "relationship" }

type Relationship struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// ResolutionResult is the output of an identity-resolution step.
type ResolutionResult struct {
	AccountID              string             `json:"account_id,omitempty"`
	DisplayName            string             `json:"display_name,omitempty"`
	Score                  float64            `json:"score"`
	RequiresDisambiguation bool               `json:"requires_disambiguation,omitempty"`
	Candidates             []AccountCandidate `json:"candidates,omitempty"`
}

func (*ResolutionResult) resultKind() string { return "resolution" }

// ComposedResult is the output of a result-merge step.
type ComposedResult struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

func (*ComposedResult) resultKind() string { return "composed" }

// Citation points an answer fragment back at the data source that grounded it.
type Citation struct {
	Kind   string `json:"kind"` // "table" | "relationship" | "document"
	Source string `json:"source"`
	Detail string `json:"detail,omitempty"`
}
