package structured

import (
	"testing"
)

func TestScopeStatementWrapsFilterAndLimit(t *testing.T) {
	t.Parallel()

	got := scopeStatement("SELECT account_id, amount FROM sales", []string{"acme", "globex"}, 50)
	want := "SELECT * FROM (SELECT account_id, amount FROM sales) AS scoped WHERE scoped.account_id IN ('acme', 'globex') LIMIT 50"
	if got != want {
		t.Fatalf("scopeStatement() = %q, want %q", got, want)
	}
}

func TestScopeStatementNoFilter(t *testing.T) {
	t.Parallel()

	got := scopeStatement("SELECT 1", nil, 10)
	want := "SELECT * FROM (SELECT 1) AS scoped LIMIT 10"
	if got != want {
		t.Fatalf("scopeStatement() = %q, want %q", got, want)
	}
}

func TestScopeStatementEscapesQuotes(t *testing.T) {
	t.Parallel()

	got := scopeStatement("SELECT 1", []string{"o'brien"}, 10)
	want := "SELECT * FROM (SELECT 1) AS scoped WHERE scoped.account_id IN ('o''brien') LIMIT 10"
	if got != want {
		t.Fatalf("scopeStatement() = %q, want %q", got, want)
	}
}

func TestExtractJSONTolerantOfProse(t *testing.T) {
	t.Parallel()

	content := "Here is the query:\n```json\n{\"sql\":\"SELECT 1\"}\n```"
	if got := extractJSON(content); got != `{"sql":"SELECT 1"}` {
		t.Fatalf("extractJSON() = %q", got)
	}
	if got := extractJSON("no json here"); got != "no json here" {
		t.Fatalf("extractJSON() passthrough = %q", got)
	}
}
