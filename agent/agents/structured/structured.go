package structured

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
	planx "github.com/wiroonsak/accountiq/agent/plan"
)

const AgentName = "structured_data"

type Config struct {
	MaxRows int `envconfig:"MAX_ROWS" split_words:"true" default:"50"`
}

// Agent turns a natural-language query into SQL via the LLM and executes
// it against Postgres. The access filter from the gate is enforced by
// wrapping the generated statement, not by trusting the model to scope
// itself.
type Agent struct {
	db        bun.IDB
	completer contractx.Completer
	prompt    string
	maxRows   int
}

var _ contractx.AgentAdapter = (*Agent)(nil)

func New(db bun.IDB, completer contractx.Completer, prompt string, cfg Config) (*Agent, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Agent{
		db:        db,
		completer: completer,
		prompt:    strings.TrimSpace(prompt),
		maxRows:   maxRows,
	}, nil
}

func (a *Agent) Name() string {
	return AgentName
}

type sqlGenOutput struct {
	SQL    string   `json:"sql"`
	Tables []string `json:"tables,omitempty"`
}

func (a *Agent) Query(ctx context.Context, req contractx.AgentRequest) (planx.Result, error) {
	gen, err := a.generateSQL(ctx, req)
	if err != nil {
		return nil, err
	}

	stmt := scopeStatement(gen.SQL, req.FilterAccounts, a.maxRows)

	rows, err := a.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("execute generated query: %w", err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan query rows: %w", err)
	}

	return &planx.StructuredResult{
		Rows:      records,
		QueryUsed: stmt,
		Tables:    gen.Tables,
	}, nil
}

func (a *Agent) generateSQL(ctx context.Context, req contractx.AgentRequest) (sqlGenOutput, error) {
	payload := map[string]any{
		"query":       req.Query,
		"account_ids": req.AccountIDs,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return sqlGenOutput{}, fmt.Errorf("%w: marshal sqlgen payload: %v", contractx.ErrValidation, err)
	}

	resp, err := a.completer.Complete(ctx, []contractx.Message{
		{Role: "system", Content: a.prompt},
		{Role: "user", Content: string(input)},
	})
	if err != nil {
		return sqlGenOutput{}, fmt.Errorf("%w: sqlgen invoke: %v", contractx.ErrModelInvoke, err)
	}

	var out sqlGenOutput
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
		return sqlGenOutput{}, fmt.Errorf("%w: sqlgen output is not json: %v", contractx.ErrSchemaViolation, err)
	}

	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(out.SQL), ";"))
	if stmt == "" {
		return sqlGenOutput{}, fmt.Errorf("%w: sqlgen returned empty sql", contractx.ErrSchemaViolation)
	}
	if !strings.HasPrefix(strings.ToUpper(stmt), "SELECT") {
		return sqlGenOutput{}, fmt.Errorf("%w: only SELECT statements are allowed", contractx.ErrSchemaViolation)
	}
	out.SQL = stmt
	return out, nil
}

// scopeStatement wraps the generated SELECT so the gate's account filter
// and the row cap hold no matter what the model produced.
func scopeStatement(stmt string, filterAccounts []string, maxRows int) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM (")
	b.WriteString(stmt)
	b.WriteString(") AS scoped")
	if len(filterAccounts) > 0 {
		quoted := make([]string, 0, len(filterAccounts))
		for _, id := range filterAccounts {
			quoted = append(quoted, "'"+strings.ReplaceAll(id, "'", "''")+"'")
		}
		fmt.Fprintf(&b, " WHERE scoped.account_id IN (%s)", strings.Join(quoted, ", "))
	}
	fmt.Fprintf(&b, " LIMIT %d", maxRows)
	return b.String()
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if raw, ok := v.([]byte); ok {
				v = string(raw)
			}
			record[col] = v
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "{"); start >= 0 {
		if end := strings.LastIndex(content, "}"); end > start {
			return content[start : end+1]
		}
	}
	return content
}
