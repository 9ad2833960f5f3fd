package directory

import (
	"context"
	"errors"

	"github.com/uptrace/bun"
	contractx "github.com/wiroonsak/accountiq/agent/contract"
)

// accountRow is the canonical account table. Embeddings are precomputed
// offline and stored alongside the display name.
type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID          string    `bun:"id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	Embedding   []float64 `bun:"embedding,array"`
}

// PostgresDirectory reads the canonical account set from Postgres.
type PostgresDirectory struct {
	db bun.IDB
}

var _ contractx.AccountDirectory = (*PostgresDirectory)(nil)

func NewPostgresDirectory(db bun.IDB) (*PostgresDirectory, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	return &PostgresDirectory{db: db}, nil
}

// VisibleAccounts returns every account for admins and only granted
// accounts for members. An empty grant set yields an empty slice, not an
// error.
func (d *PostgresDirectory) VisibleAccounts(ctx context.Context, caller contractx.Caller) ([]contractx.Account, error) {
	q := d.db.NewSelect().Model((*accountRow)(nil)).Order("id ASC")
	if !caller.IsAdmin() {
		if len(caller.AllowedAccounts) == 0 {
			return nil, nil
		}
		q = q.Where("id IN (?)", bun.In(caller.AllowedAccounts))
	}

	var rows []accountRow
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}

	accounts := make([]contractx.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, contractx.Account{
			ID:          row.ID,
			DisplayName: row.DisplayName,
			Embedding:   row.Embedding,
		})
	}
	return accounts, nil
}

// StaticDirectory serves a fixed account set. Used by tests and the demo
// entrypoint when no database is configured.
type StaticDirectory struct {
	accounts []contractx.Account
}

var _ contractx.AccountDirectory = (*StaticDirectory)(nil)

func NewStaticDirectory(accounts []contractx.Account) *StaticDirectory {
	return &StaticDirectory{accounts: accounts}
}

func (d *StaticDirectory) VisibleAccounts(_ context.Context, caller contractx.Caller) ([]contractx.Account, error) {
	if caller.IsAdmin() {
		return append([]contractx.Account(nil), d.accounts...), nil
	}
	granted := make(map[string]bool, len(caller.AllowedAccounts))
	for _, id := range caller.AllowedAccounts {
		granted[id] = true
	}
	var visible []contractx.Account
	for _, acc := range d.accounts {
		if granted[acc.ID] {
			visible = append(visible, acc)
		}
	}
	return visible, nil
}
