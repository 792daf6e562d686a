//go:build integration

package pg

import (
	"context"
	"testing"

	"metarest/internal/module"
	"metarest/internal/query"
	"metarest/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestStoreAgainstPostgres(t *testing.T) {
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("metarest"),
		postgres.WithUsername("metarest"),
		postgres.WithPassword("metarest"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	d := &module.Descriptor{
		Table: "items", Singular: "item", Plural: "items",
		Fields: []module.Field{
			{Name: "name", Type: module.String},
			{Name: "price", Type: module.Number},
		},
		AllFields:      []string{"name", "price"},
		RequiredFields: []string{"name"},
		UniqueFields:   []string{"name"},
		DatabaseFields: []string{"name", "price"},
		AuditFields:    true,
	}
	ddl, err := GenerateDDL([]*module.Descriptor{d})
	require.NoError(t, err)
	require.NoError(t, ApplyDDL(ctx, db, ddl, zerolog.Nop()))
	require.NoError(t, ApplyDDL(ctx, db, ddl, zerolog.Nop()))

	s := NewStore(db)
	row, err := s.Insert(ctx, "items", store.Row{"name": "pen", "price": int64(3)})
	require.NoError(t, err)
	assert.Equal(t, true, row["active"])
	assert.Equal(t, int64(3), row["price"])

	_, err = s.Insert(ctx, "items", store.Row{"name": "pen"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.Insert(ctx, "items", store.Row{"name": "cup", "price": "abc"})
	assert.ErrorIs(t, err, store.ErrInvalidValue)

	upd, err := s.Update(ctx, "items", row.ID(), store.Row{"active": false})
	require.NoError(t, err)
	assert.Equal(t, false, upd["active"])

	n, err := s.Count(ctx, "items", store.Eq("name", "pen"), store.NotEq("id", row.ID()))
	require.NoError(t, err)
	assert.Zero(t, n)

	sel, err := query.Parse("items", map[string][]string{
		"conditions": {`[{"type":"id_match","table":"items","column":"name","value":"pen'; DROP TABLE items; --"}]`},
	})
	require.NoError(t, err)
	rows, err := s.Select(ctx, sel)
	require.NoError(t, err)
	assert.Empty(t, rows)

	all, err := s.Select(ctx, &query.Select{Table: "items"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
