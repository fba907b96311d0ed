package backend

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	sql, args, err := buildSelect(Query{
		Table:   "promotions",
		Filters: []Filter{Eq("status", "approved"), EqFold("store_name", "Loja")},
		Order:   []Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "promotions" WHERE "status" = $1 AND lower("store_name"::text) = lower($2) ORDER BY "created_at" DESC, "id" ASC LIMIT 5`, sql)
	assert.Equal(t, []any{"approved", "Loja"}, args)
}

func TestBuildUpsertMergesOnlyProvidedColumns(t *testing.T) {
	sql, args, err := buildUpsert("promotions", Row{"id": "p1", "is_featured": true}, "id")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "promotions" ("id", "is_featured") VALUES ($1, $2) ON CONFLICT ("id") DO UPDATE SET "is_featured" = EXCLUDED."is_featured" RETURNING *`, sql)
	assert.Equal(t, []any{"p1", true}, args)
}

func TestBuildUpdateNumbersPlaceholdersAfterSet(t *testing.T) {
	sql, args, err := buildUpdate("promotions", []Filter{Eq("id", "p1")}, Row{"status": "approved"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "promotions" SET "status" = $1 WHERE "id" = $2 RETURNING *`, sql)
	assert.Equal(t, []any{"approved", "p1"}, args)

	_, _, err = buildUpdate("promotions", nil, Row{"status": "approved"})
	require.Error(t, err)
}

func TestQuoteIdentRejectsInjection(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
	assert.Equal(t, `"public"."promotions"`, quoteIdent("public.promotions"))
}

func TestNormalizePgValue(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.90"))
	assert.InDelta(t, 12.9, normalizePgValue(n), 0.0001)

	id := [16]byte{0x12, 0x34}
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", normalizePgValue(id))
}
