package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrich/internal/enrichment/provider"
	"enrich/internal/model"
)

func TestSQLQueryEnrichmentLooksUpRealRow(t *testing.T) {
	infra := SetupPostgres(t, "../../migrations/postgres")
	seedAccountTierTable(t, infra.PostgresDB)

	enr := provider.NewSQLQueryEnrichment(
		"account_tier",
		"iglu:com.enrich/account_tier/jsonschema/1-0-0",
		`SELECT row_to_json(t) FROM (SELECT tier FROM account_tier WHERE account_id = $1) t`,
		"account_id",
		infra.PostgresDB,
	)

	raw := model.RawEvent{Parameters: map[string]string{"account_id": "acct-1"}}
	result, failure := enr.Run(context.Background(), raw, &model.EnrichedEvent{})
	require.Nil(t, failure)
	require.Len(t, result.Contexts, 1)

	var data map[string]string
	require.NoError(t, json.Unmarshal(result.Contexts[0].Data, &data))
	assert.Equal(t, "gold", data["tier"])
	assert.Equal(t, "iglu:com.enrich/account_tier/jsonschema/1-0-0", result.Contexts[0].Schema)
}

func TestSQLQueryEnrichmentMissingRowReturnsEmptyResult(t *testing.T) {
	infra := SetupPostgres(t, "../../migrations/postgres")
	seedAccountTierTable(t, infra.PostgresDB)

	enr := provider.NewSQLQueryEnrichment(
		"account_tier",
		"iglu:com.enrich/account_tier/jsonschema/1-0-0",
		`SELECT row_to_json(t) FROM (SELECT tier FROM account_tier WHERE account_id = $1) t`,
		"account_id",
		infra.PostgresDB,
	)

	raw := model.RawEvent{Parameters: map[string]string{"account_id": "no-such-account"}}
	result, failure := enr.Run(context.Background(), raw, &model.EnrichedEvent{})
	require.Nil(t, failure)
	assert.Empty(t, result.Contexts)
}

func TestRunPostgresMigrationsCreatesRegistryAudit(t *testing.T) {
	infra := SetupPostgres(t, "../../migrations/postgres")

	var exists bool
	err := infra.PostgresDB.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'registry_audit')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}
