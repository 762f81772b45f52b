//go:build integration

package integration

import (
	"context"
	"testing"

	"salesql/internal/assistant"
	"salesql/internal/salesmodel"
	"salesql/internal/serverapp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPipeline(t *testing.T, args ...string) *serverapp.Pipeline {
	t.Helper()
	s := requireStack(t)
	cfg := loadConfig(t, s, args...)

	db, err := serverapp.OpenDatabase(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p, err := serverapp.BuildPipeline(cfg, testLogger(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func ask(t *testing.T, p *serverapp.Pipeline, req assistant.Request) assistant.Response {
	t.Helper()
	return p.Assistant.Ask(context.Background(), req)
}

func TestAsk_TotalWithProductEntity(t *testing.T) {
	p := buildPipeline(t)

	resp := ask(t, p, assistant.Request{Question: "total sales of bhujia", Route: salesmodel.RoutePrimary})

	require.Equal(t, assistant.OutcomeAnswered, resp.Outcome, resp.Answer)
	assert.Equal(t, "total", resp.Intent)
	assert.Equal(t, "tbl_primary", resp.FactTable)
	assert.Contains(t, resp.SQL, "ILIKE '%bhujia%'")
	assert.Equal(t, "25", resp.Answer)

	var values []string
	for _, m := range resp.Entities {
		values = append(values, m.Value)
	}
	assert.Contains(t, values, "Aloo Bhujia 200g")
}

func TestAsk_TopDistributorsByRevenue(t *testing.T) {
	p := buildPipeline(t)

	resp := ask(t, p, assistant.Request{Question: "top 2 distributors by revenue", Route: salesmodel.RoutePrimary})

	require.Equal(t, assistant.OutcomeAnswered, resp.Outcome, resp.Answer)
	assert.Equal(t, "top_n_ranking", resp.Intent)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Balaji Enterprises", resp.Rows[0][0])
	assert.Equal(t, "Krishna Traders", resp.Rows[1][0])
	assert.Contains(t, resp.Answer, "Rows: 2 | Columns: 2")
	assert.Contains(t, resp.Answer, "Total total_value: 2820.00")
}

func TestAsk_ShipmentByCityNeverTouchesPrimary(t *testing.T) {
	p := buildPipeline(t)

	resp := ask(t, p, assistant.Request{Question: "shipment sales by city"})

	require.Equal(t, assistant.OutcomeAnswered, resp.Outcome, resp.Answer)
	assert.Equal(t, salesmodel.RouteShipment, resp.Route)
	assert.Equal(t, "geo_breakdown", resp.Intent)
	assert.NotContains(t, resp.SQL, "tbl_primary")
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Pune", resp.Rows[0][0])
}

func TestAsk_ClarificationCarriedBySession(t *testing.T) {
	p := buildPipeline(t)

	first := ask(t, p, assistant.Request{Question: "total sales", SessionID: "it-session"})
	require.Equal(t, assistant.OutcomeClarification, first.Outcome)

	second := ask(t, p, assistant.Request{Question: "shipment", SessionID: "it-session"})
	require.Equal(t, assistant.OutcomeAnswered, second.Outcome, second.Answer)
	assert.Equal(t, salesmodel.RouteShipment, second.Route)
	assert.Equal(t, "tbl_shipment", second.FactTable)

	third := ask(t, p, assistant.Request{Question: "top 1 city by sales", SessionID: "it-session"})
	assert.Equal(t, salesmodel.RouteShipment, third.Route)
}

func TestAsk_AllowlistWithoutFactTable(t *testing.T) {
	p := buildPipeline(t)

	resp := ask(t, p, assistant.Request{
		Question:      "total sales",
		Route:         salesmodel.RoutePrimary,
		AllowedTables: []string{"tbl_product_master"},
	})
	assert.Equal(t, assistant.OutcomeSchemaError, resp.Outcome)
	assert.Empty(t, resp.SQL)
}

func TestDistinctCache_RedisBackend(t *testing.T) {
	s := requireStack(t)
	p := buildPipeline(t,
		"--cache.backend=redis",
		"--cache.redis.addr="+s.redisAddr,
		"--sessions.backend=redis",
	)
	ctx := context.Background()

	_, err := p.Distinct.InvalidateAll(ctx)
	require.NoError(t, err)

	resp := ask(t, p, assistant.Request{Question: "total sales of bhujia", Route: salesmodel.RoutePrimary})
	require.Equal(t, assistant.OutcomeAnswered, resp.Outcome, resp.Answer)

	removed, err := p.Distinct.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Positive(t, removed)

	removed, err = p.Distinct.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
