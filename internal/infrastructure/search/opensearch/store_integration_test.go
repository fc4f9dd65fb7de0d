//go:build integration

package opensearch_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

func startOpenSearch(t *testing.T) config.OpenSearchConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "opensearchproject/opensearch:2.11.1",
		ExposedPorts: []string{"9200/tcp"},
		Env: map[string]string{
			"discovery.type":          "single-node",
			"DISABLE_SECURITY_PLUGIN": "true",
			"OPENSEARCH_JAVA_OPTS":    "-Xms512m -Xmx512m",
		},
		WaitingFor: wait.ForHTTP("/").
			WithPort("9200/tcp").
			WithStartupTimeout(2 * time.Minute),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "9200")
	require.NoError(t, err)

	return config.OpenSearchConfig{
		Addresses:   []string{fmt.Sprintf("http://%s:%s", host, port.Port())},
		IndexPrefix: "kipx-",
	}
}

func newIntegrationStore(t *testing.T) *opensearch.Store {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()

	cfg := startOpenSearch(t)
	client, err := opensearch.NewClient(ctx, cfg, logger)
	require.NoError(t, err)

	store := opensearch.NewStore(client, cfg, nil, logger)
	require.NoError(t, store.EnsureIndex(ctx))
	// Idempotent against an existing index.
	require.NoError(t, store.EnsureIndex(ctx))

	date := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	require.NoError(t, store.IndexRecords(ctx, []patent.Record{
		{ID: "r1", PatentNumber: "US100", Title: "Battery separator", Abstract: "Ceramic coated film", Assignee: "Acme Corp", FilingDate: date(2020, time.March, 1)},
		{ID: "r2", PatentNumber: "US200", Title: "Solar cell", Abstract: "Battery backed inverter", Assignee: "Beta Labs", FilingDate: date(2022, time.June, 15)},
		{ID: "r3", PatentNumber: "US300", Title: "Anode material", Abstract: "Graphite blend", Assignee: "Acme Corp", FilingDate: date(2021, time.January, 10)},
		{ID: "r4", PatentNumber: "US400", Title: "Coating process", Abstract: "Thin film deposition"},
		{ID: "r5", PatentNumber: "US500", Title: "Battery housing", Abstract: "Crash resistant shell", Assignee: "Gamma Batteries", FilingDate: date(2022, time.June, 15)},
	}))

	return store
}

func recordIDs(rows []patent.Record) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestStore_Integration_KeywordMatchesTitleAbstractAssignee(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(),
		patent.Query{Keyword: "battery", Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)

	// r1 title, r2 abstract, r5 title and assignee; newest first with id DESC
	// breaking the r5/r2 date tie.
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"r5", "r2", "r1"}, recordIDs(rows))
}

func TestStore_Integration_KeywordSpansTokens(t *testing.T) {
	store := newIntegrationStore(t)

	// Substring across a word boundary; only the raw title of r1 contains it.
	rows, total, err := store.Execute(context.Background(),
		patent.Query{Keyword: "ttery sep", Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, []string{"r1"}, recordIDs(rows))
}

func TestStore_Integration_CountProbeReturnsNoRows(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(), patent.Query{Counted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, rows)
}

func TestStore_Integration_UndatedRecordsSortLast(t *testing.T) {
	store := newIntegrationStore(t)

	rows, _, err := store.Execute(context.Background(),
		patent.Query{Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, "r4", rows[4].ID)
	assert.Nil(t, rows[4].FilingDate)
}

func TestStore_Integration_DateBoundsAreInclusive(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(), patent.Query{
		FilingFrom: &common.Date{Year: 2021, Month: time.January, Day: 10},
		FilingTo:   &common.Date{Year: 2022, Month: time.June, Day: 15},
		Counted:    true,
		Range:      &patent.RowRange{From: 0, To: 9},
	})
	require.NoError(t, err)

	// Both endpoints match; the undated r4 never does.
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"r5", "r2", "r3"}, recordIDs(rows))
}

func TestStore_Integration_AssigneeEquality(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(),
		patent.Query{Assignee: "Acme Corp", Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"r3", "r1"}, recordIDs(rows))
}

func TestStore_Integration_AssigneesDistinctSortedCapped(t *testing.T) {
	store := newIntegrationStore(t)

	all, err := store.Assignees(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Beta Labs", "Gamma Batteries"}, all)

	capped, err := store.Assignees(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Beta Labs"}, capped)
}
