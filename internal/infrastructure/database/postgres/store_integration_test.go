//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/KeyIP-Explorer/internal/config"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/database/postgres"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

const migrationsDir = "../../../../migrations"

func startPostgres(t *testing.T) config.DatabaseConfig {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "kipx",
			"POSTGRES_PASSWORD": "kipx",
			"POSTGRES_DB":       "kipx_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
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
	port, err := ctr.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "kipx",
		Password: "kipx",
		DBName:   "kipx_test",
		SSLMode:  "disable",
		MaxConns: 4,
	}
}

func newIntegrationStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	logger := logging.NewNopLogger()

	pool, err := postgres.NewPool(ctx, startPostgres(t), logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(pool, migrationsDir, logger))

	seed := []struct {
		id, number, title, abstract, assignee string
		filed                                 string
	}{
		{"r1", "US100", "Battery separator", "Ceramic coated film", "Acme Corp", "2020-03-01"},
		{"r2", "US200", "Solar cell", "Battery backed inverter", "Beta Labs", "2022-06-15"},
		{"r3", "US300", "Anode material", "Graphite blend", "Acme Corp", "2021-01-10"},
		{"r4", "US400", "Coating process", "Thin film deposition", "", ""},
		{"r5", "US500", "Battery housing", "Crash resistant shell", "Gamma Batteries", "2022-06-15"},
	}
	for _, r := range seed {
		var filed interface{}
		if r.filed != "" {
			filed = r.filed
		}
		_, err := pool.Exec(ctx,
			"INSERT INTO patent_records (id, patent_number, title, abstract, assignee, filing_date) VALUES ($1,$2,$3,$4,$5,$6)",
			r.id, r.number, r.title, r.abstract, r.assignee, filed)
		require.NoError(t, err)
	}

	return postgres.NewStore(pool, nil, logger)
}

func recordIDs(rows []patent.Record) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestStore_Execute_KeywordMatchesTitleAbstractAssignee(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(),
		patent.Query{Keyword: "battery", Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)

	// r1 title, r2 abstract, r5 title and assignee; newest first with id DESC
	// breaking the r5/r2 date tie.
	assert.Equal(t, int64(3), total)
	assert.Equal(t, []string{"r5", "r2", "r1"}, recordIDs(rows))
}

func TestStore_Execute_CountProbeReturnsNoRows(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(), patent.Query{Counted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Empty(t, rows)
}

func TestStore_Execute_UncountedChunk(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(),
		patent.Query{Range: &patent.RowRange{From: 0, To: 1}})
	require.NoError(t, err)
	assert.Equal(t, patent.TotalUncounted, total)
	assert.Len(t, rows, 2)
}

func TestStore_Execute_UndatedRecordsSortLast(t *testing.T) {
	store := newIntegrationStore(t)

	rows, _, err := store.Execute(context.Background(),
		patent.Query{Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, "r4", rows[4].ID)
	assert.Nil(t, rows[4].FilingDate)
}

func TestStore_Execute_DateBoundsAreInclusive(t *testing.T) {
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

func TestStore_Execute_AssigneeEquality(t *testing.T) {
	store := newIntegrationStore(t)

	rows, total, err := store.Execute(context.Background(),
		patent.Query{Assignee: "Acme Corp", Counted: true, Range: &patent.RowRange{From: 0, To: 9}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"r3", "r1"}, recordIDs(rows))
}

func TestStore_Assignees_DistinctSortedCapped(t *testing.T) {
	store := newIntegrationStore(t)

	all, err := store.Assignees(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Beta Labs", "Gamma Batteries"}, all)

	capped, err := store.Assignees(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Corp", "Beta Labs"}, capped)
}
