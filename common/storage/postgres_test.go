package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/common/signatures"
)

func setupTestDatabase(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("netsentry_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, Migrate(connStr))
	// Second run is a no-op.
	require.NoError(t, Migrate(connStr))

	store, err := NewPostgresStore(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupTestDatabase(t)
	ctx := context.Background()

	t.Run("events", func(t *testing.T) {
		port := 443
		err := store.InsertEvent(ctx, &models.Event{
			Time: time.Now().UTC(), AgentID: "agent-1", Src: "10.0.0.1", Dst: "10.0.0.2",
			DstPort: &port, Proto: models.ProtoTCP, Size: 60, ProcName: "curl",
		})
		require.NoError(t, err)

		var size *int
		var proto, procName *string
		row := store.pool.QueryRow(ctx, `SELECT size, proto, proc_name FROM events WHERE agent_id = $1`, "agent-1")
		require.NoError(t, row.Scan(&size, &proto, &procName))
		require.NotNil(t, size)
		assert.Equal(t, 60, *size)
		require.NotNil(t, proto)
		assert.Equal(t, "TCP", *proto)
	})

	t.Run("absent optional fields are null", func(t *testing.T) {
		require.NoError(t, store.InsertEvent(ctx, &models.Event{
			Time: time.Now().UTC(), AgentID: "agent-sparse", Src: "10.0.0.1", Dst: "10.0.0.2",
		}))

		var size, srcPort *int
		var proto, procName *string
		row := store.pool.QueryRow(ctx, `SELECT size, src_port, proto, proc_name FROM events WHERE agent_id = $1`, "agent-sparse")
		require.NoError(t, row.Scan(&size, &srcPort, &proto, &procName))
		assert.Nil(t, size)
		assert.Nil(t, srcPort)
		assert.Nil(t, proto)
		assert.Nil(t, procName)
	})

	t.Run("alerts replace by id", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "a1", Type: "port-scan", Severity: "low", Time: now}))
		require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "a1", Type: "port-scan", Severity: "high", Time: now}))
		require.NoError(t, store.InsertAlert(ctx, &models.Alert{ID: "old", Type: "t", Time: now.Add(-60 * 24 * time.Hour)}))

		alerts, err := store.ListAlerts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "a1", alerts[0].ID)
		assert.Equal(t, "high", alerts[0].Severity)

		updated, err := store.UpdateAlertTriage(ctx, "a1", models.AlertTriage{Escalated: true, Notes: "paged"})
		require.NoError(t, err)
		assert.True(t, updated.Escalated)

		_, err = store.UpdateAlertTriage(ctx, "nope", models.AlertTriage{})
		assert.ErrorIs(t, err, ErrNotFound)

		n, err := store.PurgeAlertsBefore(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("audit", func(t *testing.T) {
		require.NoError(t, store.InsertAudit(ctx, "Alert received: port-scan 1.1.1.1 -> 2.2.2.2"))
		entries, err := store.ListAudit(ctx, 200)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Equal(t, "Alert received: port-scan 1.1.1.1 -> 2.2.2.2", entries[0].Message)
	})

	t.Run("signatures", func(t *testing.T) {
		inserted, err := signatures.Reconcile(ctx, store, signatures.ClientDefaults())
		require.NoError(t, err)
		assert.Len(t, inserted, 5)

		inserted, err = signatures.Reconcile(ctx, store, signatures.ClientDefaults())
		require.NoError(t, err)
		assert.Empty(t, inserted)

		sigs, err := store.ListSignatures(ctx)
		require.NoError(t, err)
		require.Len(t, sigs, 5)
		assert.Equal(t, []string{"youtube.com", "youtu.be"}, sigs[2].Patterns)

		require.NoError(t, store.SetSignatureActive(ctx, sigs[0].ID, false))
		got, err := store.GetSignature(ctx, sigs[0].ID)
		require.NoError(t, err)
		assert.False(t, got.Active)
		assert.Equal(t, 2, got.Version)

		assert.ErrorIs(t, store.SetSignatureActive(ctx, 9999, true), ErrNotFound)
	})
}
