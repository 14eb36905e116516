package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"trigger_instances", "node_templates", "workflow_edges", "workflow_nodes", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("notiflow_test"),
			postgres.WithUsername("notiflow"),
			postgres.WithPassword("notiflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func createWorkflow(ctx context.Context, t *testing.T, p *postgresql.Persistence, version int) *models.Workflow {
	t.Helper()

	entry := "a"
	workflow := &models.Workflow{
		TenantID:      "acme",
		Code:          "order-shipped",
		Name:          "Order shipped",
		Version:       version,
		EntryNodeID:   &entry,
		PayloadSchema: map[string]any{"type": "object"},
		Owner:         "alice",
		Nodes: []*models.WorkflowNode{
			{ID: "a", Type: models.NodeTypeEmail, Name: "Email", Bindings: models.EmailBindings{ToTemplate: "{{.email}}", BodyTemplate: "hi"}},
			{ID: "b", Type: models.NodeTypeDelay, Name: "Wait", Bindings: models.DelayBindings{Duration: models.Duration(time.Hour)}},
		},
		Edges: []*models.WorkflowEdge{{FromNodeID: "a", ToNodeID: "b"}},
	}

	require.NoError(t, p.WorkflowRepository().Create(ctx, workflow))

	return workflow
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_edges", "node_templates", "trigger_instances"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRepository()

	first := createWorkflow(ctx, t, p, 1)
	createWorkflow(ctx, t, p, 2)

	err := repo.Create(ctx, &models.Workflow{TenantID: "acme", Code: "order-shipped", Name: "dup", Version: 2})
	assert.ErrorIs(t, err, persistence.ErrWorkflowAlreadyExists)

	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Owner)
	assert.Equal(t, "a", *stored.EntryNodeID)
	assert.Equal(t, map[string]any{"type": "object"}, stored.PayloadSchema)
	require.Len(t, stored.Nodes, 2)
	require.Len(t, stored.Edges, 1)
	assert.Equal(t, models.DelayBindings{Duration: models.Duration(time.Hour)}, stored.Nodes[1].Bindings)

	latest, err := repo.LatestByCode(ctx, "acme", "order-shipped")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	maxVersion, err := repo.MaxVersion(ctx, "acme", "order-shipped")
	require.NoError(t, err)
	assert.Equal(t, 2, maxVersion)

	versions, err := repo.ListVersions(ctx, "acme", "order-shipped")
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	stored.IsActive = true
	require.NoError(t, repo.Update(ctx, stored))

	stored, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsWorkflowNotFound(err))

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestNodeAndEdgeRepositories(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := createWorkflow(ctx, t, p, 1)

	node := &models.WorkflowNode{
		ID:         "c",
		WorkflowID: workflow.ID,
		Type:       models.NodeTypeSMS,
		Name:       "SMS",
		Bindings:   models.SMSBindings{ToTemplate: "{{.phone}}", BodyTemplate: "Shipped"},
	}
	require.NoError(t, p.NodeRepository().Create(ctx, node))
	assert.ErrorIs(t, p.NodeRepository().Create(ctx, node), persistence.ErrNodeAlreadyExists)

	got, err := p.NodeRepository().GetByWorkflow(ctx, workflow.ID, "c")
	require.NoError(t, err)
	assert.Equal(t, node.Bindings, got.Bindings)

	_, err = p.NodeRepository().GetByWorkflow(ctx, workflow.ID, "missing")
	assert.True(t, persistence.IsNodeNotFound(err))

	edge := &models.WorkflowEdge{WorkflowID: workflow.ID, FromNodeID: "b", ToNodeID: "c"}
	require.NoError(t, p.EdgeRepository().Create(ctx, edge))

	err = p.EdgeRepository().Create(ctx, &models.WorkflowEdge{WorkflowID: workflow.ID, FromNodeID: "b", ToNodeID: "c"})
	assert.ErrorIs(t, err, persistence.ErrEdgeAlreadyExists)

	edges, err := p.EdgeRepository().ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestTemplateRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.TemplateRepository()

	base := time.Now().UTC().Add(-time.Hour)
	for i, template := range []*models.NodeTemplate{
		{Code: "welcome-email", Name: "Welcome 100%", Type: models.NodeTypeEmail},
		{Code: "shipping-sms", Name: "Shipping", Type: models.NodeTypeSMS},
		{Code: "receipt-email", Name: "Receipt", Type: models.NodeTypeEmail},
	} {
		template.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		template.Config = map[string]any{"k": i}
		require.NoError(t, repo.Save(ctx, template))
	}

	email := models.NodeTypeEmail

	result, err := repo.Search(ctx, persistence.TemplateSearchOptions{Type: &email})
	require.NoError(t, err)
	require.Len(t, result.Templates, 2)
	assert.Equal(t, "receipt-email", result.Templates[0].Code)
	assert.Equal(t, int64(2), result.TotalCount)

	result, err = repo.Search(ctx, persistence.TemplateSearchOptions{Text: "SHIP"})
	require.NoError(t, err)
	require.Len(t, result.Templates, 1)

	result, err = repo.Search(ctx, persistence.TemplateSearchOptions{Text: "100%"})
	require.NoError(t, err)
	require.Len(t, result.Templates, 1)
	assert.Equal(t, "welcome-email", result.Templates[0].Code)

	result, err = repo.Search(ctx, persistence.TemplateSearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, result.Templates, 2)
	assert.True(t, result.HasNextPage)

	original, err := repo.GetByCode(ctx, "shipping-sms")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, &models.NodeTemplate{Code: "shipping-sms", Name: "Shipping v2", Type: models.NodeTypeSMS}))

	updated, err := repo.GetByCode(ctx, "shipping-sms")
	require.NoError(t, err)
	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, "Shipping v2", updated.Name)

	_, err = repo.GetByCode(ctx, "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestTriggerInstanceRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := createWorkflow(ctx, t, p, 1)
	repo := p.TriggerInstanceRepository()

	now := time.Now().UTC().Truncate(time.Millisecond)
	newInstance := func(key string) *models.TriggerInstance {
		return &models.TriggerInstance{
			WorkflowID:     workflow.ID,
			IdempotencyKey: key,
			Payload:        json.RawMessage(`{"order_id": "42"}`),
			Status:         models.InstanceStatusEnqueued,
			AvailableAt:    now,
		}
	}

	t.Run("create if absent returns the existing row", func(t *testing.T) {
		first, created, err := repo.CreateIfAbsent(ctx, newInstance("order-42"))
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := repo.CreateIfAbsent(ctx, newInstance("order-42"))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("concurrent submissions create one row", func(t *testing.T) {
		var wg sync.WaitGroup

		ids := make([]string, 8)

		for i := range ids {
			wg.Add(1)

			go func() {
				defer wg.Done()

				stored, _, err := repo.CreateIfAbsent(ctx, newInstance("burst"))
				assert.NoError(t, err)

				if stored != nil {
					ids[i] = stored.ID
				}
			}()
		}

		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		stored, _, err := repo.CreateIfAbsent(ctx, newInstance("cas"))
		require.NoError(t, err)

		claimedAt := now
		next := stored.Clone()
		next.Status = models.InstanceStatusProcessing
		next.Attempts = 1
		next.ClaimedAt = &claimedAt
		next.ClaimedBy = "worker-1"

		require.NoError(t, repo.CompareAndSwap(ctx, next, models.InstanceStatusEnqueued, 0))

		err = repo.CompareAndSwap(ctx, next, models.InstanceStatusEnqueued, 0)
		assert.True(t, persistence.IsStaleInstance(err))

		got, err := repo.GetByID(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusProcessing, got.Status)
		assert.Equal(t, "worker-1", got.ClaimedBy)
		require.NotNil(t, got.ClaimedAt)

		stale, err := repo.FindStale(ctx, now.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, stored.ID, stale[0].ID)
	})

	t.Run("find ready and count", func(t *testing.T) {
		later := newInstance("later")
		later.AvailableAt = now.Add(time.Hour)
		_, _, err := repo.CreateIfAbsent(ctx, later)
		require.NoError(t, err)

		ready, err := repo.FindReady(ctx, now, 100)
		require.NoError(t, err)
		assert.Len(t, ready, 2)

		count, err := repo.CountByWorkflow(ctx, workflow.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		processing := models.InstanceStatusProcessing
		listed, err := repo.List(ctx, persistence.InstanceListOptions{WorkflowID: workflow.ID, Status: &processing})
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("payload keeps its key order", func(t *testing.T) {
		instance := newInstance("key-order")
		instance.Payload = json.RawMessage(`{"zeta":1,"alpha":{"list":[1,2]}}`)

		stored, _, err := repo.CreateIfAbsent(ctx, instance)
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, `{"zeta":1,"alpha":{"list":[1,2]}}`, string(got.Payload))
	})

	t.Run("expire claim loses to a renewal", func(t *testing.T) {
		stored, _, err := repo.CreateIfAbsent(ctx, newInstance("expire"))
		require.NoError(t, err)

		claimedAt := now.Add(-10 * time.Minute)
		cutoff := now.Add(-5 * time.Minute)

		claimed := stored.Clone()
		claimed.Status = models.InstanceStatusProcessing
		claimed.Attempts = 1
		claimed.ClaimedBy = "worker-1"
		claimed.ClaimedAt = &claimedAt
		require.NoError(t, repo.CompareAndSwap(ctx, claimed, models.InstanceStatusEnqueued, 0))

		renewedAt := now
		renewed := claimed.Clone()
		renewed.ClaimedAt = &renewedAt
		require.NoError(t, repo.CompareAndSwap(ctx, renewed, models.InstanceStatusProcessing, 1))

		expired := claimed.Clone()
		expired.Status = models.InstanceStatusFailed
		expired.ClaimedAt = nil

		err = repo.ExpireClaim(ctx, expired, 1, cutoff)
		assert.True(t, persistence.IsStaleInstance(err))

		require.NoError(t, repo.ExpireClaim(ctx, expired, 1, now.Add(time.Second)))

		got, err := repo.GetByID(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InstanceStatusFailed, got.Status)
	})

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsTriggerInstanceNotFound(err))
}
