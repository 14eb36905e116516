package services

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdge_AddEdge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	flow := f.chain(t, "edges", "a", "b", "c")

	testCases := []struct {
		name     string
		from, to string
		err      error
	}{
		{"unknown source", "zzz", "a", ErrUnknownNode},
		{"unknown target", "a", "zzz", ErrUnknownNode},
		{"self loop", "b", "b", ErrCycleDetected},
		{"back edge", "c", "a", ErrCycleDetected},
		{"duplicate", "a", "b", ErrDuplicateEdge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.edges.AddEdge(ctx, flow.ID, tc.from, tc.to)
			require.ErrorIs(t, err, tc.err)

			var edgeErr *EdgeError
			require.ErrorAs(t, err, &edgeErr)
			assert.Equal(t, tc.from, edgeErr.From)
			assert.Equal(t, tc.to, edgeErr.To)
		})
	}

	edge, err := f.edges.AddEdge(ctx, flow.ID, "a", "c")
	require.NoError(t, err)
	assert.NotEmpty(t, edge.ID)

	edges, err := f.edges.ListEdges(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestEdge_ConcurrentOppositeEdges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	flow, err := f.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{Code: "race", Name: "Race"})
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		_, err := f.nodes.AddNode(ctx, flow.ID, NodeSpec{ID: id, Type: models.NodeTypeDelay, Name: id, Config: map[string]any{"delay_duration": "1m"}})
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.edges.AddEdge(ctx, flow.ID, pair[0], pair[1])
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestEdge_ConcurrentInsertionsStayAcyclic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := t.Context()

	flow, err := f.workflows.CreateWorkflow(ctx, CreateWorkflowRequest{Code: "acyclic", Name: "Acyclic"})
	require.NoError(t, err)

	const nodeCount = 8

	for i := range nodeCount {
		_, err := f.nodes.AddNode(ctx, flow.ID, NodeSpec{
			ID:     fmt.Sprintf("n%d", i),
			Type:   models.NodeTypeDelay,
			Name:   fmt.Sprintf("Node %d", i),
			Config: map[string]any{"delay_duration": "1m"},
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup

	for worker := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			rng := rand.New(rand.NewPCG(uint64(worker), 42))

			for range 10 {
				from := fmt.Sprintf("n%d", rng.IntN(nodeCount))
				to := fmt.Sprintf("n%d", rng.IntN(nodeCount))
				_, _ = f.edges.AddEdge(ctx, flow.ID, from, to)
			}
		}()
	}

	wg.Wait()

	stored, err := f.workflows.Get(ctx, flow.ID)
	require.NoError(t, err)
	assert.Nil(t, workflow.FromWorkflow(stored).FindCycle())
}
