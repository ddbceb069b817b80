package taskmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/model"
)

func TestMesh_FullRound(t *testing.T) {
	mesh, err := New(func(o *Options) {
		cfg := config.Default()
		cfg.Dispatch.CollectTimeout = 5 * time.Second
		o.Config = cfg
	})
	require.NoError(t, err)

	categories := []string{"head", "top", "bottom", "shoes"}
	for _, category := range categories {
		m := model.NewMockModel(category + "_model")
		m.AddResponse(category, testutil.ModelJSON(category))
		mesh.RegisterWorker(category, m)
	}

	require.NoError(t, mesh.Start(context.Background()))
	defer mesh.Stop()

	results, err := mesh.Process(context.Background(), "", testutil.Profile())
	require.NoError(t, err)
	require.Len(t, results, 4)
	for _, category := range categories {
		rec, ok := results[category]
		require.True(t, ok, "missing category %s", category)
		assert.NotEmpty(t, rec.Items)
	}
}

func TestMesh_StartWithoutWorkers(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)
	assert.Error(t, mesh.Start(context.Background()))
}

func TestMesh_DoubleStart(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)
	mesh.RegisterWorker("top", model.NewMockModel("top_model"))

	require.NoError(t, mesh.Start(context.Background()))
	defer mesh.Stop()
	assert.Error(t, mesh.Start(context.Background()))
}

func TestMesh_ProcessWithoutRoutes(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)

	_, err = mesh.Process(context.Background(), "sess-1", testutil.Profile())
	require.Error(t, err)
	assert.Equal(t, core.KindAgentNotFound, core.KindOf(err))
}

func TestCompactInstruction(t *testing.T) {
	out := CompactInstruction(testutil.Profile(), "top", "Recommend upper body garments", "", 500)
	assert.Contains(t, out, "Task: top")
	assert.Contains(t, out, "Target: Alex")
	assert.Contains(t, out, "Requirement: Recommend upper body garments")
}
