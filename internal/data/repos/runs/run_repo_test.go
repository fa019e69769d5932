package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lakeflow/internal/data/repos/testutil"
	"github.com/yungbote/lakeflow/internal/domain/lake"
	"github.com/yungbote/lakeflow/internal/pkg/dbctx"
)

func TestRunRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	run, err := repo.Create(dbc, &lake.PipelineRun{Pipeline: "lake_build", Profile: "local", InputRoot: "data/", OutputRoot: "out/"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, lake.RunStatusRunning, run.Status)

	require.NoError(t, repo.RecordTable(dbc, &lake.RunTable{RunID: run.ID, Name: "items", Location: "out/items/", Rows: 3, Files: 1, Partitions: 2}))
	require.NoError(t, repo.RecordTable(dbc, &lake.RunTable{RunID: run.ID, Name: "items", Location: "out/items/", Rows: 5, Files: 2, Partitions: 3}))
	require.NoError(t, repo.RecordTable(dbc, &lake.RunTable{RunID: run.ID, Name: "entities", Location: "out/entities/", Rows: 1, Files: 1}))

	require.NoError(t, repo.Finish(dbc, run.ID, nil, map[string]any{"catalog": 1.5}))

	got, err := repo.GetByID(dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, lake.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.EqualValues(t, 1.5, got.Stages["catalog"])
	require.Len(t, got.Tables, 2)
	assert.Equal(t, "entities", got.Tables[0].Name)
	assert.Equal(t, "items", got.Tables[1].Name)
	assert.EqualValues(t, 5, got.Tables[1].Rows)
	assert.Equal(t, 3, got.Tables[1].Partitions)
}

func TestRunRepoFailureAndListing(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRunRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	base := time.Now().UTC().Add(-time.Hour)
	for i, p := range []string{"lake_build", "lake_build", "other"} {
		_, err := repo.Create(dbc, &lake.PipelineRun{Pipeline: p, Profile: "local", StartedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	recent, err := repo.ListRecent(dbc, "lake_build", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].StartedAt.After(recent[1].StartedAt))

	require.NoError(t, repo.Finish(dbc, recent[0].ID, errors.New("boom"), nil))
	got, err := repo.GetByID(dbc, recent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, lake.RunStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	assert.ErrorIs(t, repo.Finish(dbc, uuid.New(), nil, nil), ErrRunNotFound)
	_, err = repo.GetByID(dbc, uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Error(t, repo.RecordTable(dbc, &lake.RunTable{Name: "items"}))
}

func TestRunRepoInsideTransaction(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRunRepo(db, testutil.Logger(t))
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	run, err := repo.Create(dbc, &lake.PipelineRun{Pipeline: "lake_build", Profile: "remote"})
	require.NoError(t, err)
	got, err := repo.GetByID(dbc, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Profile)
}
