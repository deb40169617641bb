package bootstrap

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comb/internal/artifact"
	"comb/internal/meta"
	"comb/internal/node"
	"comb/internal/pullback"
	"comb/internal/registry"
)

func TestOpen_EmptyWorkspace(t *testing.T) {
	rootMetaDir := filepath.Join(t.TempDir(), ".comb")

	ctx, err := Open(rootMetaDir, artifact.Classes(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, ctx.Graph.Len())
	assert.Equal(t, len(artifact.Classes()), ctx.Registry.Len())
	assert.Equal(t, meta.KindRoot, ctx.Root().Kind())
}

func TestOpen_RejectsBadClass(t *testing.T) {
	rootMetaDir := filepath.Join(t.TempDir(), ".comb")
	bad := &registry.Class{ID: uuid.Nil, Kind: meta.KindFile}

	_, err := Open(rootMetaDir, []*registry.Class{bad}, nil)
	assert.ErrorIs(t, err, registry.ErrInvalidClassID)
}

// TestOpen_ProjectRoundTrip builds a project tree in memory, saves it, and
// checks that a fresh context materializes and joins the same data.
func TestOpen_ProjectRoundTrip(t *testing.T) {
	ws := t.TempDir()
	rootMetaDir := filepath.Join(ws, ".comb")

	ctx, err := Open(rootMetaDir, artifact.Classes(), nil)
	require.NoError(t, err)
	f := ctx.Factory

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	project := f.NewDetached(uuid.Nil, artifact.KeyValProject(),
		artifact.ProjectMeta{Name: "keys and vals"}, f.Root())
	ints := f.NewDetached(uuid.Nil, artifact.KeyIntCollection(), artifact.CollectionMeta{
		FolderName: "ints",
		Title:      "Integers",
		CreatedAt:  created,
		CreatedBy:  "tests",
	}, project)
	strs := f.NewDetached(uuid.Nil, artifact.KeyStrCollection(), artifact.CollectionMeta{
		FolderName: "strings",
		Title:      "Strings",
		CreatedAt:  created,
		CreatedBy:  "tests",
	}, project)

	ages := f.NewDetached(uuid.Nil, artifact.KeyIntFile(),
		artifact.FileMeta{Filename: "ages.csv"}, ints)
	ages.ReplaceChildren([]any{
		artifact.Pair{Key: "alice", Value: 31},
		artifact.Pair{Key: "bob", Value: 27},
		artifact.Pair{Key: "carol", Value: 45},
	})
	cities := f.NewDetached(uuid.Nil, artifact.KeyStrFile(),
		artifact.FileMeta{Filename: "cities.csv"}, strs)
	cities.ReplaceChildren([]any{
		artifact.Pair{Key: "alice", Value: "lisbon"},
		artifact.Pair{Key: "carol", Value: "oslo"},
		artifact.Pair{Key: "dave", Value: "quito"},
	})

	ints.ReplaceChildren([]any{ages})
	strs.ReplaceChildren([]any{cities})
	project.ReplaceChildren([]any{ints, strs})
	require.NoError(t, project.Save(true))

	reopened, err := Open(rootMetaDir, artifact.Classes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, reopened.Graph.Len())

	agesNode, err := reopened.Factory.Create(ages.ID())
	require.NoError(t, err)

	loc, err := agesNode.Location()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "ints", "ages.csv"), loc)

	got, err := agesNode.At(0)
	require.NoError(t, err)
	assert.Equal(t, artifact.Pair{Key: "alice", Value: 31}, got)

	citiesNode, err := reopened.Factory.Create(cities.ID())
	require.NoError(t, err)

	pairKey := func(child any) (any, error) {
		return child.(artifact.Pair).Key, nil
	}
	table, err := pullback.New(nil).Join(agesNode, citiesNode, pairKey, pairKey)
	require.NoError(t, err)

	rows, err := table.Children()
	require.NoError(t, err)
	assert.Equal(t, []any{
		node.Tuple{
			artifact.Pair{Key: "alice", Value: 31},
			artifact.Pair{Key: "alice", Value: "lisbon"},
		},
		node.Tuple{
			artifact.Pair{Key: "carol", Value: 45},
			artifact.Pair{Key: "carol", Value: "oslo"},
		},
	}, rows)

	parent, err := table.PrincipalParent()
	require.NoError(t, err)
	assert.Equal(t, ints.ID(), parent.ID())
}

// TestContext_Check plants a record with an unregistered class next to a
// healthy one and checks that only the stray is reported.
func TestContext_Check(t *testing.T) {
	rootMetaDir := filepath.Join(t.TempDir(), ".comb")
	store := meta.NewStore(nil)

	healthyID := uuid.MustParse("dddddddd-0000-0000-0000-000000000001")
	require.NoError(t, store.Write(rootMetaDir, healthyID, meta.RawMetadata{
		ClassID: artifact.KeyIntCollectionID,
		Kind:    meta.KindCollection,
		Data:    json.RawMessage(`{"folder_name":"ints"}`),
	}))

	ctx, err := Open(rootMetaDir, artifact.Classes(), nil)
	require.NoError(t, err)
	assert.Empty(t, ctx.Check())

	strayID := uuid.MustParse("dddddddd-0000-0000-0000-000000000002")
	require.NoError(t, store.Write(rootMetaDir, strayID, meta.RawMetadata{
		ClassID: uuid.MustParse("dddddddd-0000-0000-0000-00000000000f"),
		Kind:    meta.KindCollection,
		Data:    json.RawMessage(`{}`),
	}))

	reopened, err := Open(rootMetaDir, artifact.Classes(), nil)
	require.NoError(t, err)

	failures := reopened.Check()
	require.Len(t, failures, 1)
	assert.Equal(t, strayID, failures[0].ID)
	assert.ErrorIs(t, failures[0].Err, registry.ErrUnknownType)
}
