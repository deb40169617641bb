package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comb/internal/datagraph"
	"comb/internal/meta"
	"comb/internal/registry"
)

var (
	collClassID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	fileClassID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")

	collID = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	fileID = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
)

type namedMeta struct {
	Name string `json:"name"`
}

func parseNamedMeta(raw json.RawMessage) (any, error) {
	var m namedMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalNamedMeta(metadata any) (json.RawMessage, error) {
	return json.Marshal(metadata.(namedMeta))
}

func locateNamed(parentLocation string, metadata any) string {
	return filepath.Join(parentLocation, metadata.(namedMeta).Name)
}

// readPairs parses "key,int" lines into key/value tuples.
func readPairs(location string, _ any) ([]any, error) {
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}
	var points []any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		key, val, _ := strings.Cut(line, ",")
		v, err := strconv.Atoi(val)
		if err != nil {
			return nil, err
		}
		points = append(points, Tuple{key, v})
	}
	return points, nil
}

func writePairs(location string, _ any, children []any) error {
	var sb strings.Builder
	for _, c := range children {
		pair := c.(Tuple)
		fmt.Fprintf(&sb, "%s,%d\n", pair[0], pair[1])
	}
	return os.WriteFile(location, []byte(sb.String()), 0o644)
}

func testCollClass() *registry.Class {
	return &registry.Class{
		ID:              collClassID,
		Kind:            meta.KindCollection,
		Arity:           1,
		ParseMetadata:   parseNamedMeta,
		MarshalMetadata: marshalNamedMeta,
		Locate:          locateNamed,
	}
}

func testFileClass() *registry.Class {
	return &registry.Class{
		ID:              fileClassID,
		Kind:            meta.KindFile,
		Arity:           1,
		ParseMetadata:   parseNamedMeta,
		MarshalMetadata: marshalNamedMeta,
		Locate:          locateNamed,
		Points:          readPairs,
		SavePayload:     writePairs,
	}
}

// newTestContext seeds a workspace with one collection holding one pair file
// and returns a factory over it.
func newTestContext(t *testing.T) (string, *Factory) {
	t.Helper()

	ws := t.TempDir()
	rootMetaDir := filepath.Join(ws, ".comb")
	store := meta.NewStore(nil)

	writeMeta := func(parentDir string, id, classID uuid.UUID, kind meta.Kind, name string) {
		data, err := json.Marshal(namedMeta{Name: name})
		require.NoError(t, err)
		require.NoError(t, store.Write(parentDir, id, meta.RawMetadata{
			ClassID: classID,
			Kind:    kind,
			Data:    data,
		}))
	}
	writeMeta(rootMetaDir, collID, collClassID, meta.KindCollection, "pairs")
	writeMeta(meta.ChildDir(rootMetaDir, collID), fileID, fileClassID, meta.KindFile, "data.csv")

	require.NoError(t, os.MkdirAll(filepath.Join(ws, "pairs"), 0o755))
	payload := "a,1\nb,3\nc,9\nd,4\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws, "pairs", "data.csv"), []byte(payload), 0o644))

	reg := registry.New()
	require.NoError(t, reg.RegisterAll(testCollClass(), testFileClass()))

	g := datagraph.Build(rootMetaDir, store, nil)
	return ws, New(g, reg, store, nil)
}

func TestFactory_CreateRoot(t *testing.T) {
	ws, f := newTestContext(t)

	root, err := f.Create(uuid.Nil)
	require.NoError(t, err)
	assert.True(t, root.Equal(f.Root()))
	assert.Equal(t, meta.KindRoot, root.Kind())

	loc, err := root.Location()
	require.NoError(t, err)
	assert.Equal(t, ws, loc)

	parent, err := root.PrincipalParent()
	require.NoError(t, err)
	assert.True(t, parent.Equal(root))
}

func TestFactory_Create(t *testing.T) {
	_, f := newTestContext(t)

	file, err := f.Create(fileID)
	require.NoError(t, err)
	assert.Equal(t, meta.KindFile, file.Kind())
	assert.Equal(t, 1, file.Arity())
	assert.Equal(t, namedMeta{Name: "data.csv"}, file.Metadata())

	t.Run("unknown node", func(t *testing.T) {
		_, err := f.Create(uuid.MustParse("cccccccc-0000-0000-0000-000000000001"))
		assert.ErrorIs(t, err, datagraph.ErrNotFound)
	})

	t.Run("unregistered class", func(t *testing.T) {
		strayID := uuid.MustParse("cccccccc-0000-0000-0000-000000000002")
		f.Graph().Insert(&datagraph.Node{
			ID:   strayID,
			Kind: meta.KindFile,
			Raw: meta.RawMetadata{
				ClassID: uuid.MustParse("cccccccc-0000-0000-0000-00000000000f"),
				Kind:    meta.KindFile,
				Data:    json.RawMessage(`{}`),
			},
			PrincipalParent: uuid.Nil,
		}, false)

		_, err := f.Create(strayID)
		assert.ErrorIs(t, err, registry.ErrUnknownType)
	})

	t.Run("malformed metadata payload", func(t *testing.T) {
		strayID := uuid.MustParse("cccccccc-0000-0000-0000-000000000003")
		f.Graph().Insert(&datagraph.Node{
			ID:   strayID,
			Kind: meta.KindFile,
			Raw: meta.RawMetadata{
				ClassID: fileClassID,
				Kind:    meta.KindFile,
				Data:    json.RawMessage(`[1, 2]`),
			},
			PrincipalParent: uuid.Nil,
		}, false)

		_, err := f.Create(strayID)
		assert.ErrorContains(t, err, "parse metadata")
	})

	t.Run("reserved class identifier never aliases the root", func(t *testing.T) {
		strayID := uuid.MustParse("cccccccc-0000-0000-0000-000000000004")
		f.Graph().Insert(&datagraph.Node{
			ID:   strayID,
			Kind: meta.KindCollection,
			Raw: meta.RawMetadata{
				ClassID: uuid.Nil,
				Kind:    meta.KindCollection,
				Data:    json.RawMessage(`{}`),
			},
			PrincipalParent: collID,
		}, false)

		n, err := f.Create(strayID)
		assert.ErrorContains(t, err, "reserved class identifier")
		assert.Nil(t, n)
	})
}

func TestNode_PrincipalParent(t *testing.T) {
	_, f := newTestContext(t)

	file, err := f.Create(fileID)
	require.NoError(t, err)

	parent, err := file.PrincipalParent()
	require.NoError(t, err)
	assert.Equal(t, collID, parent.ID())

	grand, err := parent.PrincipalParent()
	require.NoError(t, err)
	assert.True(t, grand.Equal(f.Root()))

	t.Run("graph wins over hint", func(t *testing.T) {
		hinted := f.NewDetached(fileID, testFileClass(), namedMeta{Name: "data.csv"}, f.Root())

		parent, err := hinted.PrincipalParent()
		require.NoError(t, err)
		assert.Equal(t, collID, parent.ID())
	})

	t.Run("hint covers detached nodes", func(t *testing.T) {
		coll, err := f.Create(collID)
		require.NoError(t, err)
		detached := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "x.csv"}, coll)

		parent, err := detached.PrincipalParent()
		require.NoError(t, err)
		assert.Equal(t, collID, parent.ID())
	})

	t.Run("no graph entry and no hint", func(t *testing.T) {
		orphan := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "x.csv"}, nil)

		_, err := orphan.PrincipalParent()
		assert.ErrorIs(t, err, datagraph.ErrNotFound)
	})
}

func TestNode_Location(t *testing.T) {
	ws, f := newTestContext(t)

	file, err := f.Create(fileID)
	require.NoError(t, err)

	loc, err := file.Location()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "pairs", "data.csv"), loc)
}

func TestNode_ChildrenInterior(t *testing.T) {
	_, f := newTestContext(t)

	rootChildren, err := f.Root().Children()
	require.NoError(t, err)
	require.Len(t, rootChildren, 1)
	assert.Equal(t, collID, rootChildren[0].(*Node).ID())

	coll, err := f.Create(collID)
	require.NoError(t, err)
	collChildren, err := coll.Children()
	require.NoError(t, err)
	require.Len(t, collChildren, 1)
	assert.Equal(t, fileID, collChildren[0].(*Node).ID())
}

func TestNode_ChildrenLeaf(t *testing.T) {
	_, f := newTestContext(t)

	file, err := f.Create(fileID)
	require.NoError(t, err)

	children, err := file.Children()
	require.NoError(t, err)
	assert.Equal(t, []any{
		Tuple{"a", 1},
		Tuple{"b", 3},
		Tuple{"c", 9},
		Tuple{"d", 4},
	}, children)
	assert.False(t, file.Loaded())
}

func TestNode_ChildrenRestartable(t *testing.T) {
	ws, f := newTestContext(t)
	missing := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "late.csv"}, f.Root())

	_, err := missing.Children()
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "late.csv"), []byte("z,5\n"), 0o644))

	children, err := missing.Children()
	require.NoError(t, err)
	assert.Equal(t, []any{Tuple{"z", 5}}, children)
}

func TestNode_LoadOnce(t *testing.T) {
	ws, f := newTestContext(t)

	calls := 0
	class := testFileClass()
	class.Points = func(location string, metadata any) ([]any, error) {
		calls++
		return readPairs(location, metadata)
	}
	require.NoError(t, os.WriteFile(filepath.Join(ws, "counted.csv"), []byte("a,1\n"), 0o644))
	file := f.NewDetached(uuid.Nil, class, namedMeta{Name: "counted.csv"}, f.Root())

	file.Load()
	file.Load()
	assert.Equal(t, 1, calls)
	assert.True(t, file.Loaded())

	children, err := file.Children()
	require.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Equal(t, 1, calls)

	file.Unload()
	assert.False(t, file.Loaded())
	file.Load()
	assert.Equal(t, 2, calls)
}

func TestNode_LoadFailureLeavesEmpty(t *testing.T) {
	ws, f := newTestContext(t)
	file := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "ghost.csv"}, f.Root())

	file.Load()
	assert.True(t, file.Loaded())
	children, err := file.Children()
	require.NoError(t, err)
	assert.Empty(t, children)

	// The payload appearing later changes nothing until an explicit Unload.
	require.NoError(t, os.WriteFile(filepath.Join(ws, "ghost.csv"), []byte("a,1\n"), 0o644))
	children, err = file.Children()
	require.NoError(t, err)
	assert.Empty(t, children)

	file.Unload()
	file.Load()
	children, err = file.Children()
	require.NoError(t, err)
	assert.Len(t, children, 1)
}

func TestNode_ReplaceChildren(t *testing.T) {
	_, f := newTestContext(t)
	file, err := f.Create(fileID)
	require.NoError(t, err)

	file.ReplaceChildren([]any{Tuple{"x", 10}})

	assert.True(t, file.Loaded())
	children, err := file.Children()
	require.NoError(t, err)
	assert.Equal(t, []any{Tuple{"x", 10}}, children)
}

func TestNode_At(t *testing.T) {
	_, f := newTestContext(t)
	file, err := f.Create(fileID)
	require.NoError(t, err)

	got, err := file.At(0)
	require.NoError(t, err)
	assert.Equal(t, Tuple{"a", 1}, got)

	got, err = file.At(-1)
	require.NoError(t, err)
	assert.Equal(t, Tuple{"d", 4}, got)

	got, err = file.At(2)
	require.NoError(t, err)
	assert.Equal(t, Tuple{"c", 9}, got)

	t.Run("out of range", func(t *testing.T) {
		_, err := file.At(4)
		assert.ErrorContains(t, err, "out of range")
		_, err = file.At(-5)
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("no indices", func(t *testing.T) {
		_, err := file.At()
		assert.ErrorContains(t, err, "no indices")
	})

	t.Run("two indices need arity above one", func(t *testing.T) {
		_, err := file.At(0, 1)
		assert.ErrorContains(t, err, "arity")
	})

	t.Run("three indices unimplemented", func(t *testing.T) {
		_, err := file.At(0, 1, 2)
		assert.ErrorIs(t, err, ErrUnimplemented)
	})
}

func TestNode_AtTwoDims(t *testing.T) {
	_, f := newTestContext(t)
	owner, err := f.Create(fileID)
	require.NoError(t, err)

	table := Synthetic(owner, &registry.Class{Kind: meta.KindFile, Arity: 2}, nil, []any{
		Tuple{Tuple{"a", 1}, Tuple{"a", 2}},
		Tuple{Tuple{"b", 3}, Tuple{"b", 5}},
	})

	got, err := table.At(0, 1)
	require.NoError(t, err)
	assert.Equal(t, Tuple{"a", 2}, got)

	got, err = table.At(-1, -1)
	require.NoError(t, err)
	assert.Equal(t, Tuple{"b", 5}, got)

	_, err = table.At(0, 2)
	assert.ErrorContains(t, err, "out of range")
}

func TestNode_Slice(t *testing.T) {
	_, f := newTestContext(t)
	file, err := f.Create(fileID)
	require.NoError(t, err)

	got, err := file.Slice(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{Tuple{"b", 3}, Tuple{"c", 9}}, got)

	got, err = file.Slice(0, 99)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	got, err = file.Slice(3, 1)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = file.Slice(-1, 2)
	assert.ErrorContains(t, err, "negative")
}

func TestNode_Equal(t *testing.T) {
	_, f := newTestContext(t)

	a, err := f.Create(fileID)
	require.NoError(t, err)
	b, err := f.Create(fileID)
	require.NoError(t, err)
	c, err := f.Create(collID)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestNode_SaveDetachedTree(t *testing.T) {
	ws, f := newTestContext(t)

	coll := f.NewDetached(uuid.Nil, testCollClass(), namedMeta{Name: "fresh"}, f.Root())
	file := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "out.csv"}, coll)
	file.ReplaceChildren([]any{Tuple{"k", 7}, Tuple{"m", 8}})
	coll.ReplaceChildren([]any{file})

	require.NoError(t, coll.Save(true))

	payload, err := os.ReadFile(filepath.Join(ws, "fresh", "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "k,7\nm,8\n", string(payload))

	// A rebuilt graph sees the saved records.
	g := datagraph.Build(f.Graph().RootMetaDir(), nil, nil)
	f2 := New(g, f.Registry(), nil, nil)

	reloaded, err := f2.Create(file.ID())
	require.NoError(t, err)
	children, err := reloaded.Children()
	require.NoError(t, err)
	assert.Equal(t, []any{Tuple{"k", 7}, Tuple{"m", 8}}, children)

	parent, err := reloaded.PrincipalParent()
	require.NoError(t, err)
	assert.Equal(t, coll.ID(), parent.ID())
}

func TestNode_SaveSelfOnly(t *testing.T) {
	ws, f := newTestContext(t)

	coll := f.NewDetached(uuid.Nil, testCollClass(), namedMeta{Name: "solo"}, f.Root())
	file := f.NewDetached(uuid.Nil, testFileClass(), namedMeta{Name: "skip.csv"}, coll)
	coll.ReplaceChildren([]any{file})

	require.NoError(t, coll.Save(false))

	collMetaDir := meta.ChildDir(f.Graph().RootMetaDir(), coll.ID())
	_, err := os.Stat(filepath.Join(collMetaDir, meta.MetadataFileName))
	assert.NoError(t, err)

	fileMetaDir := meta.ChildDir(collMetaDir, file.ID())
	_, err = os.Stat(filepath.Join(fileMetaDir, meta.MetadataFileName))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(ws, "solo", "skip.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNode_SaveIsStable(t *testing.T) {
	_, f := newTestContext(t)

	file, err := f.Create(fileID)
	require.NoError(t, err)
	require.NoError(t, file.Save(false))

	metaPath := filepath.Join(
		meta.ChildDir(meta.ChildDir(f.Graph().RootMetaDir(), collID), fileID),
		meta.MetadataFileName,
	)
	first, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	require.NoError(t, file.Save(false))
	second, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSynthetic(t *testing.T) {
	_, f := newTestContext(t)
	owner, err := f.Create(fileID)
	require.NoError(t, err)

	rows := []any{Tuple{Tuple{"a", 1}, Tuple{"a", 2}}}
	table := Synthetic(owner, &registry.Class{Kind: meta.KindFile, Arity: 2}, nil, rows)

	assert.True(t, table.Loaded())
	assert.NotEqual(t, uuid.Nil, table.ID())
	assert.False(t, table.Equal(owner))

	children, err := table.Children()
	require.NoError(t, err)
	assert.Equal(t, rows, children)

	parent, err := table.PrincipalParent()
	require.NoError(t, err)
	assert.Equal(t, collID, parent.ID())
}
