package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/bimview/internal/engine/memengine"
	"github.com/zjrosen/bimview/internal/infrastructure/sqlite"
	"github.com/zjrosen/bimview/internal/spatialtree"
)

const sampleOutline = `model house
  IFCPROJECT #1
    IFCBUILDINGSTOREY #10
      IFCWALL
        Item 11
        Item 12
      IFCDOOR
        Item 13
      IFCSLAB
        Item 14
    IFCBUILDINGSTOREY #20
      IFCWALL
        Item 21
        Item 22
      IFCWINDOW
        Item 23
`

func TestTree_File(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "tree", env.writeSample(t, "house.frag"))
	require.NoError(t, err)
	require.Equal(t, sampleOutline, out)
}

func TestTree_Search(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "tree", env.writeSample(t, "house.frag"), "--search", "window")
	require.NoError(t, err)
	require.Equal(t, `model house
  IFCPROJECT #1
    IFCBUILDINGSTOREY #20
      IFCWINDOW
        Item 23
`, out)
}

func TestTree_SearchWithoutMatch(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "tree", env.writeSample(t, "house.frag"), "-s", "roof")
	require.ErrorContains(t, err, `nothing matches "roof"`)
}

func TestTree_Diff(t *testing.T) {
	env := newTestEnv(t)
	before := env.writeSample(t, "house.frag")

	s := memengine.SampleSnapshot()
	storey := s.Tree.Children[1]
	storey.Children = append(storey.Children, &spatialtree.Node{
		Category: "IFCDOOR",
		Children: []*spatialtree.Node{{LocalID: spatialtree.ID(24)}},
	})
	s.Elements = append(s.Elements, memengine.Element{LocalID: 24, Type: "IFCDOOR", Name: "Back door"})
	data, err := memengine.EncodeSnapshot(s)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(env.dir, "v2"), 0o700))
	after := filepath.Join(env.dir, "v2", "house.frag")
	require.NoError(t, os.WriteFile(after, data, 0o600))

	out, err := env.run(t, "tree", before, "--diff", after)
	require.NoError(t, err)
	require.Equal(t, "+       IFCDOOR\n+         Item 24\n+2 -0\n", out)
}

func TestTree_LastStoredModel(t *testing.T) {
	env := newTestEnv(t)
	db, err := sqlite.NewDB(env.db)
	require.NoError(t, err)
	require.NoError(t, db.Fragments().Put(context.Background(), sqlite.Record{
		Key:     sqlite.LastKey,
		ModelID: "office",
		Source:  "api:office",
		Data:    memengine.SampleBytes(),
	}))
	require.NoError(t, db.Close())

	out, err := env.run(t, "tree")
	require.NoError(t, err)
	require.Contains(t, out, "model office\n  IFCPROJECT #1\n")
}

func TestTree_NothingStored(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "tree")
	require.ErrorContains(t, err, "no model stored yet")
}

func TestTree_BadFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "broken.frag")
	require.NoError(t, os.WriteFile(path, []byte("not cbor"), 0o600))
	_, err := env.run(t, "tree", path)
	require.ErrorIs(t, err, memengine.ErrBadSnapshot)
}
