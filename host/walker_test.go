package host

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chasonr/genfatimage/fat"
)

func TestAddPathSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi\n"), 0o644))

	tree := fat.NewTree()
	err := AddPath(tree, path, "HELLO.TXT", fat.AttrArchive)
	require.Nil(t, err)
	require.Len(t, tree.Root.Children, 1)
	require.Equal(t, "HELLO.TXT", tree.Root.Children[0].Name)
	require.EqualValues(t, 3, tree.Root.Children[0].FileSize)
}

func TestAddPathDirectoryTree(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "a.txt"), []byte("x"), 0o644))

	tree := fat.NewTree()
	err := AddPath(tree, dir, "top", 0)
	require.Nil(t, err)

	top := tree.Root.Children[0]
	require.True(t, top.IsDir())
	require.Equal(t, "top", top.Name)

	sub := top.Children[0]
	require.True(t, sub.IsDir())
	require.Len(t, sub.Children, 1)
	require.Equal(t, "a.txt", sub.Children[0].Name)
}
