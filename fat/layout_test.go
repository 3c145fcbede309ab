package fat

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildDirectoriesShortNameOnly(t *testing.T) {
	tree := NewTree()
	when := time.Date(2020, 1, 2, 3, 4, 6, 0, time.Local)
	err := tree.AddFile("hello.txt", "HELLO.TXT", AttrArchive, newFakeFile("hi\n       ", when))
	require.NoError(t, err)

	clusters, lerr := BuildDirectories(tree, "", 512, 12)
	require.Nil(t, lerr)
	require.Equal(t, uint32(1), clusters)

	root := tree.Root
	require.Len(t, root.dirBytes, DirentSize)
	require.Equal(t, "HELLO   TXT", string(root.dirBytes[0:11]))
	require.Equal(t, uint8(AttrArchive), root.dirBytes[11])

	size := binary.LittleEndian.Uint32(root.dirBytes[28:32])
	require.Equal(t, uint32(10), size)
}

func TestBuildDirectoriesLowercaseShortNameGetsCaseFlags(t *testing.T) {
	tree := NewTree()
	err := tree.AddFile("hello.txt", "hello.txt", AttrArchive, newFakeFile("x", time.Now()))
	require.NoError(t, err)

	_, lerr := BuildDirectories(tree, "", 512, 12)
	require.Nil(t, lerr)

	root := tree.Root
	// A uniformly lowercase 8.3-shaped name is already short: one record, no
	// LFN chain, uppercased on disk with the NT lowercase-stem/ext bits set.
	require.Len(t, root.dirBytes, DirentSize)
	require.Equal(t, "HELLO   TXT", string(root.dirBytes[0:11]))
	require.Equal(t, byte(0x18), root.dirBytes[12])
}

func TestBuildDirectoriesLongName(t *testing.T) {
	tree := NewTree()
	when := time.Now()
	err := tree.AddFile("report.txt", "my long report.txt", 0, newFakeFile("x", when))
	require.NoError(t, err)

	_, lerr := BuildDirectories(tree, "", 512, 12)
	require.Nil(t, lerr)

	root := tree.Root
	// Two LFN records (18 chars / 13 = 2 segments) + one short-name record.
	require.Len(t, root.dirBytes, 3*DirentSize)

	firstSeq := root.dirBytes[0]
	require.Equal(t, byte(0x42), firstSeq)
	secondSeq := root.dirBytes[DirentSize]
	require.Equal(t, byte(0x01), secondSeq)

	shortNameRec := root.dirBytes[2*DirentSize : 3*DirentSize]
	require.Equal(t, "MYLONG~1TXT", string(shortNameRec[0:11]))

	checksum := ShortNameChecksum(NormalizeShortName("MYLONG~1.TXT"))
	require.Equal(t, checksum, root.dirBytes[13])
	require.Equal(t, checksum, root.dirBytes[DirentSize+13])
}

func TestBuildDirectoriesVolumeLabel(t *testing.T) {
	tree := NewTree()
	_, lerr := BuildDirectories(tree, "TEST", 512, 12)
	require.Nil(t, lerr)

	root := tree.Root
	require.Len(t, root.dirBytes, DirentSize)
	require.Equal(t, "TEST       ", string(root.dirBytes[0:11]))
	require.Equal(t, uint8(AttrVolumeLabel), root.dirBytes[11])
}

func TestBuildDirectoriesNonRootHasDotEntries(t *testing.T) {
	tree := NewTree()
	err := tree.AddFile("", "sub/file.txt", 0, newFakeFile("data", time.Now()))
	require.NoError(t, err)

	_, lerr := BuildDirectories(tree, "", 512, 12)
	require.Nil(t, lerr)

	sub := tree.Root.Children[0]
	require.True(t, sub.IsDir())
	require.NotZero(t, sub.FirstCluster)

	dotName := make([]byte, 11)
	WriteString(dotName, ".")
	dotDotName := make([]byte, 11)
	WriteString(dotDotName, "..")
	require.Equal(t, string(dotName), string(sub.dirBytes[0:11]))
	require.Equal(t, string(dotDotName), string(sub.dirBytes[DirentSize:DirentSize+11]))

	// "." points at sub's own cluster.
	dotCluster := binary.LittleEndian.Uint16(sub.dirBytes[26:28])
	require.Equal(t, uint16(sub.FirstCluster), dotCluster)

	// ".." points at 0 because sub's parent is the root.
	dotDotCluster := binary.LittleEndian.Uint16(sub.dirBytes[DirentSize+26 : DirentSize+28])
	require.Equal(t, uint16(0), dotDotCluster)
}
