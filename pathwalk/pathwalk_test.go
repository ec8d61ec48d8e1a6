package pathwalk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// node is a minimal in-memory tree used to exercise Find independently of
// any on-disk format.
type node struct {
	name     string
	isDir    bool
	children []node
}

func iterate(dir node, visit func(name string, isDir bool, child node) bool) error {
	for _, c := range dir.children {
		if visit(c.name, c.isDir, c) {
			return nil
		}
	}
	return nil
}

func testTree() node {
	return node{
		name:  ".",
		isDir: true,
		children: []node{
			{name: "etc", isDir: true, children: []node{
				{name: "hosts", isDir: false},
			}},
			{name: "kernel", isDir: false},
		},
	}
}

func TestFindResolvesNestedFile(t *testing.T) {
	found, isDir, err := Find("etc/hosts", testTree(), iterate)
	require.NoError(t, err)
	require.False(t, isDir)
	require.Equal(t, "hosts", found.name)
}

func TestFindResolvesDirectory(t *testing.T) {
	found, isDir, err := Find("etc", testTree(), iterate)
	require.NoError(t, err)
	require.True(t, isDir)
	require.Equal(t, "etc", found.name)
}

func TestFindRoot(t *testing.T) {
	found, isDir, err := Find("", testTree(), iterate)
	require.NoError(t, err)
	require.True(t, isDir)
	require.Equal(t, ".", found.name)
}

func TestFindIgnoresRepeatedSlashes(t *testing.T) {
	found, _, err := Find("//etc//hosts/", testTree(), iterate)
	require.NoError(t, err)
	require.Equal(t, "hosts", found.name)
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	_, _, err := Find("etc/nope", testTree(), iterate)
	require.Error(t, err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestFindThroughFileReturnsNotADirectory(t *testing.T) {
	_, _, err := Find("kernel/nope", testTree(), iterate)
	require.Error(t, err)
	var nd *NotADirectoryError
	require.True(t, errors.As(err, &nd))
}
