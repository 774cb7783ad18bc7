package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/wireflow/pkg/util"
)

func TestPathTreeRemovePrunes(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"node", "a", "t", "1"}, 1)
	tree.Insert([]string{"node", "a", "t", "2"}, 2)

	tree.Remove([]string{"node", "a", "t", "1"})

	vals := tree.Detach([]string{"node", "a", "t", "1"})
	assert.Nil(t, vals)

	vals = tree.Detach([]string{"node", "a"})
	assert.Equal(t, []int{2}, vals)
}

func TestPathTreeDetachPrunesPrefix(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"node", "n1", "t", "1"}, 1)
	tree.Insert([]string{"node", "n1", "t", "2"}, 2)
	tree.Insert([]string{"node", "n2", "t", "1"}, 3)

	vals := tree.Detach([]string{"node", "n1"})
	assert.ElementsMatch(t, []int{1, 2}, vals)

	vals = tree.Detach([]string{"node", "n1"})
	assert.Nil(t, vals)

	vals = tree.Detach([]string{"node"})
	assert.Equal(t, []int{3}, vals)
	assert.Equal(t, 0, tree.Count(nil))
}

func TestPathTreeGetAndCount(t *testing.T) {
	tree := util.NewPathTree[string]()
	tree.Insert([]string{"x"}, "one")
	tree.Insert([]string{"x"}, "two")
	tree.Insert([]string{"x", "y"}, "z")

	v, ok := tree.Get([]string{"x"})
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = tree.Get([]string{"missing"})
	assert.False(t, ok)

	assert.Equal(t, 2, tree.Count([]string{"x"}))
	assert.Equal(t, 1, tree.Count([]string{"x", "y"}))
	assert.Equal(t, 0, tree.Count([]string{"q"}))
}

func TestPathTreeDetachWithRoot(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"a"}, 1)
	tree.Insert([]string{"b", "c"}, 2)

	sum := 0
	tree.DetachWith(nil, func(v int) { sum += v })
	assert.Equal(t, 3, sum)
	assert.Equal(t, 0, tree.Count(nil))
}
