package util

type (
	// PathTree indexes values by hierarchical string paths
	PathTree[T any] struct {
		root *pathTreeNode[T]
	}

	pathTreeNode[T any] struct {
		value    T
		hasValue bool
		children map[string]*pathTreeNode[T]
	}
)

// NewPathTree creates a new hierarchical path index
func NewPathTree[T any]() *PathTree[T] {
	return &PathTree[T]{root: newPathTreeNode[T]()}
}

// Insert stores a value at the exact path
func (t *PathTree[T]) Insert(path []string, v T) {
	cur := t.root
	for _, p := range path {
		next, ok := cur.children[p]
		if !ok {
			next = newPathTreeNode[T]()
			cur.children[p] = next
		}
		cur = next
	}
	cur.value = v
	cur.hasValue = true
}

// Get returns the value stored at the exact path
func (t *PathTree[T]) Get(path []string) (T, bool) {
	n := t.root.find(path)
	if n == nil || !n.hasValue {
		var zero T
		return zero, false
	}
	return n.value, true
}

// Remove clears the value at the exact path
func (t *PathTree[T]) Remove(path []string) {
	if len(path) == 0 {
		t.root.clear()
		return
	}
	t.root.remove(path, 0)
}

// Detach removes a prefix subtree and returns its values
func (t *PathTree[T]) Detach(prefix []string) []T {
	var res []T
	t.DetachWith(prefix, func(v T) {
		res = append(res, v)
	})
	return res
}

// DetachWith removes a prefix subtree, calling fn for each removed value
func (t *PathTree[T]) DetachWith(prefix []string, fn func(T)) {
	var n *pathTreeNode[T]
	if len(prefix) == 0 {
		n = t.root
		t.root = newPathTreeNode[T]()
	} else {
		n = t.root.detach(prefix)
	}
	if n != nil {
		n.each(fn)
	}
}

// Count returns the number of values stored under the prefix
func (t *PathTree[T]) Count(prefix []string) int {
	n := t.root.find(prefix)
	if n == nil {
		return 0
	}
	res := 0
	n.each(func(T) { res++ })
	return res
}

func newPathTreeNode[T any]() *pathTreeNode[T] {
	return &pathTreeNode[T]{children: map[string]*pathTreeNode[T]{}}
}

func (n *pathTreeNode[T]) find(path []string) *pathTreeNode[T] {
	cur := n
	for _, p := range path {
		next, ok := cur.children[p]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *pathTreeNode[T]) clear() {
	var zero T
	n.value = zero
	n.hasValue = false
}

func (n *pathTreeNode[T]) remove(path []string, idx int) bool {
	if idx == len(path) {
		n.clear()
		return len(n.children) == 0
	}
	next, ok := n.children[path[idx]]
	if !ok {
		return false
	}
	if next.remove(path, idx+1) {
		delete(n.children, path[idx])
	}
	return !n.hasValue && len(n.children) == 0
}

func (n *pathTreeNode[T]) detach(prefix []string) *pathTreeNode[T] {
	parent := n.find(prefix[:len(prefix)-1])
	if parent == nil {
		return nil
	}
	last := prefix[len(prefix)-1]
	next, ok := parent.children[last]
	if !ok {
		return nil
	}
	delete(parent.children, last)
	return next
}

func (n *pathTreeNode[T]) each(fn func(T)) {
	if n.hasValue {
		fn(n.value)
	}
	for _, child := range n.children {
		child.each(fn)
	}
}
