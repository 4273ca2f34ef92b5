// Package boxtree implements a balanced bounding-box tree (R-tree family)
// over opaque values. Bulk loading uses sort-tile-recursive packing to
// keep node occupancy even; single inserts split overflowing nodes along
// the wider axis.
package boxtree

import (
	"math"
	"sort"

	"github.com/veilgeo/veilgeo/geomodel"
)

const DefaultMaxEntries = 9

type Item[T comparable] struct {
	Box   geomodel.Box
	Value T
}

type node[T comparable] struct {
	leaf     bool
	box      geomodel.Box
	children []*node[T]
	items    []Item[T]
}

type Tree[T comparable] struct {
	maxEntries int
	minEntries int

	root *node[T]
	size int
}

func New[T comparable](maxEntries int) *Tree[T] {
	if maxEntries < 4 {
		maxEntries = DefaultMaxEntries
	}
	minEntries := int(math.Ceil(float64(maxEntries) * 0.4))
	return &Tree[T]{
		maxEntries: maxEntries,
		minEntries: minEntries,
	}
}

func (t *Tree[T]) Len() int { return t.size }

func (t *Tree[T]) Clear() {
	t.root = nil
	t.size = 0
}

// NodeCount returns the number of tree nodes, leaves included.
func (t *Tree[T]) NodeCount() int {
	return countNodes(t.root)
}

func countNodes[T comparable](n *node[T]) int {
	if n == nil {
		return 0
	}
	count := 1
	for _, c := range n.children {
		count += countNodes(c)
	}
	return count
}

// Search calls fn for every stored item whose box intersects query,
// boundaries included. Returning false from fn stops the walk.
func (t *Tree[T]) Search(query geomodel.Box, fn func(geomodel.Box, T) bool) {
	searchNode(t.root, query, fn)
}

func searchNode[T comparable](n *node[T], query geomodel.Box, fn func(geomodel.Box, T) bool) bool {
	if n == nil || !n.box.Intersects(query) {
		return true
	}
	if n.leaf {
		for _, it := range n.items {
			if it.Box.Intersects(query) {
				if !fn(it.Box, it.Value) {
					return false
				}
			}
		}
		return true
	}
	for _, c := range n.children {
		if !searchNode(c, query, fn) {
			return false
		}
	}
	return true
}

// All walks every stored item.
func (t *Tree[T]) All(fn func(geomodel.Box, T) bool) {
	t.Search(geomodel.Box{
		MinX: math.Inf(-1), MinY: math.Inf(-1),
		MaxX: math.Inf(1), MaxY: math.Inf(1),
	}, fn)
}

// Insert adds one item, splitting nodes on the way up as needed.
func (t *Tree[T]) Insert(box geomodel.Box, value T) {
	t.insertItem(Item[T]{Box: box, Value: value})
	t.size++
}

func (t *Tree[T]) insertItem(it Item[T]) {
	if t.root == nil {
		t.root = &node[T]{leaf: true, box: it.Box, items: []Item[T]{it}}
		return
	}
	sibling := t.insertNode(t.root, it)
	if sibling != nil {
		t.root = &node[T]{
			box:      t.root.box.Extend(sibling.box),
			children: []*node[T]{t.root, sibling},
		}
	}
}

// insertNode descends to a leaf and returns a new sibling if n had to
// split.
func (t *Tree[T]) insertNode(n *node[T], it Item[T]) *node[T] {
	n.box = n.box.Extend(it.Box)

	if n.leaf {
		n.items = append(n.items, it)
		if len(n.items) > t.maxEntries {
			return t.splitLeaf(n)
		}
		return nil
	}

	best := chooseSubtree(n.children, it.Box)
	sibling := t.insertNode(best, it)
	if sibling != nil {
		n.children = append(n.children, sibling)
		if len(n.children) > t.maxEntries {
			return t.splitInner(n)
		}
	}
	return nil
}

// chooseSubtree picks the child needing the least area enlargement,
// breaking ties by smaller area.
func chooseSubtree[T comparable](children []*node[T], box geomodel.Box) *node[T] {
	best := children[0]
	bestEnlargement := math.Inf(1)
	bestArea := math.Inf(1)
	for _, c := range children {
		area := c.box.Area()
		enlargement := c.box.Extend(box).Area() - area
		if enlargement < bestEnlargement ||
			(enlargement == bestEnlargement && area < bestArea) {
			best = c
			bestEnlargement = enlargement
			bestArea = area
		}
	}
	return best
}

func (t *Tree[T]) splitLeaf(n *node[T]) *node[T] {
	sortItemsByWiderAxis(n.items)
	mid := len(n.items) / 2
	right := append([]Item[T]{}, n.items[mid:]...)
	n.items = n.items[:mid]
	n.box = itemsBox(n.items)
	return &node[T]{leaf: true, box: itemsBox(right), items: right}
}

func (t *Tree[T]) splitInner(n *node[T]) *node[T] {
	sortNodesByWiderAxis(n.children)
	mid := len(n.children) / 2
	right := append([]*node[T]{}, n.children[mid:]...)
	n.children = n.children[:mid]
	n.box = childrenBox(n.children)
	return &node[T]{box: childrenBox(right), children: right}
}

// Remove deletes the item with the given value whose box intersects box.
// It reports whether anything was removed. Underfull leaves left behind
// are dissolved and their remaining items reinserted.
func (t *Tree[T]) Remove(box geomodel.Box, value T) bool {
	if t.root == nil {
		return false
	}
	var orphans []Item[T]
	removed := t.removeNode(t.root, box, value, &orphans)
	if !removed {
		return false
	}
	t.size--
	if !t.root.leaf && len(t.root.children) == 1 {
		t.root = t.root.children[0]
	}
	if t.root.leaf && len(t.root.items) == 0 {
		t.root = nil
	}
	for _, it := range orphans {
		t.insertItem(it)
	}
	return true
}

func (t *Tree[T]) removeNode(n *node[T], box geomodel.Box, value T, orphans *[]Item[T]) bool {
	if !n.box.Intersects(box) {
		return false
	}
	if n.leaf {
		for i, it := range n.items {
			if it.Value == value {
				n.items = append(n.items[:i], n.items[i+1:]...)
				n.box = itemsBox(n.items)
				return true
			}
		}
		return false
	}

	for i, c := range n.children {
		if !t.removeNode(c, box, value, orphans) {
			continue
		}
		if underfull(c, t.minEntries) {
			collectItems(c, orphans)
			n.children = append(n.children[:i], n.children[i+1:]...)
		}
		n.box = childrenBox(n.children)
		return true
	}
	return false
}

func underfull[T comparable](n *node[T], minEntries int) bool {
	if n.leaf {
		return len(n.items) < minEntries
	}
	return len(n.children) < minEntries
}

func collectItems[T comparable](n *node[T], out *[]Item[T]) {
	if n.leaf {
		*out = append(*out, n.items...)
		return
	}
	for _, c := range n.children {
		collectItems(c, out)
	}
}

// Load replaces the tree contents with a bulk STR-packed build. For n
// items this is one sort pass per level instead of n splits, and leaves
// come out evenly filled.
func (t *Tree[T]) Load(items []Item[T]) {
	t.Clear()
	if len(items) == 0 {
		return
	}

	leaves := t.packLeaves(append([]Item[T]{}, items...))
	level := leaves
	for len(level) > 1 {
		level = t.packNodes(level)
	}
	t.root = level[0]
	t.size = len(items)
}

func (t *Tree[T]) packLeaves(items []Item[T]) []*node[T] {
	slabs := strSlabs(len(items), t.maxEntries)
	sort.Slice(items, func(i, j int) bool {
		return centerX(items[i].Box) < centerX(items[j].Box)
	})

	var leaves []*node[T]
	for _, slab := range tile(len(items), slabs) {
		chunk := items[slab[0]:slab[1]]
		sort.Slice(chunk, func(i, j int) bool {
			return centerY(chunk[i].Box) < centerY(chunk[j].Box)
		})
		for len(chunk) > 0 {
			n := t.maxEntries
			if n > len(chunk) {
				n = len(chunk)
			}
			leaf := append([]Item[T]{}, chunk[:n]...)
			leaves = append(leaves, &node[T]{leaf: true, box: itemsBox(leaf), items: leaf})
			chunk = chunk[n:]
		}
	}
	return leaves
}

func (t *Tree[T]) packNodes(level []*node[T]) []*node[T] {
	slabs := strSlabs(len(level), t.maxEntries)
	sort.Slice(level, func(i, j int) bool {
		return centerX(level[i].box) < centerX(level[j].box)
	})

	var parents []*node[T]
	for _, slab := range tile(len(level), slabs) {
		chunk := level[slab[0]:slab[1]]
		sort.Slice(chunk, func(i, j int) bool {
			return centerY(chunk[i].box) < centerY(chunk[j].box)
		})
		for len(chunk) > 0 {
			n := t.maxEntries
			if n > len(chunk) {
				n = len(chunk)
			}
			children := append([]*node[T]{}, chunk[:n]...)
			parents = append(parents, &node[T]{box: childrenBox(children), children: children})
			chunk = chunk[n:]
		}
	}
	return parents
}

// strSlabs is the vertical slab count of the STR packing: ceil(sqrt(P))
// for P packed nodes.
func strSlabs(n, maxEntries int) int {
	p := int(math.Ceil(float64(n) / float64(maxEntries)))
	return int(math.Ceil(math.Sqrt(float64(p))))
}

// tile splits [0,n) into count near-equal half-open ranges.
func tile(n, count int) [][2]int {
	size := int(math.Ceil(float64(n) / float64(count)))
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func centerX(b geomodel.Box) float64 { return (b.MinX + b.MaxX) / 2 }
func centerY(b geomodel.Box) float64 { return (b.MinY + b.MaxY) / 2 }

func itemsBox[T comparable](items []Item[T]) geomodel.Box {
	if len(items) == 0 {
		return geomodel.Box{}
	}
	box := items[0].Box
	for _, it := range items[1:] {
		box = box.Extend(it.Box)
	}
	return box
}

func childrenBox[T comparable](children []*node[T]) geomodel.Box {
	if len(children) == 0 {
		return geomodel.Box{}
	}
	box := children[0].box
	for _, c := range children[1:] {
		box = box.Extend(c.box)
	}
	return box
}

func sortItemsByWiderAxis[T comparable](items []Item[T]) {
	box := itemsBox(items)
	byX := (box.MaxX - box.MinX) >= (box.MaxY - box.MinY)
	sort.Slice(items, func(i, j int) bool {
		if byX {
			return centerX(items[i].Box) < centerX(items[j].Box)
		}
		return centerY(items[i].Box) < centerY(items[j].Box)
	})
}

func sortNodesByWiderAxis[T comparable](nodes []*node[T]) {
	box := childrenBox(nodes)
	byX := (box.MaxX - box.MinX) >= (box.MaxY - box.MinY)
	sort.Slice(nodes, func(i, j int) bool {
		if byX {
			return centerX(nodes[i].box) < centerX(nodes[j].box)
		}
		return centerY(nodes[i].box) < centerY(nodes[j].box)
	})
}
