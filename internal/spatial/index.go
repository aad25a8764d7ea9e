package spatial

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// Index answers radius queries over a frozen set of positions.
// Ids returned by queries are the positions' slice indices.
type Index struct {
	bounds    Bounds
	positions []Vec2
	tree      *kdtree.Tree
}

// Build constructs an index over positions. The positions slice is copied,
// so later mutation by the caller does not affect the index.
func Build(bounds Bounds, positions []Vec2) *Index {
	ix := &Index{
		bounds:    bounds,
		positions: append([]Vec2(nil), positions...),
	}
	if len(positions) == 0 {
		return ix
	}

	pts := make(points, len(positions))
	for i, p := range positions {
		pts[i] = point{id: i, x: p.X, y: p.Y}
	}
	ix.tree = kdtree.New(pts, false)
	return ix
}

// Len returns the number of indexed positions.
func (ix *Index) Len() int { return len(ix.positions) }

// Bounds returns the domain the index was built for.
func (ix *Index) Bounds() Bounds { return ix.bounds }

// QueryRadius returns the ids of all positions within radius of p, measured
// with toroidal distance, in ascending id order.
func (ix *Index) QueryRadius(p Vec2, radius float64) []int {
	if ix == nil || len(ix.positions) == 0 || radius < 0 || math.IsNaN(radius) {
		return []int{}
	}

	// A disc spanning half the domain sees every image anyway.
	if 2*radius >= math.Min(ix.bounds.Width, ix.bounds.Height) {
		return ix.scan(p, radius)
	}

	seen := make(map[int]struct{})
	for _, q := range ix.images(p, radius) {
		keep := kdtree.NewDistKeeper(radius * radius)
		ix.tree.NearestSet(keep, point{id: -1, x: q.X, y: q.Y})
		for _, c := range keep.Heap {
			if c.Comparable == nil {
				continue
			}
			seen[c.Comparable.(point).id] = struct{}{}
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (ix *Index) scan(p Vec2, radius float64) []int {
	ids := []int{}
	for i, q := range ix.positions {
		if ix.bounds.Distance(p, q) <= radius {
			ids = append(ids, i)
		}
	}
	return ids
}

// images returns p plus its translated copies for every domain edge the
// query disc crosses.
func (ix *Index) images(p Vec2, radius float64) []Vec2 {
	xs := []float64{0}
	if p.X-radius < 0 {
		xs = append(xs, ix.bounds.Width)
	}
	if p.X+radius >= ix.bounds.Width {
		xs = append(xs, -ix.bounds.Width)
	}
	ys := []float64{0}
	if p.Y-radius < 0 {
		ys = append(ys, ix.bounds.Height)
	}
	if p.Y+radius >= ix.bounds.Height {
		ys = append(ys, -ix.bounds.Height)
	}

	out := make([]Vec2, 0, len(xs)*len(ys))
	for _, dx := range xs {
		for _, dy := range ys {
			out = append(out, Vec2{X: p.X + dx, Y: p.Y + dy})
		}
	}
	return out
}

// point is a kd-tree entry that remembers which agent it came from.
type point struct {
	id   int
	x, y float64
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p point) Dims() int { return 2 }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type points []point

func (p points) Index(i int) kdtree.Comparable        { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Pivot(d kdtree.Dim) int                { return plane{dim: d, points: p}.Pivot() }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts points along one dimension for median partitioning.
type plane struct {
	dim kdtree.Dim
	points
}

func (p plane) Less(i, j int) bool {
	if p.dim == 0 {
		return p.points[i].x < p.points[j].x
	}
	return p.points[i].y < p.points[j].y
}

func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.points = p.points[start:end]
	return p
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
