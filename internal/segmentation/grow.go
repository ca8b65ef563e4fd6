package segmentation

import (
	"fmt"
	"math"

	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
)

// Engine performs edge-triggered region growth.
// It holds only validated options and is safe for concurrent use.
type Engine struct {
	opts GrowOptions
}

// NewEngine validates opts once and returns a reusable engine.
func NewEngine(opts GrowOptions) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts}, nil
}

// Options returns the engine's configuration.
func (e *Engine) Options() GrowOptions { return e.opts }

var (
	offsets4 = []Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	offsets8 = []Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// Segment labels the regions enclosed by edges.
//
// # Algorithm
//
//  1. Chessboard distance from every pixel to the nearest edge pixel.
//  2. Seeds are non-edge pixels at distance >= max(MinSeedGap, 1); connected
//     seed pixels form one seed region each.
//  3. All seed regions grow together one layer at a time and never enter
//     edge pixels. A pixel reached in the same layer by two different regions
//     becomes a ridge and stays 0, so regions that meet through a narrow gap
//     stay separate.
//  4. Non-edge areas that contained no seed become regions of their own.
//  5. Labels are renumbered by first appearance in raster order.
//
// Work-lists replace recursion throughout; memory is linear in the pixel
// count.
//
// # Errors
//
//   - *SegmentationError when the edge map's dimensions differ from img
//   - *SegmentationError wrapping ErrIterationLimit when the run needs more
//     than MaxIterations pixel visits
//   - *InvalidImageError for an empty image
func (e *Engine) Segment(img *imaging.Image, edges *EdgeMap) (*LabelMap, error) {
	if img == nil || edges == nil {
		return nil, &SegmentationError{Op: "segment", Reason: "nil image or edge map"}
	}
	if img.Width() == 0 || img.Height() == 0 {
		return nil, &InvalidImageError{Reason: fmt.Sprintf("empty image %dx%d", img.Width(), img.Height())}
	}
	if edges.width != img.Width() || edges.height != img.Height() {
		return nil, &SegmentationError{
			Op: "segment",
			Reason: fmt.Sprintf("edge map is %dx%d but image is %dx%d",
				edges.width, edges.height, img.Width(), img.Height()),
		}
	}

	g := newGrower(edges, e.opts)
	if err := g.run(); err != nil {
		return nil, err
	}
	return g.labelMap(), nil
}

type grower struct {
	width, height int
	edge          []bool
	labels        []int32
	ridge         []bool
	offsets       []Point
	seedGap       int
	budget        int
	steps         int
	next          int32
}

func newGrower(edges *EdgeMap, opts GrowOptions) *grower {
	n := edges.width * edges.height
	budget := opts.MaxIterations
	if budget == 0 {
		budget = 32 * n
	}
	offsets := offsets4
	if opts.Connectivity == Connectivity8 {
		offsets = offsets8
	}
	gap := opts.MinSeedGap
	if gap < 1 {
		gap = 1
	}
	return &grower{
		width:   edges.width,
		height:  edges.height,
		edge:    edges.edges,
		labels:  make([]int32, n),
		ridge:   make([]bool, n),
		offsets: offsets,
		seedGap: gap,
		budget:  budget,
		next:    1,
	}
}

// visit charges one pixel visit against the iteration guard.
func (g *grower) visit() error {
	g.steps++
	if g.steps > g.budget {
		return &SegmentationError{
			Op:     "segment",
			Reason: fmt.Sprintf("exceeded %d pixel visits", g.budget),
			Err:    ErrIterationLimit,
		}
	}
	return nil
}

func (g *grower) run() error {
	dist, err := g.distances()
	if err != nil {
		return err
	}
	frontier, err := g.labelSeeds(dist)
	if err != nil {
		return err
	}
	if err := g.grow(frontier); err != nil {
		return err
	}
	if err := g.labelUnreached(); err != nil {
		return err
	}
	g.canonicalize()
	return nil
}

// distances computes chessboard distance to the nearest edge, capped at the
// seed gap since larger values are never needed.
func (g *grower) distances() ([]int, error) {
	dist := make([]int, len(g.edge))
	queue := make([]int, 0, len(g.edge)/8+1)
	for i, e := range g.edge {
		if e {
			queue = append(queue, i)
		} else {
			dist[i] = math.MaxInt32
		}
	}
	for head := 0; head < len(queue); head++ {
		if err := g.visit(); err != nil {
			return nil, err
		}
		i := queue[head]
		if dist[i] >= g.seedGap {
			continue
		}
		x, y := i%g.width, i/g.width
		for _, o := range offsets8 {
			nx, ny := x+o.X, y+o.Y
			if nx < 0 || nx >= g.width || ny < 0 || ny >= g.height {
				continue
			}
			j := ny*g.width + nx
			if dist[j] == math.MaxInt32 {
				dist[j] = dist[i] + 1
				queue = append(queue, j)
			}
		}
	}
	return dist, nil
}

// labelSeeds floods each connected seed area with a new label and returns
// every seed pixel as the initial growth frontier.
func (g *grower) labelSeeds(dist []int) ([]int, error) {
	isSeed := func(i int) bool { return !g.edge[i] && dist[i] >= g.seedGap }
	frontier := make([]int, 0)
	for i := range g.labels {
		if g.labels[i] != 0 || !isSeed(i) {
			continue
		}
		members, err := g.flood(i, isSeed)
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, members...)
	}
	return frontier, nil
}

// flood assigns the next label to the connected area around start in which
// accept holds, using an explicit stack.
func (g *grower) flood(start int, accept func(i int) bool) ([]int, error) {
	label := g.next
	g.next++
	g.labels[start] = label
	members := []int{start}
	stack := []int{start}
	for len(stack) > 0 {
		if err := g.visit(); err != nil {
			return nil, err
		}
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%g.width, i/g.width
		for _, o := range g.offsets {
			nx, ny := x+o.X, y+o.Y
			if nx < 0 || nx >= g.width || ny < 0 || ny >= g.height {
				continue
			}
			j := ny*g.width + nx
			if g.labels[j] == 0 && !g.ridge[j] && accept(j) {
				g.labels[j] = label
				members = append(members, j)
				stack = append(stack, j)
			}
		}
	}
	return members, nil
}

// grow expands all labelled regions in lock-step. Candidates of one layer
// are resolved against labels from earlier layers only, which makes the
// result independent of frontier order.
func (g *grower) grow(frontier []int) error {
	stamp := make([]int32, len(g.labels))
	var layer int32
	candidates := make([]int, 0, len(frontier))
	assigned := make([]int32, 0, len(frontier))

	for len(frontier) > 0 {
		layer++
		candidates = candidates[:0]
		for _, i := range frontier {
			x, y := i%g.width, i/g.width
			for _, o := range g.offsets {
				nx, ny := x+o.X, y+o.Y
				if nx < 0 || nx >= g.width || ny < 0 || ny >= g.height {
					continue
				}
				j := ny*g.width + nx
				if g.labels[j] == 0 && !g.edge[j] && !g.ridge[j] && stamp[j] != layer {
					stamp[j] = layer
					candidates = append(candidates, j)
				}
			}
		}

		assigned = assigned[:0]
		for _, j := range candidates {
			if err := g.visit(); err != nil {
				return err
			}
			assigned = append(assigned, g.claim(j))
		}

		next := make([]int, 0, len(candidates))
		for k, j := range candidates {
			if assigned[k] < 0 {
				g.ridge[j] = true
				continue
			}
			g.labels[j] = assigned[k]
			next = append(next, j)
		}
		frontier = next
	}
	return nil
}

// claim returns the single label adjacent to pixel i, or -1 when
// neighbours carry different labels.
func (g *grower) claim(i int) int32 {
	x, y := i%g.width, i/g.width
	var label int32
	for _, o := range g.offsets {
		nx, ny := x+o.X, y+o.Y
		if nx < 0 || nx >= g.width || ny < 0 || ny >= g.height {
			continue
		}
		l := g.labels[ny*g.width+nx]
		if l == 0 {
			continue
		}
		if label == 0 {
			label = l
		} else if l != label {
			return -1
		}
	}
	return label
}

// labelUnreached gives seedless non-edge areas their own labels.
func (g *grower) labelUnreached() error {
	open := func(i int) bool { return !g.edge[i] }
	for i := range g.labels {
		if g.labels[i] != 0 || g.edge[i] || g.ridge[i] {
			continue
		}
		if _, err := g.flood(i, open); err != nil {
			return err
		}
	}
	return nil
}

// canonicalize renumbers labels by first appearance in raster order.
func (g *grower) canonicalize() {
	remap := make([]int32, g.next)
	var count int32
	for i, l := range g.labels {
		if l == 0 {
			continue
		}
		if remap[l] == 0 {
			count++
			remap[l] = count
		}
		g.labels[i] = remap[l]
	}
	g.next = count + 1
}

func (g *grower) labelMap() *LabelMap {
	return &LabelMap{
		width:  g.width,
		height: g.height,
		labels: g.labels,
		count:  int(g.next - 1),
	}
}
