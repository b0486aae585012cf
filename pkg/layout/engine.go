// Package layout computes deterministic node placements for graph canvases.
// The engine mirrors the UI's auto-layout: same inputs, same algorithm, same
// seed and iteration preset produce the same positions on both sides of the
// bridge.
package layout

import (
	"math"
	"math/rand"
)

// Algorithm selects a placement strategy.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmForce        Algorithm = "force"
	AlgorithmHierarchical Algorithm = "hierarchical"
	AlgorithmRadial       Algorithm = "radial"
	AlgorithmLinear       Algorithm = "linear"
)

// Layout modes.
const (
	ModeFull    = "full"
	ModePartial = "partial"
	ModeAuto    = "auto"
)

// Placement presets shared with the UI. Changing any of these breaks
// bit-for-bit parity with the canvas auto-layout button.
const (
	forceSeed       = 42
	forceIterations = 300

	minNodeWidth    = 160.0
	nodeHeight      = 100.0
	tallNodeHeight  = 140.0
	tallLabelRunes  = 30
	charWidth       = 12.0
	minCanvas       = 2000.0
	canvasPerNode   = 400.0
	minPadding      = 300.0
	horizontalGap   = 60.0
	verticalGap     = 120.0
	ringGap         = 360.0
	partialRingBase = 420.0
)

// Point is one computed position (node center).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a layout input: an instance id plus the label used for size
// estimation.
type Node struct {
	ID     string
	Label  string
	Width  float64
	Height float64
}

// Edge is a layout input connection.
type Edge struct {
	SourceID      string
	DestinationID string
}

// Options tunes one layout run.
type Options struct {
	Mode string // full or partial; auto is resolved by the caller

	// Existing holds current positions. In partial mode they are preserved
	// and anchor the new nodes; in full mode they are ignored.
	Existing map[string]Point

	// Reserved canvas regions (left panel, header, right panel).
	ReservedLeft  float64
	ReservedTop   float64
	ReservedRight float64

	Padding float64
}

// Settings is the engine preset surface exposed to the UI so both sides can
// verify they agree.
type Settings struct {
	Seed           int      `json:"seed"`
	Iterations     int      `json:"iterations"`
	MinNodeWidth   float64  `json:"minNodeWidth"`
	NodeHeight     float64  `json:"nodeHeight"`
	TallNodeHeight float64  `json:"tallNodeHeight"`
	MinCanvas      float64  `json:"minCanvas"`
	CanvasPerNode  float64  `json:"canvasPerNode"`
	MinPadding     float64  `json:"minPadding"`
	Algorithms     []string `json:"algorithms"`
}

// Engine computes placements. Stateless; safe for concurrent use.
type Engine struct{}

// NewEngine returns the layout engine.
func NewEngine() *Engine { return &Engine{} }

// CurrentSettings returns the preset surface for the layout-settings endpoint.
func (e *Engine) CurrentSettings() Settings {
	return Settings{
		Seed:           forceSeed,
		Iterations:     forceIterations,
		MinNodeWidth:   minNodeWidth,
		NodeHeight:     nodeHeight,
		TallNodeHeight: tallNodeHeight,
		MinCanvas:      minCanvas,
		CanvasPerNode:  canvasPerNode,
		MinPadding:     minPadding,
		Algorithms: []string{
			string(AlgorithmForce), string(AlgorithmHierarchical),
			string(AlgorithmRadial), string(AlgorithmLinear),
		},
	}
}

// EstimateSize fills in node dimensions from the label: minimum width 160,
// height 100, or 140 for labels longer than 30 characters.
func EstimateSize(label string) (width, height float64) {
	width = math.Max(minNodeWidth, float64(len([]rune(label)))*charWidth)
	height = nodeHeight
	if len([]rune(label)) > tallLabelRunes {
		height = tallNodeHeight
	}
	return width, height
}

// CanvasSize returns the dynamic canvas edge for n nodes.
func CanvasSize(n int) float64 {
	return math.Max(minCanvas, math.Sqrt(float64(n))*canvasPerNode)
}

// ResolveMode maps the auto layout mode: full for an empty target graph,
// partial when an anchor cluster already exists.
func ResolveMode(mode string, existingCount int) string {
	if mode == ModeAuto || mode == "" {
		if existingCount == 0 {
			return ModeFull
		}
		return ModePartial
	}
	return mode
}

// Compute places the given nodes. Full mode lays out every node and
// recenters the result on (0,0); partial mode leaves nodes present in
// opts.Existing untouched and returns positions only for the new ones,
// arranged around the existing cluster's centroid.
func (e *Engine) Compute(nodes []Node, edges []Edge, algorithm Algorithm, opts Options) map[string]Point {
	if len(nodes) == 0 {
		return map[string]Point{}
	}
	for i := range nodes {
		if nodes[i].Width == 0 || nodes[i].Height == 0 {
			nodes[i].Width, nodes[i].Height = EstimateSize(nodes[i].Label)
		}
	}
	if opts.Padding < minPadding {
		opts.Padding = minPadding
	}

	if opts.Mode == ModePartial && len(opts.Existing) > 0 {
		return e.computePartial(nodes, opts)
	}

	var positions map[string]Point
	switch algorithm {
	case AlgorithmHierarchical:
		positions = layoutHierarchical(nodes, edges)
	case AlgorithmRadial:
		positions = layoutRadial(nodes, edges)
	case AlgorithmLinear:
		positions = layoutLinear(nodes)
	default:
		positions = layoutForce(nodes, edges, opts)
	}

	recenter(nodes, positions)
	clampToCanvas(nodes, positions, opts.Padding)
	applyReserved(nodes, positions, opts)
	return positions
}

// computePartial keeps existing positions and rings the new nodes around
// the existing cluster's centroid, far enough out not to overlap it.
func (e *Engine) computePartial(nodes []Node, opts Options) map[string]Point {
	var cx, cy, maxR float64
	for _, p := range opts.Existing {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(opts.Existing))
	cx /= n
	cy /= n
	for _, p := range opts.Existing {
		r := math.Hypot(p.X-cx, p.Y-cy)
		if r > maxR {
			maxR = r
		}
	}

	fresh := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if _, ok := opts.Existing[node.ID]; !ok {
			fresh = append(fresh, node)
		}
	}

	positions := make(map[string]Point, len(fresh))
	radius := maxR + partialRingBase
	step := 2 * math.Pi / math.Max(float64(len(fresh)), 1)
	for i, node := range fresh {
		angle := float64(i) * step
		positions[node.ID] = Point{
			X: cx + radius*math.Cos(angle),
			Y: cy + radius*math.Sin(angle),
		}
	}
	return positions
}

// layoutForce is a seeded Fruchterman–Reingold pass with a fixed iteration
// preset and linear cooling.
func layoutForce(nodes []Node, edges []Edge, opts Options) map[string]Point {
	rng := rand.New(rand.NewSource(forceSeed))
	canvas := CanvasSize(len(nodes))
	area := canvas * canvas
	k := math.Sqrt(area / float64(len(nodes)))

	idx := make(map[string]int, len(nodes))
	pos := make([]Point, len(nodes))
	for i, node := range nodes {
		idx[node.ID] = i
		// Deterministic scatter inside the inner canvas.
		pos[i] = Point{
			X: (rng.Float64() - 0.5) * canvas / 2,
			Y: (rng.Float64() - 0.5) * canvas / 2,
		}
	}

	disp := make([]Point, len(nodes))
	temp := canvas / 10
	cool := temp / float64(forceIterations+1)

	for iter := 0; iter < forceIterations; iter++ {
		for i := range disp {
			disp[i] = Point{}
		}
		// Repulsion between every pair.
		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				dx := pos[i].X - pos[j].X
				dy := pos[i].Y - pos[j].Y
				dist := math.Hypot(dx, dy)
				if dist < 0.01 {
					dist = 0.01
					dx = 0.01
				}
				f := k * k / dist
				disp[i].X += dx / dist * f
				disp[i].Y += dy / dist * f
				disp[j].X -= dx / dist * f
				disp[j].Y -= dy / dist * f
			}
		}
		// Attraction along edges.
		for _, e := range edges {
			si, ok1 := idx[e.SourceID]
			di, ok2 := idx[e.DestinationID]
			if !ok1 || !ok2 {
				continue
			}
			dx := pos[si].X - pos[di].X
			dy := pos[si].Y - pos[di].Y
			dist := math.Hypot(dx, dy)
			if dist < 0.01 {
				continue
			}
			f := dist * dist / k
			disp[si].X -= dx / dist * f
			disp[si].Y -= dy / dist * f
			disp[di].X += dx / dist * f
			disp[di].Y += dy / dist * f
		}
		// Displace, capped by temperature.
		for i := range nodes {
			d := math.Hypot(disp[i].X, disp[i].Y)
			if d < 0.01 {
				continue
			}
			limited := math.Min(d, temp)
			pos[i].X += disp[i].X / d * limited
			pos[i].Y += disp[i].Y / d * limited
		}
		temp -= cool
	}

	out := make(map[string]Point, len(nodes))
	for i, node := range nodes {
		out[node.ID] = pos[i]
	}
	return out
}

// layoutHierarchical stacks BFS layers from the roots (in-degree zero;
// falls back to the first node for pure cycles).
func layoutHierarchical(nodes []Node, edges []Edge) map[string]Point {
	layers := bfsLayers(nodes, edges)

	out := make(map[string]Point, len(nodes))
	y := 0.0
	for _, layer := range layers {
		rowWidth := 0.0
		rowHeight := 0.0
		for _, node := range layer {
			rowWidth += node.Width + horizontalGap
			rowHeight = math.Max(rowHeight, node.Height)
		}
		x := -rowWidth / 2
		for _, node := range layer {
			out[node.ID] = Point{X: x + node.Width/2, Y: y}
			x += node.Width + horizontalGap
		}
		y += rowHeight + verticalGap
	}
	return out
}

// layoutRadial rings nodes by BFS depth around the highest-degree node.
func layoutRadial(nodes []Node, edges []Edge) map[string]Point {
	depths := radialDepths(nodes, edges)

	rings := make(map[int][]Node)
	maxDepth := 0
	for _, node := range nodes {
		d := depths[node.ID]
		rings[d] = append(rings[d], node)
		if d > maxDepth {
			maxDepth = d
		}
	}

	out := make(map[string]Point, len(nodes))
	for depth := 0; depth <= maxDepth; depth++ {
		ring := rings[depth]
		if len(ring) == 0 {
			continue
		}
		if depth == 0 {
			for _, node := range ring {
				out[node.ID] = Point{}
			}
			continue
		}
		radius := float64(depth) * ringGap
		step := 2 * math.Pi / float64(len(ring))
		for i, node := range ring {
			angle := float64(i) * step
			out[node.ID] = Point{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
		}
	}
	return out
}

// layoutLinear places nodes on one row in input order.
func layoutLinear(nodes []Node) map[string]Point {
	total := 0.0
	for _, node := range nodes {
		total += node.Width + horizontalGap
	}
	out := make(map[string]Point, len(nodes))
	x := -total / 2
	for _, node := range nodes {
		out[node.ID] = Point{X: x + node.Width/2, Y: 0}
		x += node.Width + horizontalGap
	}
	return out
}

// recenter shifts the layout so its bounding-box center sits on (0,0).
func recenter(nodes []Node, positions map[string]Point) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, node := range nodes {
		p := positions[node.ID]
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	for _, node := range nodes {
		p := positions[node.ID]
		positions[node.ID] = Point{X: p.X - cx, Y: p.Y - cy}
	}
}

// clampToCanvas keeps every node inside the dynamic canvas minus padding.
func clampToCanvas(nodes []Node, positions map[string]Point, padding float64) {
	half := CanvasSize(len(nodes))/2 - padding
	for _, node := range nodes {
		p := positions[node.ID]
		positions[node.ID] = Point{
			X: math.Max(-half, math.Min(half, p.X)),
			Y: math.Max(-half, math.Min(half, p.Y)),
		}
	}
}

// applyReserved nudges the layout off the reserved panel regions.
func applyReserved(nodes []Node, positions map[string]Point, opts Options) {
	dx := (opts.ReservedLeft - opts.ReservedRight) / 2
	dy := opts.ReservedTop / 2
	if dx == 0 && dy == 0 {
		return
	}
	for _, node := range nodes {
		p := positions[node.ID]
		positions[node.ID] = Point{X: p.X + dx, Y: p.Y + dy}
	}
}

// bfsLayers groups nodes into BFS layers from the in-degree-zero roots.
func bfsLayers(nodes []Node, edges []Edge) [][]Node {
	indeg := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	byID := make(map[string]Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}
	for _, e := range edges {
		if _, ok := byID[e.SourceID]; !ok {
			continue
		}
		if _, ok := byID[e.DestinationID]; !ok {
			continue
		}
		adj[e.SourceID] = append(adj[e.SourceID], e.DestinationID)
		indeg[e.DestinationID]++
	}

	seen := make(map[string]bool, len(nodes))
	var frontier []Node
	for _, node := range nodes {
		if indeg[node.ID] == 0 {
			frontier = append(frontier, node)
			seen[node.ID] = true
		}
	}
	if len(frontier) == 0 {
		frontier = []Node{nodes[0]}
		seen[nodes[0].ID] = true
	}

	var layers [][]Node
	for len(frontier) > 0 {
		layers = append(layers, frontier)
		var next []Node
		for _, node := range frontier {
			for _, dst := range adj[node.ID] {
				if !seen[dst] {
					seen[dst] = true
					next = append(next, byID[dst])
				}
			}
		}
		frontier = next
	}
	// Disconnected leftovers form a final layer in input order.
	var rest []Node
	for _, node := range nodes {
		if !seen[node.ID] {
			rest = append(rest, node)
		}
	}
	if len(rest) > 0 {
		layers = append(layers, rest)
	}
	return layers
}

// radialDepths returns BFS depth from the highest-degree node, treating
// edges as undirected. Unreachable nodes land one ring past the deepest
// reachable one.
func radialDepths(nodes []Node, edges []Edge) map[string]int {
	adj := make(map[string][]string, len(nodes))
	degree := make(map[string]int, len(nodes))
	for _, e := range edges {
		adj[e.SourceID] = append(adj[e.SourceID], e.DestinationID)
		adj[e.DestinationID] = append(adj[e.DestinationID], e.SourceID)
		degree[e.SourceID]++
		degree[e.DestinationID]++
	}

	center := nodes[0].ID
	for _, node := range nodes {
		if degree[node.ID] > degree[center] {
			center = node.ID
		}
	}

	depths := map[string]int{center: 0}
	frontier := []string{center}
	maxDepth := 0
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			for _, nb := range adj[id] {
				if _, ok := depths[nb]; !ok {
					depths[nb] = depths[id] + 1
					if depths[nb] > maxDepth {
						maxDepth = depths[nb]
					}
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}
	for _, node := range nodes {
		if _, ok := depths[node.ID]; !ok {
			depths[node.ID] = maxDepth + 1
		}
	}
	return depths
}
