// Package batch groups ready cases into HPC-scheduler batches: a 2-D
// bin packer (duration and count modes) translates each case into a
// width/height block, and submit.go drives the scheduler-backend
// submission/poll/merge cycle for the resulting bins.
package batch

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"testforge/internal/depgraph"
	"testforge/internal/model"
)

// Mode selects how ready cases are grouped into bins.
type Mode int

const (
	ModeDuration Mode = iota
	ModeCount
	ModeAtomic
)

// Target bundles a Mode with its numeric parameter (seconds for
// ModeDuration, bin count for ModeCount; unused for ModeAtomic).
type Target struct {
	Mode  Mode
	Value int
}

// Block is a case projected into the packer's 2-D space: width is its
// cpu demand, height its expected runtime in seconds.
type Block struct {
	ID           model.CaseID
	Width        int
	Height       int
	Dependencies []model.CaseID
}

func (b Block) norm() float64 {
	return math.Sqrt(float64(b.Width)*float64(b.Width) + float64(b.Height)*float64(b.Height))
}

// Bin is one packed batch: a set of case ids with no intra-bin
// dependency edges still unresolved across bins.
type Bin struct {
	ID      string // uuid, disambiguates this bin's working directory across submissions
	Members []model.CaseID
	WorkDir string // where RenderCommands writes, and mergeResult reads, per-case results
}

func blockFor(c *model.TestCase) Block {
	width := 1
	for _, g := range c.RequiredResources {
		for _, item := range g {
			if item.Type == "cpus" && item.Slots > width {
				width = item.Slots
			}
		}
	}
	height := int(c.Timeout.Seconds())
	if height <= 0 {
		height = 1
	}
	deps := make([]model.CaseID, 0, len(c.Dependencies))
	for _, d := range c.Dependencies {
		deps = append(deps, d.Upstream)
	}
	return Block{ID: c.ID, Width: width, Height: height, Dependencies: deps}
}

// Pack groups every ready case into bins according to target, processing
// the dependency DAG one Kahn stratum at a time so no bin ever needs a
// case from a later stratum. poolWidth is the HPC allocation's node/cpu
// capacity for the resource type blocks are measured in; 0 falls back to
// each stratum's widest block, matching an unbounded single-node pool.
func Pack(cases []*model.TestCase, target Target, g *depgraph.Graph, poolWidth int) ([]Bin, error) {
	blocks := make(map[model.CaseID]Block, len(cases))
	for _, c := range cases {
		blocks[c.ID] = blockFor(c)
	}

	strata, err := g.Strata()
	if err != nil {
		return nil, err
	}

	var bins []Bin
	for _, stratum := range strata {
		var members []Block
		for _, id := range stratum {
			if b, ok := blocks[id]; ok {
				members = append(members, b)
			}
		}
		if len(members) == 0 {
			continue
		}
		switch target.Mode {
		case ModeAtomic:
			for _, b := range members {
				bins = append(bins, Bin{Members: []model.CaseID{b.ID}})
			}
		case ModeCount:
			bins = append(bins, packByCount(members, target.Value)...)
		default:
			bins = append(bins, packByDuration(members, target.Value, poolWidth)...)
		}
	}
	for i := range bins {
		bins[i].ID = uuid.NewString()
	}
	return bins, nil
}

// packByCount assigns blocks greedily to at most k bins, each time
// adding the next block to whichever bin currently has the smallest
// vector norm.
func packByCount(blocks []Block, k int) []Bin {
	if k <= 0 {
		k = 1
	}
	if k > len(blocks) {
		k = len(blocks)
	}
	bins := make([]binAccum, k)
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].norm() > sorted[j].norm() })

	for _, b := range sorted {
		best := 0
		for i := 1; i < len(bins); i++ {
			if bins[i].norm() < bins[best].norm() {
				best = i
			}
		}
		bins[best].add(b)
	}
	out := make([]Bin, 0, k)
	for _, b := range bins {
		if len(b.ids) > 0 {
			out = append(out, Bin{Members: b.ids})
		}
	}
	return out
}

type binAccum struct {
	ids    []model.CaseID
	width  int
	height int
}

func (b *binAccum) add(blk Block) {
	b.ids = append(b.ids, blk.ID)
	b.width += blk.Width
	b.height += blk.Height
}

func (b *binAccum) norm() float64 {
	return math.Sqrt(float64(b.width)*float64(b.width) + float64(b.height)*float64(b.height))
}

// packByDuration tiles blocks into rectangles of height <= target using
// a growing-bin shelf packer (first-fit, growing right/down as needed).
// poolWidth bounds the rectangle's width to the declared pool capacity;
// 0 falls back to the remaining set's widest block (an unbounded pool).
//
// Each pass packs one rectangle sized to the width capacity and to the
// tallest block still waiting to be placed, not to the full target: the
// target is the ceiling a bin's height may never exceed, not a budget to
// fill by stacking unrelated later waves into the same batch submission.
// Anything that doesn't fit this pass starts a fresh bin next pass.
func packByDuration(blocks []Block, targetHeight, poolWidth int) []Bin {
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].norm() > sorted[j].norm() })

	var bins []Bin
	remaining := sorted
	for len(remaining) > 0 {
		maxWidth := poolWidth
		if maxWidth <= 0 {
			for _, b := range remaining {
				if b.Width > maxWidth {
					maxWidth = b.Width
				}
			}
		}
		height := 0
		for _, b := range remaining {
			if b.Height > height {
				height = b.Height
			}
		}

		p := newPacker()
		p.pack(remaining, maxWidth, height)

		var fit []model.CaseID
		var unfit []Block
		for _, b := range remaining {
			if p.fitted[b.ID] {
				fit = append(fit, b.ID)
			} else {
				unfit = append(unfit, b)
			}
		}
		if len(fit) == 0 {
			// nothing fit even in a rectangle grown to the largest
			// block's own size; place it alone to guarantee progress.
			fit = append(fit, remaining[0].ID)
			unfit = remaining[1:]
		}
		bins = append(bins, Bin{Members: fit})
		remaining = unfit
	}
	return bins
}

// node is a free/used rectangle in the packer's binary tree, mirroring
// the classic growing-bin shelf packer.
type node struct {
	x, y          int
	width, height int
	used          bool
	right, down   *node
}

type packer struct {
	root   *node
	fitted map[model.CaseID]bool
}

func newPacker() *packer { return &packer{fitted: make(map[model.CaseID]bool)} }

func (p *packer) pack(blocks []Block, width, height int) {
	p.root = &node{width: width, height: height}
	for _, b := range blocks {
		if n := p.findNode(p.root, b.Width, b.Height); n != nil {
			p.splitNode(n, b.Width, b.Height)
			p.fitted[b.ID] = true
		}
	}
}

func (p *packer) findNode(n *node, w, h int) *node {
	if n == nil {
		return nil
	}
	if n.used {
		if found := p.findNode(n.right, w, h); found != nil {
			return found
		}
		return p.findNode(n.down, w, h)
	}
	if w <= n.width && h <= n.height {
		return n
	}
	return nil
}

func (p *packer) splitNode(n *node, w, h int) {
	n.used = true
	n.down = &node{x: n.x, y: n.y + h, width: n.width, height: n.height - h}
	n.right = &node{x: n.x + w, y: n.y, width: n.width - w, height: h}
}
