package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// GridConfiguration controls how saddle candidates are assembled into a lattice.
type GridConfiguration struct {
	// MatchTolerance is the search radius around a predicted corner, as a fraction of the local step.
	MatchTolerance float64 `json:"match-tolerance"`
	// MaxPerpendicularCos bounds |cos| of the angle between the two seed steps.
	MaxPerpendicularCos float64 `json:"max-perpendicular-cos"`
	// MaxStepRatio bounds the length ratio between the two seed steps.
	MaxStepRatio float64 `json:"max-step-ratio"`
	// SeedNeighbors is the number of nearest candidates examined when picking the seed steps.
	SeedNeighbors int `json:"seed-neighbors"`
}

// DefaultGridConf holds the default lattice assembly parameters.
var DefaultGridConf = GridConfiguration{
	MatchTolerance:      0.3,
	MaxPerpendicularCos: 0.5,
	MaxStepRatio:        2,
	SeedNeighbors:       8,
}

type cell struct{ i, j int }

var gridDirections = []cell{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// lattice is a partially filled grid of candidate indices keyed by integer lattice coordinates.
type lattice struct {
	points []r2.Point
	cells  map[cell]int
	used   []bool
	u, v   r2.Point // seed steps along i and j
}

func (l *lattice) at(c cell) (r2.Point, bool) {
	idx, ok := l.cells[c]
	if !ok {
		return r2.Point{}, false
	}
	return l.points[idx], true
}

// step estimates the displacement from c to c+d from already assigned neighbors.
func (l *lattice) step(c, d cell) r2.Point {
	p, _ := l.at(c)
	if back, ok := l.at(cell{c.i - d.i, c.j - d.j}); ok {
		return p.Sub(back)
	}
	for _, e := range []cell{{d.j, d.i}, {-d.j, -d.i}} {
		from, ok1 := l.at(cell{c.i + e.i, c.j + e.j})
		to, ok2 := l.at(cell{c.i + e.i + d.i, c.j + e.j + d.j})
		if ok1 && ok2 {
			return to.Sub(from)
		}
	}
	return l.u.Mul(float64(d.i)).Add(l.v.Mul(float64(d.j)))
}

// nearestFree returns the closest unused candidate to p within radius.
func (l *lattice) nearestFree(p r2.Point, radius float64) (int, bool) {
	best, bestDist := -1, radius
	for i, q := range l.points {
		if l.used[i] {
			continue
		}
		if d := q.Sub(p).Norm(); d <= bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

func (l *lattice) assign(c cell, idx int) {
	l.cells[c] = idx
	l.used[idx] = true
}

// seedLattice picks the candidate closest to the centroid and two roughly perpendicular neighbors of similar distance.
func seedLattice(points []r2.Point, conf *GridConfiguration) (*lattice, bool) {
	if len(points) < 3 {
		return nil, false
	}
	centroid := r2.Point{}
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))
	seed := 0
	for i, p := range points {
		if p.Sub(centroid).Norm() < points[seed].Sub(centroid).Norm() {
			seed = i
		}
	}

	order := make([]int, 0, len(points)-1)
	for i := range points {
		if i != seed {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return points[order[a]].Sub(points[seed]).Norm() < points[order[b]].Sub(points[seed]).Norm()
	})
	if len(order) > conf.SeedNeighbors {
		order = order[:conf.SeedNeighbors]
	}

	first := order[0]
	u := points[first].Sub(points[seed])
	second := -1
	for _, idx := range order[1:] {
		v := points[idx].Sub(points[seed])
		ratio := v.Norm() / u.Norm()
		cos := math.Abs(u.Dot(v)) / (u.Norm() * v.Norm())
		if cos <= conf.MaxPerpendicularCos && ratio <= conf.MaxStepRatio && ratio >= 1/conf.MaxStepRatio {
			second = idx
			break
		}
	}
	if second < 0 {
		return nil, false
	}
	l := &lattice{
		points: points,
		cells:  map[cell]int{},
		used:   make([]bool, len(points)),
		u:      u,
		v:      points[second].Sub(points[seed]),
	}
	l.assign(cell{0, 0}, seed)
	l.assign(cell{1, 0}, first)
	l.assign(cell{0, 1}, second)
	return l, true
}

// grow extends the lattice breadth first by predicting each missing neighbor from the local step.
func (l *lattice) grow(conf *GridConfiguration) {
	queue := []cell{{0, 0}, {1, 0}, {0, 1}}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		p, _ := l.at(c)
		for _, d := range gridDirections {
			next := cell{c.i + d.i, c.j + d.j}
			if _, ok := l.cells[next]; ok {
				continue
			}
			s := l.step(c, d)
			idx, ok := l.nearestFree(p.Add(s), conf.MatchTolerance*s.Norm())
			if !ok {
				continue
			}
			l.assign(next, idx)
			queue = append(queue, next)
		}
	}
}

// rows returns the filled lattice as rows of points when it is a complete rectangle of nRows x nCols cells,
// with i running along columns and j along rows.
func (l *lattice) rows() ([][]r2.Point, bool) {
	minI, maxI, minJ, maxJ := math.MaxInt, math.MinInt, math.MaxInt, math.MinInt
	for c := range l.cells {
		minI, maxI = min(minI, c.i), max(maxI, c.i)
		minJ, maxJ = min(minJ, c.j), max(maxJ, c.j)
	}
	nCols, nRows := maxI-minI+1, maxJ-minJ+1
	if nCols*nRows != len(l.cells) {
		return nil, false
	}
	out := make([][]r2.Point, nRows)
	for r := range out {
		out[r] = make([]r2.Point, nCols)
		for c := range out[r] {
			p, ok := l.at(cell{minI + c, minJ + r})
			if !ok {
				return nil, false
			}
			out[r][c] = p
		}
	}
	return out, true
}

// assembleGrid organizes candidates into a rows x cols lattice, or reports false.
func assembleGrid(points []r2.Point, pattern PatternSize, conf *GridConfiguration) ([][]r2.Point, bool) {
	l, ok := seedLattice(points, conf)
	if !ok {
		return nil, false
	}
	l.grow(conf)
	grid, ok := l.rows()
	if !ok {
		return nil, false
	}
	switch {
	case len(grid) == pattern.Rows && len(grid[0]) == pattern.Cols:
		return grid, true
	case len(grid) == pattern.Cols && len(grid[0]) == pattern.Rows:
		return transposeGrid(grid), true
	}
	return nil, false
}

func transposeGrid(grid [][]r2.Point) [][]r2.Point {
	out := make([][]r2.Point, len(grid[0]))
	for c := range out {
		out[c] = make([]r2.Point, len(grid))
		for r := range grid {
			out[c][r] = grid[r][c]
		}
	}
	return out
}

func flipColumns(grid [][]r2.Point) [][]r2.Point {
	out := make([][]r2.Point, len(grid))
	for r, row := range grid {
		out[r] = make([]r2.Point, len(row))
		for c := range row {
			out[r][c] = row[len(row)-1-c]
		}
	}
	return out
}

func rotateHalfTurn(grid [][]r2.Point) [][]r2.Point {
	flipped := flipColumns(grid)
	out := make([][]r2.Point, len(grid))
	for r := range grid {
		out[r] = flipped[len(grid)-1-r]
	}
	return out
}

// rotateQuarterTurn rotates a square grid so that the last row becomes the first column.
func rotateQuarterTurn(grid [][]r2.Point) [][]r2.Point {
	n := len(grid)
	out := make([][]r2.Point, n)
	for r := range out {
		out[r] = make([]r2.Point, n)
		for c := range out[r] {
			out[r][c] = grid[n-1-c][r]
		}
	}
	return out
}

// handedness is positive when rows advance clockwise of columns in image coordinates.
func handedness(grid [][]r2.Point) float64 {
	origin := grid[0][0]
	along := grid[0][len(grid[0])-1].Sub(origin)
	down := grid[len(grid)-1][0].Sub(origin)
	return along.Cross(down)
}

// orientGrid makes the grid right-handed and, among the orientations that keep the pattern shape and handedness,
// picks the one whose first corner has the smallest x+y.
func orientGrid(grid [][]r2.Point) [][]r2.Point {
	if handedness(grid) < 0 {
		grid = flipColumns(grid)
	}
	candidates := [][][]r2.Point{grid, rotateHalfTurn(grid)}
	if len(grid) == len(grid[0]) {
		quarter := rotateQuarterTurn(grid)
		candidates = append(candidates, quarter, rotateHalfTurn(quarter))
	}
	best := candidates[0]
	for _, g := range candidates[1:] {
		if g[0][0].X+g[0][0].Y < best[0][0].X+best[0][0].Y {
			best = g
		}
	}
	return best
}
