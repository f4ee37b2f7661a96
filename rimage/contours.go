package rimage

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

// BorderType distinguishes the two kinds of border found by border following.
type BorderType int

const (
	// Hole is the border between a hole (0-component) and the 1-component surrounding it.
	Hole BorderType = iota + 1
	// Outer is the border between a 1-component and the 0-component surrounding it.
	Outer
)

// Contour is a traced border. Parent is the index of the enclosing contour, or -1 when the
// border is surrounded by the image frame.
type Contour struct {
	Points []image.Point
	Type   BorderType
	Parent int
}

// neighbors of a pixel in counter-clockwise order starting east, as (row, col) offsets.
var neighbors = [8][2]int{{0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}}

const (
	dirEast = 0
	dirWest = 4
)

func neighborIndex(di, dj int) int {
	for k, n := range neighbors {
		if n[0] == di && n[1] == dj {
			return k
		}
	}
	return -1
}

// FindContours traces every border of a binary image (non-zero is foreground) with the
// Suzuki-Abe border following algorithm using 8-connectivity. Contours are returned in raster
// order of their starting pixel.
func FindContours(binary *image.Gray) []Contour {
	b := binary.Bounds()
	w, h := b.Dx()+2, b.Dy()+2
	labels := make([]int32, w*h)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if binary.Pix[y*binary.Stride+x] != 0 {
				labels[(y+1)*w+x+1] = 1
			}
		}
	}

	// index 0 is the frame, which behaves as a hole border
	types := []BorderType{Hole}
	parents := []int{-1}
	contours := []Contour{}
	nbd := int32(1)
	for i := 1; i < h-1; i++ {
		lnbd := int32(1)
		for j := 1; j < w-1; j++ {
			idx := i*w + j
			fij := labels[idx]
			start := false
			var borderType BorderType
			var from int
			switch {
			case fij == 1 && labels[idx-1] == 0:
				start, borderType, from = true, Outer, dirWest
			case fij >= 1 && labels[idx+1] == 0:
				start, borderType, from = true, Hole, dirEast
				if fij > 1 {
					lnbd = fij
				}
			}
			if start {
				nbd++
				parent := int(lnbd - 1)
				if borderType == types[lnbd-1] {
					parent = parents[lnbd-1]
				}
				points := followBorder(labels, w, i, j, from, nbd)
				types = append(types, borderType)
				parents = append(parents, parent)
				// contour k carries label k+2, frame parent maps to -1
				contours = append(contours, Contour{Points: points, Type: borderType, Parent: parent - 1})
			}
			if v := labels[idx]; v != 0 && v != 1 {
				if v < 0 {
					v = -v
				}
				lnbd = v
			}
		}
	}
	return contours
}

// followBorder traces one border starting at (i, j) whose known zero neighbor lies in direction
// from. Visited pixels are relabeled with nbd (or -nbd at right-hand exits).
func followBorder(labels []int32, w, i, j, from int, nbd int32) []image.Point {
	found := -1
	for k := 0; k < 8; k++ {
		d := (from - k + 8) % 8
		n := neighbors[d]
		if labels[(i+n[0])*w+j+n[1]] != 0 {
			found = d
			break
		}
	}
	if found < 0 {
		labels[i*w+j] = -nbd
		return []image.Point{{j - 1, i - 1}}
	}

	i1, j1 := i+neighbors[found][0], j+neighbors[found][1]
	i2, j2 := i1, j1
	i3, j3 := i, j
	points := []image.Point{}
	for {
		prev := neighborIndex(i2-i3, j2-j3)
		eastZero := false
		var i4, j4 int
		for k := 1; k <= 8; k++ {
			d := (prev + k) % 8
			ni, nj := i3+neighbors[d][0], j3+neighbors[d][1]
			if labels[ni*w+nj] != 0 {
				i4, j4 = ni, nj
				break
			}
			if d == dirEast {
				eastZero = true
			}
		}
		cur := i3*w + j3
		if eastZero {
			labels[cur] = -nbd
		} else if labels[cur] == 1 {
			labels[cur] = nbd
		}
		points = append(points, image.Point{j3 - 1, i3 - 1})
		if i4 == i && j4 == j && i3 == i1 && j3 == j1 {
			return points
		}
		i2, j2 = i3, j3
		i3, j3 = i4, j4
	}
}

// ContourToR2 converts integer contour points to floating point ones.
func ContourToR2(points []image.Point) []r2.Point {
	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = r2.Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return out
}

// distanceToLine is the distance from p to the infinite line through a and b, or to a when the
// two coincide.
func distanceToLine(p, a, b r2.Point) float64 {
	d := b.Sub(a)
	n := d.Norm()
	if n == 0 {
		return p.Sub(a).Norm()
	}
	return math.Abs(d.Cross(p.Sub(a))) / n
}

// douglasPeucker simplifies an open polyline keeping both endpoints.
func douglasPeucker(points []r2.Point, eps float64) []r2.Point {
	if len(points) < 3 {
		return append([]r2.Point{}, points...)
	}
	first, last := points[0], points[len(points)-1]
	maxDist, maxIdx := -1., 0
	for i := 1; i < len(points)-1; i++ {
		if d := distanceToLine(points[i], first, last); d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist <= eps {
		return []r2.Point{first, last}
	}
	left := douglasPeucker(points[:maxIdx+1], eps)
	right := douglasPeucker(points[maxIdx:], eps)
	return append(left[:len(left)-1], right...)
}

// ApproxContourDP approximates a polygonal curve with fewer vertices such that no point of the
// curve is farther than eps from the approximation. Closed curves are split at two mutually
// distant points first.
func ApproxContourDP(contour []r2.Point, eps float64, closed bool) []r2.Point {
	if !closed || len(contour) < 3 {
		return douglasPeucker(contour, eps)
	}
	farthest := func(from int) int {
		best, bestDist := from, -1.
		for i, p := range contour {
			d := p.Sub(contour[from])
			if dist := d.Dot(d); dist > bestDist {
				best, bestDist = i, dist
			}
		}
		return best
	}
	b := farthest(0)
	a := farthest(b)
	if a == b {
		return []r2.Point{contour[a]}
	}
	if a > b {
		a, b = b, a
	}
	n := len(contour)
	chainAB := contour[a : b+1]
	chainBA := make([]r2.Point, 0, n-(b-a)+1)
	chainBA = append(chainBA, contour[b:]...)
	chainBA = append(chainBA, contour[:a+1]...)
	first := douglasPeucker(chainAB, eps)
	second := douglasPeucker(chainBA, eps)
	out := append(first[:len(first)-1], second[:len(second)-1]...)
	return out
}

// ArcLength returns the length of the polyline, including the closing segment when closed.
func ArcLength(points []r2.Point, closed bool) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.
	for i := 1; i < len(points); i++ {
		total += points[i].Sub(points[i-1]).Norm()
	}
	if closed {
		total += points[0].Sub(points[len(points)-1]).Norm()
	}
	return total
}

// PolygonArea returns the signed shoelace area. The sign is positive for polygons whose vertices
// run clockwise in image coordinates (y pointing down).
func PolygonArea(points []r2.Point) float64 {
	area := 0.
	for i := range points {
		p := points[i]
		q := points[(i+1)%len(points)]
		area += p.Cross(q)
	}
	return area / 2
}

// IsContourConvex reports whether the closed polygon turns in a single direction at every vertex.
func IsContourConvex(points []r2.Point) bool {
	n := len(points)
	if n < 3 {
		return false
	}
	sign := 0.
	for i := 0; i < n; i++ {
		e1 := points[(i+1)%n].Sub(points[i])
		e2 := points[(i+2)%n].Sub(points[(i+1)%n])
		c := e1.Cross(e2)
		if c == 0 {
			continue
		}
		if sign == 0 {
			sign = math.Copysign(1, c)
		} else if math.Copysign(1, c) != sign {
			return false
		}
	}
	return sign != 0
}
