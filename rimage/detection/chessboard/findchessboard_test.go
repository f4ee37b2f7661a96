package chessboard

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestFindChessboardCornersFrontal(t *testing.T) {
	h := composeHomography(t, translation(40.3, 35.7))
	img, truth := renderBoard(t, 310, 280, DefaultPatternSize, 28, h)

	corners, found := FindChessboardCorners(img, DefaultPatternSize, nil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, len(corners), test.ShouldEqual, 42)
	for i, c := range corners {
		test.That(t, c.Sub(truth[i]).Norm(), test.ShouldBeLessThan, 0.5)
	}
}

func TestFindChessboardCornersPerspective(t *testing.T) {
	pattern := DefaultPatternSize
	sq := 26.
	bw, bh := float64(pattern.Cols+1)*sq, float64(pattern.Rows+1)*sq
	h := composeHomography(t,
		translation(180, 180),
		rotation(100*math.Pi/180),
		[]float64{1, 0, 0, 0, 1, 0, 0.0005, 0.0003, 1},
		translation(-bw/2, -bh/2),
	)
	img, truth := renderBoard(t, 360, 360, pattern, sq, h)

	corners, found := FindChessboardCorners(img, pattern, nil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, len(corners), test.ShouldEqual, pattern.Count())

	matched := map[int]bool{}
	for _, c := range corners {
		best, bestDist := -1, math.Inf(1)
		for j, tr := range truth {
			if d := c.Sub(tr).Norm(); d < bestDist {
				best, bestDist = j, d
			}
		}
		test.That(t, bestDist, test.ShouldBeLessThan, 0.5)
		test.That(t, matched[best], test.ShouldBeFalse)
		matched[best] = true
	}

	// row-major, right-handed, starting at the smaller x+y end
	first, lastOfRow := corners[0], corners[pattern.Cols-1]
	firstOfLastRow, last := corners[len(corners)-pattern.Cols], corners[len(corners)-1]
	test.That(t, lastOfRow.Sub(first).Cross(firstOfLastRow.Sub(first)), test.ShouldBeGreaterThan, 0)
	test.That(t, first.X+first.Y, test.ShouldBeLessThan, last.X+last.Y)
	// neighbors along a row are one square apart
	test.That(t, corners[1].Sub(corners[0]).Norm(), test.ShouldAlmostEqual, sq, sq*0.2)
}

func TestFindChessboardCornersTransposedPattern(t *testing.T) {
	h := composeHomography(t, translation(40, 40))
	img, _ := renderBoard(t, 310, 280, DefaultPatternSize, 28, h)

	corners, found := FindChessboardCorners(img, PatternSize{Cols: 6, Rows: 7}, nil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, len(corners), test.ShouldEqual, 42)
	// six points per row now run down the image
	test.That(t, math.Abs(corners[1].Y-corners[0].Y), test.ShouldBeGreaterThan, 20)

	_, found = FindChessboardCorners(img, PatternSize{Cols: 8, Rows: 6}, nil)
	test.That(t, found, test.ShouldBeFalse)
}

func TestFindChessboardCornersNotFound(t *testing.T) {
	blank := image.NewGray(image.Rect(0, 0, 120, 100))
	for i := range blank.Pix {
		blank.Pix[i] = 128
	}
	corners, found := FindChessboardCorners(blank, DefaultPatternSize, nil)
	test.That(t, found, test.ShouldBeFalse)
	test.That(t, corners, test.ShouldBeNil)

	_, found = FindChessboardCorners(nil, DefaultPatternSize, nil)
	test.That(t, found, test.ShouldBeFalse)
	corners, found = FindChessboardCorners(image.NewGray(image.Rect(0, 0, 0, 0)), DefaultPatternSize, nil)
	test.That(t, found, test.ShouldBeFalse)
	test.That(t, corners, test.ShouldBeNil)
	_, found = FindChessboardCorners(blank, PatternSize{Cols: 1, Rows: 5}, nil)
	test.That(t, found, test.ShouldBeFalse)
}

func TestObjectPoints(t *testing.T) {
	pts := ObjectPoints(DefaultPatternSize, 2.5)
	test.That(t, len(pts), test.ShouldEqual, 42)
	test.That(t, pts[0].X, test.ShouldEqual, 0.)
	test.That(t, pts[1].X, test.ShouldEqual, 2.5)
	test.That(t, pts[7].X, test.ShouldEqual, 0.)
	test.That(t, pts[7].Y, test.ShouldEqual, 2.5)
	test.That(t, pts[41].X, test.ShouldEqual, 15.)
	test.That(t, pts[41].Y, test.ShouldEqual, 12.5)
	for _, p := range pts {
		test.That(t, p.Z, test.ShouldEqual, 0.)
	}
}

func TestSaddleCandidates(t *testing.T) {
	h := composeHomography(t, translation(40.3, 35.7))
	img, truth := renderBoard(t, 310, 280, DefaultPatternSize, 28, h)

	candidates, err := FindSaddleCandidates(img, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(candidates), test.ShouldBeGreaterThanOrEqualTo, len(truth))
	for _, tr := range truth {
		near := false
		for _, c := range candidates {
			if c.Sub(tr).Norm() < 2 {
				near = true
			}
		}
		test.That(t, near, test.ShouldBeTrue)
	}

	// the outer corner of the board is an L junction
	outer := h.Apply(r2.Point{})
	test.That(t, isXJunction(img, outer, &DefaultSaddleConf), test.ShouldBeFalse)
	test.That(t, isXJunction(img, truth[10], &DefaultSaddleConf), test.ShouldBeTrue)

	_, err = FindSaddleCandidates(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	out := filepath.Join(t.TempDir(), "saddles.png")
	test.That(t, PlotSaddleMap(img, candidates, truth, out), test.ShouldBeNil)
	_, err = os.Stat(out)
	test.That(t, err, test.ShouldBeNil)
}

func TestNonMaxSuppression(t *testing.T) {
	m := mat.NewDense(20, 30, nil)
	m.Set(5, 10, 40)
	m.Set(6, 11, 30)
	m.Set(15, 25, 10)
	m.Set(15, 26, 10)

	nms := NonMaxSuppression(m, 3)
	test.That(t, nms.At(5, 10), test.ShouldEqual, 40.)
	test.That(t, nms.At(6, 11), test.ShouldEqual, 0.)
	test.That(t, nms.At(15, 25), test.ShouldEqual, 10.)
	test.That(t, nms.At(15, 26), test.ShouldEqual, 0.)
}

func TestPruneSaddle(t *testing.T) {
	m := mat.NewDense(1, 6, []float64{1, 2, 4, 8, 16, 32})
	pruned := PruneSaddle(m, 1, 2)
	test.That(t, mat.Sum(pruned), test.ShouldEqual, 48.)

	unlimited := PruneSaddle(m, 3, 0)
	test.That(t, unlimited.RawMatrix().Data, test.ShouldResemble, []float64{0, 0, 4, 8, 16, 32})
}
