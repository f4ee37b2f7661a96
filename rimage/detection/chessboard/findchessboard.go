// Package chessboard finds the inner corners of a planar chessboard calibration target.
package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
)

// PatternSize is the number of inner corners of a chessboard along each axis.
type PatternSize struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// DefaultPatternSize is the 7x6 inner corner board.
var DefaultPatternSize = PatternSize{Cols: 7, Rows: 6}

// Count returns the number of inner corners.
func (p PatternSize) Count() int {
	return p.Cols * p.Rows
}

// CheckValid requires at least a 2x2 grid.
func (p PatternSize) CheckValid() error {
	if p.Cols < 2 || p.Rows < 2 {
		return errors.Errorf("chessboard pattern must have at least 2x2 inner corners, got %dx%d", p.Cols, p.Rows)
	}
	return nil
}

// DetectionConfiguration stores the parameters necessary for chessboard detection in an image.
type DetectionConfiguration struct {
	Saddle           SaddleConfiguration `json:"saddle"`
	Grid             GridConfiguration   `json:"grid"`
	SubPixHalfWindow int                 `json:"subpix-half-window"`
	Criteria         rimage.TermCriteria `json:"criteria"`
}

// DefaultDetectionConf returns the default detection parameters, refining corners in an 11x11 window
// for at most 30 iterations or until they move less than 0.001 px.
func DefaultDetectionConf() DetectionConfiguration {
	return DetectionConfiguration{
		Saddle:           DefaultSaddleConf,
		Grid:             DefaultGridConf,
		SubPixHalfWindow: rimage.DefaultSubPixHalfWindow,
		Criteria:         rimage.DefaultSubPixCriteria,
	}
}

// FindChessboardCorners locates the pattern's inner corners. The corners are returned row-major with pattern.Cols
// points per row; the grid is right-handed in image coordinates and starts at the lattice corner with the smallest
// x+y. found is false when the complete grid could not be assembled.
func FindChessboardCorners(img *image.Gray, pattern PatternSize, cfg *DetectionConfiguration) ([]r2.Point, bool) {
	if img == nil || img.Bounds().Empty() || pattern.CheckValid() != nil {
		return nil, false
	}
	if cfg == nil {
		def := DefaultDetectionConf()
		cfg = &def
	}
	gray := rimage.MakeGray(img)
	candidates, err := FindSaddleCandidates(gray, &cfg.Saddle)
	if err != nil || len(candidates) < pattern.Count() {
		return nil, false
	}
	grid, ok := assembleGrid(candidates, pattern, &cfg.Grid)
	if !ok {
		return nil, false
	}
	grid = orientGrid(grid)

	corners := make([]r2.Point, 0, pattern.Count())
	for _, row := range grid {
		corners = append(corners, row...)
	}
	return rimage.RefineCornersSubPix(gray, corners, cfg.SubPixHalfWindow, cfg.Criteria), true
}

// ObjectPoints returns the planar board coordinates matching FindChessboardCorners ordering:
// (col*squareSize, row*squareSize, 0).
func ObjectPoints(pattern PatternSize, squareSize float64) []r3.Vector {
	out := make([]r3.Vector, 0, pattern.Count())
	for r := 0; r < pattern.Rows; r++ {
		for c := 0; c < pattern.Cols; c++ {
			out = append(out, r3.Vector{X: float64(c) * squareSize, Y: float64(r) * squareSize})
		}
	}
	return out
}
