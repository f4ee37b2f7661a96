package marker

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
)

// unwarp resamples the quad into a square of cells*cellSize pixels, with the quad's corners on the outer pixel
// edges of the square.
func unwarp(gray *image.Gray, corners [4]r2.Point, cells, cellSize int) (*image.Gray, error) {
	side := float64(cells * cellSize)
	dst := []r2.Point{{X: -0.5, Y: -0.5}, {X: side - 0.5, Y: -0.5}, {X: side - 0.5, Y: side - 0.5}, {X: -0.5, Y: side - 0.5}}
	h, err := rimage.GetPerspectiveTransform(corners[:], dst)
	if err != nil {
		return nil, err
	}
	return rimage.WarpPerspectiveGray(gray, h, image.Pt(cells*cellSize, cells*cellSize))
}

// extractBits samples the cell grid, border included, of the quad. A cell is 1 when more than half of its
// pixels, ignoring a margin, are white after Otsu binarization. A low contrast quad is all one color.
func extractBits(gray *image.Gray, corners [4]r2.Point, cells int, params *DetectorParameters) ([][]uint8, error) {
	cellSize := params.PerspectiveRemovePixelPerCell
	warped, err := unwarp(gray, corners, cells, cellSize)
	if err != nil {
		return nil, errors.Wrap(err, "cannot unwarp candidate")
	}
	side := cells * cellSize

	half := cellSize / 2
	inner := make([]float64, 0, (side-2*half)*(side-2*half))
	for y := half; y < side-half; y++ {
		for x := half; x < side-half; x++ {
			inner = append(inner, float64(warped.Pix[y*warped.Stride+x]))
		}
	}
	grid := make([][]uint8, cells)
	for i := range grid {
		grid[i] = make([]uint8, cells)
	}
	stdDev, err := stats.StandardDeviationPopulation(inner)
	if err != nil {
		return nil, errors.Wrap(err, "empty candidate")
	}
	if stdDev < params.MinOtsuStdDev {
		mean, _ := stats.Mean(inner)
		if mean > 127 {
			for _, row := range grid {
				for i := range row {
					row[i] = 1
				}
			}
		}
		return grid, nil
	}

	binary := rimage.Threshold(warped, rimage.OtsuThreshold(warped.Pix))
	margin := int(params.PerspectiveRemoveIgnoredMarginPerCell * float64(cellSize))
	span := cellSize - 2*margin
	for cy := 0; cy < cells; cy++ {
		for cx := 0; cx < cells; cx++ {
			white := 0
			for y := cy*cellSize + margin; y < cy*cellSize+margin+span; y++ {
				for x := cx*cellSize + margin; x < cx*cellSize+margin+span; x++ {
					if binary.Pix[y*binary.Stride+x] != 0 {
						white++
					}
				}
			}
			if 2*white > span*span {
				grid[cy][cx] = 1
			}
		}
	}
	return grid, nil
}

// borderErrors counts the white cells in the outer borderBits rings of the grid.
func borderErrors(grid [][]uint8, borderBits int) int {
	n := len(grid)
	count := 0
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			inside := y >= borderBits && y < n-borderBits && x >= borderBits && x < n-borderBits
			if !inside && grid[y][x] != 0 {
				count++
			}
		}
	}
	return count
}

// innerCode packs the cells inside the border.
func innerCode(grid [][]uint8, borderBits int) uint64 {
	n := len(grid) - 2*borderBits
	inner := make([][]uint8, n)
	for y := range inner {
		inner[y] = grid[y+borderBits][borderBits : borderBits+n]
	}
	return BitsToCode(inner)
}
