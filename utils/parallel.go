// Package utils contains small helpers shared by the image processing packages.
package utils

import (
	"image"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

// ParallelForEachRow calls f once for every row in [0, rows), splitting the rows into contiguous bands that run on
// separate goroutines. It returns once every row is done.
func ParallelForEachRow(rows int, f func(y int)) {
	if rows <= 0 {
		return
	}
	bands := runtime.GOMAXPROCS(0)
	if bands > rows {
		bands = rows
	}
	step := (rows + bands - 1) / bands

	var waitGroup sync.WaitGroup
	for start := 0; start < rows; start += step {
		end := start + step
		if end > rows {
			end = rows
		}
		waitGroup.Add(1)
		from, to := start, end
		utils.PanicCapturingGo(func() {
			defer waitGroup.Done()
			for y := from; y < to; y++ {
				f(y)
			}
		})
	}
	waitGroup.Wait()
}

// ParallelForEachPixel calls f for every [x, y] position of an image of the given size. Rows are shared out as in
// ParallelForEachRow, so f must be safe to call concurrently for different pixels.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	ParallelForEachRow(size.Y, func(y int) {
		for x := 0; x < size.X; x++ {
			f(x, y)
		}
	})
}
