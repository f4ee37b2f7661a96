package calib

import (
	"github.com/montanaflynn/stats"
)

// ReprojectionStats summarizes per-point reprojection errors in pixels.
type ReprojectionStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

func summarizeErrors(errs []float64) ReprojectionStats {
	if len(errs) == 0 {
		return ReprojectionStats{}
	}
	data := stats.Float64Data(errs)
	var out ReprojectionStats
	// errors from stats only happen on empty input
	out.Mean, _ = data.Mean()
	out.Median, _ = data.Median()
	out.P95, _ = data.Percentile(95)
	out.Max, _ = data.Max()
	return out
}
