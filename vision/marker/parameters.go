package marker

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// CornerRefinementMethod selects how accepted marker corners are refined.
type CornerRefinementMethod string

const (
	// CornerRefineNone keeps the corners of the polygon approximation.
	CornerRefineNone CornerRefinementMethod = "none"
	// CornerRefineSubPix refines corners with the gradient orthogonality iteration.
	CornerRefineSubPix CornerRefinementMethod = "subpix"
)

// DetectorParameters tune candidate extraction and bit decoding. Rates are relative to the largest image
// dimension or to the candidate's perimeter, as in OpenCV's aruco module.
type DetectorParameters struct {
	AdaptiveThreshWinSizeMin  int     `json:"adaptive_thresh_win_size_min"`
	AdaptiveThreshWinSizeMax  int     `json:"adaptive_thresh_win_size_max"`
	AdaptiveThreshWinSizeStep int     `json:"adaptive_thresh_win_size_step"`
	AdaptiveThreshConstant    float64 `json:"adaptive_thresh_constant"`

	MinMarkerPerimeterRate      float64 `json:"min_marker_perimeter_rate"`
	MaxMarkerPerimeterRate      float64 `json:"max_marker_perimeter_rate"`
	PolygonalApproxAccuracyRate float64 `json:"polygonal_approx_accuracy_rate"`
	MinCornerDistanceRate       float64 `json:"min_corner_distance_rate"`
	MinDistanceToBorder         int     `json:"min_distance_to_border"`
	MinMarkerDistanceRate       float64 `json:"min_marker_distance_rate"`

	MarkerBorderBits                      int     `json:"marker_border_bits"`
	PerspectiveRemovePixelPerCell         int     `json:"perspective_remove_pixel_per_cell"`
	PerspectiveRemoveIgnoredMarginPerCell float64 `json:"perspective_remove_ignored_margin_per_cell"`
	MaxErroneousBitsInBorderRate          float64 `json:"max_erroneous_bits_in_border_rate"`
	MinOtsuStdDev                         float64 `json:"min_otsu_std_dev"`
	ErrorCorrectionRate                   float64 `json:"error_correction_rate"`

	CornerRefinementMethod        CornerRefinementMethod `json:"corner_refinement_method"`
	CornerRefinementWinSize       int                    `json:"corner_refinement_win_size"`
	CornerRefinementMaxIterations int                    `json:"corner_refinement_max_iterations"`
	CornerRefinementMinAccuracy   float64                `json:"corner_refinement_min_accuracy"`
}

// DefaultDetectorParameters returns OpenCV's defaults.
func DefaultDetectorParameters() DetectorParameters {
	return DetectorParameters{
		AdaptiveThreshWinSizeMin:              3,
		AdaptiveThreshWinSizeMax:              23,
		AdaptiveThreshWinSizeStep:             10,
		AdaptiveThreshConstant:                7,
		MinMarkerPerimeterRate:                0.03,
		MaxMarkerPerimeterRate:                4,
		PolygonalApproxAccuracyRate:           0.03,
		MinCornerDistanceRate:                 0.05,
		MinDistanceToBorder:                   3,
		MinMarkerDistanceRate:                 0.05,
		MarkerBorderBits:                      1,
		PerspectiveRemovePixelPerCell:         4,
		PerspectiveRemoveIgnoredMarginPerCell: 0.13,
		MaxErroneousBitsInBorderRate:          0,
		MinOtsuStdDev:                         5,
		ErrorCorrectionRate:                   0.6,
		CornerRefinementMethod:                CornerRefineNone,
		CornerRefinementWinSize:               5,
		CornerRefinementMaxIterations:         30,
		CornerRefinementMinAccuracy:           0.1,
	}
}

// Validate reports every out of range parameter.
func (p *DetectorParameters) Validate() error {
	var err error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			err = multierr.Append(err, errors.Errorf(format, args...))
		}
	}
	check(p.AdaptiveThreshWinSizeMin >= 3, "adaptive threshold min window must be at least 3, got %d",
		p.AdaptiveThreshWinSizeMin)
	check(p.AdaptiveThreshWinSizeMax >= p.AdaptiveThreshWinSizeMin,
		"adaptive threshold max window %d is smaller than the min window %d",
		p.AdaptiveThreshWinSizeMax, p.AdaptiveThreshWinSizeMin)
	check(p.AdaptiveThreshWinSizeStep > 0, "adaptive threshold window step must be positive, got %d",
		p.AdaptiveThreshWinSizeStep)
	check(p.MinMarkerPerimeterRate > 0 && p.MaxMarkerPerimeterRate > p.MinMarkerPerimeterRate,
		"marker perimeter rates must satisfy 0 < min < max, got %v and %v",
		p.MinMarkerPerimeterRate, p.MaxMarkerPerimeterRate)
	check(p.PolygonalApproxAccuracyRate > 0, "polygonal approximation accuracy rate must be positive")
	check(p.MinCornerDistanceRate >= 0, "min corner distance rate must not be negative")
	check(p.MinDistanceToBorder >= 0, "min distance to border must not be negative")
	check(p.MinMarkerDistanceRate >= 0, "min marker distance rate must not be negative")
	check(p.MarkerBorderBits >= 1, "marker border bits must be at least 1, got %d", p.MarkerBorderBits)
	check(p.PerspectiveRemovePixelPerCell >= 1, "pixels per cell must be at least 1, got %d",
		p.PerspectiveRemovePixelPerCell)
	check(p.PerspectiveRemoveIgnoredMarginPerCell >= 0 && p.PerspectiveRemoveIgnoredMarginPerCell < 0.5,
		"ignored cell margin must be in [0, 0.5), got %v", p.PerspectiveRemoveIgnoredMarginPerCell)
	check(p.MaxErroneousBitsInBorderRate >= 0 && p.MaxErroneousBitsInBorderRate <= 1,
		"erroneous border bit rate must be in [0, 1], got %v", p.MaxErroneousBitsInBorderRate)
	check(p.MinOtsuStdDev >= 0, "min Otsu standard deviation must not be negative")
	check(p.ErrorCorrectionRate >= 0 && p.ErrorCorrectionRate <= 1,
		"error correction rate must be in [0, 1], got %v", p.ErrorCorrectionRate)
	switch p.CornerRefinementMethod {
	case CornerRefineNone, "":
	case CornerRefineSubPix:
		check(p.CornerRefinementWinSize >= 1, "corner refinement window must be at least 1")
		check(p.CornerRefinementMaxIterations >= 1 || p.CornerRefinementMinAccuracy > 0,
			"corner refinement needs an iteration cap or an accuracy")
	default:
		check(false, "unknown corner refinement method %q", p.CornerRefinementMethod)
	}
	return err
}
