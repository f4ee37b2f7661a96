package marker

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage"
)

// Marker is an identified marker. Corner 0 is the marker's own top-left corner and the rest follow clockwise,
// whatever the marker's rotation in the image.
type Marker struct {
	ID      int         `json:"id"`
	Corners [4]r2.Point `json:"corners"`
	// Distance is the number of bits corrected to match the codeword.
	Distance int `json:"distance"`
}

// CornerSlice returns the corners as a slice.
func (m Marker) CornerSlice() []r2.Point {
	return m.Corners[:]
}

// DetectMarkers finds the markers of dict in gray. Quads that look like markers but do not decode to one of
// dict's codewords are returned as rejected.
func DetectMarkers(gray *image.Gray, dict *Dictionary, params *DetectorParameters) ([]Marker, []Candidate, error) {
	if params == nil {
		def := DefaultDetectorParameters()
		params = &def
	}
	candidates, err := DetectCandidates(gray, params)
	if err != nil {
		return nil, nil, err
	}
	return IdentifyCandidates(gray, candidates, dict, params)
}

// IdentifyCandidates decodes each candidate and matches it against dict. Every candidate ends up in exactly one
// of the two results, in input order.
func IdentifyCandidates(
	gray *image.Gray,
	candidates []Candidate,
	dict *Dictionary,
	params *DetectorParameters,
) ([]Marker, []Candidate, error) {
	if gray == nil {
		return nil, nil, errors.New("no image to identify markers in")
	}
	if dict == nil {
		return nil, nil, errors.New("no dictionary to identify markers with")
	}
	if params == nil {
		def := DefaultDetectorParameters()
		params = &def
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	gray = rimage.MakeGray(gray)

	cells := dict.MarkerSize + 2*params.MarkerBorderBits
	borderCells := cells*cells - dict.MarkerSize*dict.MarkerSize
	maxBorderErrors := int(float64(borderCells) * params.MaxErroneousBitsInBorderRate)
	maxCorrection := int(float64(dict.MaxCorrectionBits) * params.ErrorCorrectionRate)

	var markers []Marker
	var rejected []Candidate
	for _, cand := range candidates {
		grid, err := extractBits(gray, cand.Corners, cells, params)
		if err != nil || borderErrors(grid, params.MarkerBorderBits) > maxBorderErrors {
			rejected = append(rejected, cand)
			continue
		}
		id, rotation, distance := dict.Identify(innerCode(grid, params.MarkerBorderBits))
		if id < 0 || distance > maxCorrection {
			rejected = append(rejected, cand)
			continue
		}
		m := Marker{ID: id, Distance: distance}
		// the codeword's top-left cell appears rotation quarter turns clockwise from the quad's first corner
		for k := range m.Corners {
			m.Corners[k] = cand.Corners[(k+rotation)%4]
		}
		markers = append(markers, m)
	}

	if params.CornerRefinementMethod == CornerRefineSubPix && len(markers) > 0 {
		crit := rimage.TermCriteria{
			MaxIter: params.CornerRefinementMaxIterations,
			Epsilon: params.CornerRefinementMinAccuracy,
		}
		for i := range markers {
			refined := rimage.RefineCornersSubPix(gray, markers[i].Corners[:], params.CornerRefinementWinSize, crit)
			copy(markers[i].Corners[:], refined)
		}
	}
	return markers, rejected, nil
}
